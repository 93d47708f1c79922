// rfq_expiry.go — фоновое закрытие RFQ с истёкшим сроком ответа.
package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredRFQCloser закрывает просроченные RFQ.
type ExpiredRFQCloser interface {
	CloseExpired(ctx context.Context) (int, error)
}

// RFQExpiryService — периодический проход по просроченным RFQ.
type RFQExpiryService struct {
	closer   ExpiredRFQCloser
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRFQExpiryService создаёт фоновый сервис закрытия RFQ.
func NewRFQExpiryService(closer ExpiredRFQCloser, interval time.Duration, logger *slog.Logger) *RFQExpiryService {
	return &RFQExpiryService{
		closer:   closer,
		interval: interval,
		logger:   logger.With(slog.String("component", "rfq_expiry")),
	}
}

// Start запускает фоновую горутину.
func (s *RFQExpiryService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Закрытие просроченных RFQ запущено",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Закрытие просроченных RFQ остановлено")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce выполняет один проход.
func (s *RFQExpiryService) RunOnce(ctx context.Context) int {
	closed, err := s.closer.CloseExpired(ctx)
	if err != nil {
		s.logger.Error("Ошибка закрытия просроченных RFQ", slog.String("error", err.Error()))
	}
	if closed > 0 {
		s.logger.Info("Просроченные RFQ закрыты", slog.Int("count", closed))
	}
	return closed
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *RFQExpiryService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
