// Пакет server — HTTP-сервер Costing Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/api/handlers"
	"github.com/bigkaa/hexabid/costing-module/internal/api/middleware"
	"github.com/bigkaa/hexabid/costing-module/internal/config"
)

// Server — HTTP-сервер Costing Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// jwtAuth — JWT middleware (nil — проверка токена выключена).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	tenants *middleware.TenantResolver,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, jwtAuth, tenants),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор API.
// Health и metrics проверяются Kubernetes напрямую, без токена и арендатора.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	tenants *middleware.TenantResolver,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware())
		}
		r.Use(tenants.Middleware())

		r.Route("/boq", func(r chi.Router) {
			r.Get("/tender/{tenderId}", h.ListBOQ)
			r.Post("/tender/{tenderId}/items", h.AppendBOQItem)
			r.Put("/tender/{tenderId}/order", h.ReorderBOQ)
			r.Post("/tender/{tenderId}/generate", h.GenerateBOQ)
			r.Get("/tender/{tenderId}/export", h.ExportBOQ)
			r.Patch("/items/{id}", h.UpdateBOQItem)
			r.Delete("/items/{id}", h.RemoveBOQItem)
		})

		r.Post("/products/match", h.MatchProducts)

		r.Route("/rfq", func(r chi.Router) {
			r.Post("/", h.CreateRFQ)
			r.Get("/tender/{tenderId}", h.ListRFQs)
			r.Get("/{id}", h.GetRFQ)
			r.Get("/{id}/quotes", h.ListRFQQuotes)
			r.Post("/{id}/send", h.SendRFQ)
			r.Post("/{id}/delivery-status", h.UpdateDeliveryStatus)
			r.Post("/{id}/close", h.CloseRFQ)
			r.Post("/{id}/reopen", h.ReopenRFQ)
		})

		r.Route("/vendor-quotes", func(r chi.Router) {
			r.Post("/", h.RecordQuote)
			r.Get("/tender/{tenderId}", h.ListQuotes)
			r.Get("/{id}", h.GetQuote)
			r.Post("/{id}/select", h.SelectQuote)
			r.Post("/{id}/review", h.ReviewQuote)
			r.Post("/{id}/reject", h.RejectQuote)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
