// Пакет delivery — передача заданий на рассылку RFQ внешнему транспорту.
//
// Сам транспорт (email, WhatsApp) работает отдельно и сообщает итог
// через POST /api/v1/rfq/{id}/delivery-status.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// TypeRFQDeliver — тип задания asynq на доставку RFQ одному поставщику.
const TypeRFQDeliver = "rfq:deliver"

// defaultMaxRetry — число повторов задания в транспорте.
const defaultMaxRetry = 5

// Publisher — получатель заданий на доставку.
type Publisher interface {
	// Publish ставит задание в очередь. Ошибка означает, что задание не принято.
	Publish(ctx context.Context, req model.DeliveryRequest) error
}

// Enqueuer — часть asynq.Client, используемая публикатором.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewDeliveryTask формирует задание asynq для пары (поставщик, канал).
func NewDeliveryTask(req model.DeliveryRequest, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("сериализация задания доставки: %w", err)
	}
	return asynq.NewTask(TypeRFQDeliver, payload,
		asynq.Queue(queue),
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Timeout(time.Minute),
	), nil
}

// ParseDeliveryTask извлекает DeliveryRequest из задания (для обработчиков транспорта).
func ParseDeliveryTask(task *asynq.Task) (model.DeliveryRequest, error) {
	var req model.DeliveryRequest
	if task.Type() != TypeRFQDeliver {
		return req, fmt.Errorf("неожиданный тип задания: %s", task.Type())
	}
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return req, fmt.Errorf("разбор задания доставки: %w", err)
	}
	return req, nil
}

// AsynqPublisher — публикатор поверх очереди asynq (Redis).
type AsynqPublisher struct {
	client Enqueuer
	queue  string
	logger *slog.Logger
}

// NewAsynqPublisher создаёт публикатор.
func NewAsynqPublisher(client Enqueuer, queue string, logger *slog.Logger) *AsynqPublisher {
	return &AsynqPublisher{
		client: client,
		queue:  queue,
		logger: logger.With(slog.String("component", "delivery_publisher")),
	}
}

// Publish ставит задание на доставку в очередь.
func (p *AsynqPublisher) Publish(ctx context.Context, req model.DeliveryRequest) error {
	task, err := NewDeliveryTask(req, p.queue)
	if err != nil {
		return err
	}

	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("постановка задания доставки в очередь: %w", err)
	}

	p.logger.Debug("Задание доставки поставлено в очередь",
		slog.String("task_id", info.ID),
		slog.String("rfq_id", req.RFQID),
		slog.String("vendor_id", req.VendorID),
		slog.String("channel", req.Channel),
	)
	return nil
}

// NoopPublisher — публикатор без транспорта: задания только логируются,
// пары остаются в статусе queued до обратного вызова.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher создаёт публикатор без транспорта.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{
		logger: logger.With(slog.String("component", "delivery_publisher")),
	}
}

// Publish только логирует задание.
func (p *NoopPublisher) Publish(_ context.Context, req model.DeliveryRequest) error {
	p.logger.Info("Очередь доставки не настроена, задание не передано",
		slog.String("rfq_id", req.RFQID),
		slog.String("vendor_id", req.VendorID),
		slog.String("channel", req.Channel),
	)
	return nil
}
