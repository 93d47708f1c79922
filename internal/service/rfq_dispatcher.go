// rfq_dispatcher.go — RFQ: создание, рассылка поставщикам, учёт доставки,
// закрытие и повторное открытие.
//
// Журнал доставки ведётся по парам (поставщик, канал). Пары в статусе
// queued или delivered повторно не отправляются, failed — отправляются.
// TotalSent растёт на число реально отправленных пар и не сбрасывается.
// Задания передаются транспорту после коммита; отказ очереди помечает
// пару как failed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/hexabid/costing-module/internal/delivery"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/lifecycle"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

// expiredBatchSize — сколько просроченных RFQ закрывается за один проход.
const expiredBatchSize = 100

// CreateRFQInput — параметры нового RFQ.
type CreateRFQInput struct {
	TenderID  string
	ItemIDs   []string
	VendorIDs []string
	Subject   string
	Message   string
	Deadline  time.Time
	CreatedBy *string
}

// SendInput — параметры рассылки.
type SendInput struct {
	Channels []string
	// VendorIDs — кому отправлять; новые поставщики добавляются в RFQ.
	// Пусто — всем поставщикам RFQ.
	VendorIDs []string
}

// deliveryPair — пара (поставщик, канал), отправленная в этом вызове.
type deliveryPair struct {
	vendorID string
	channel  string
}

// RFQDispatcher — сервис RFQ.
type RFQDispatcher struct {
	store     repository.Store
	tenders   *TenderDirectory
	publisher delivery.Publisher
	channels  map[string]bool
	now       func() time.Time
	logger    *slog.Logger
}

// NewRFQDispatcher создаёт сервис RFQ.
// channels — каналы, разрешённые в установке (пусто — все поддерживаемые).
func NewRFQDispatcher(
	store repository.Store,
	tenders *TenderDirectory,
	publisher delivery.Publisher,
	channels []string,
	logger *slog.Logger,
) *RFQDispatcher {
	if len(channels) == 0 {
		channels = model.Channels
	}
	enabled := make(map[string]bool, len(channels))
	for _, ch := range channels {
		enabled[ch] = true
	}
	return &RFQDispatcher{
		store:     store,
		tenders:   tenders,
		publisher: publisher,
		channels:  enabled,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "rfq_dispatcher")),
	}
}

// Create создаёт RFQ в статусе draft.
func (d *RFQDispatcher) Create(ctx context.Context, tenantID string, in CreateRFQInput) (*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	itemIDs, err := uniqueIDs(in.ItemIDs, "позиция")
	if err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return nil, validationf("не указаны позиции BOQ")
	}
	vendorIDs, err := uniqueIDs(in.VendorIDs, "поставщик")
	if err != nil {
		return nil, err
	}
	if len(vendorIDs) == 0 {
		return nil, validationf("не указаны поставщики")
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, validationf("текст запроса обязателен")
	}
	now := d.now()
	if !in.Deadline.After(now) {
		return nil, validationf("срок ответа должен быть в будущем")
	}

	tender, err := d.tenders.Get(ctx, tenantID, in.TenderID)
	if err != nil {
		return nil, err
	}

	repos := d.store.Repos()
	for _, id := range itemIDs {
		item, err := repos.BOQItems.GetByID(ctx, tenantID, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && item.TenderID != in.TenderID) {
			return nil, validationf("позиция %s не найдена в ведомости тендера", id)
		}
		if err != nil {
			return nil, mapRepoError(err, msgItemNotFound)
		}
	}
	if err := d.checkVendors(ctx, repos, tenantID, vendorIDs); err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(in.Subject)
	number := newRFQNumber(now)
	if subject == "" {
		subject = fmt.Sprintf("Запрос коммерческих предложений: %s", tender.Title)
	}

	rfq := &model.RFQ{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		TenderID:         in.TenderID,
		RFQNumber:        number,
		Subject:          subject,
		Message:          message,
		BOQItemIDs:       itemIDs,
		VendorIDs:        vendorIDs,
		ResponseDeadline: in.Deadline.UTC(),
		Deliveries:       model.Deliveries{},
		Status:           model.RFQStatusDraft,
		CreatedBy:        in.CreatedBy,
	}
	if err := repos.RFQs.Create(ctx, rfq); err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}

	d.logger.Info("RFQ создан",
		slog.String("tenant_id", tenantID),
		slog.String("tender_id", rfq.TenderID),
		slog.String("rfq_id", rfq.ID),
		slog.String("rfq_number", rfq.RFQNumber),
		slog.Int("items", len(itemIDs)),
		slog.Int("vendors", len(vendorIDs)),
	)
	return rfq, nil
}

// newRFQNumber — номер вида RFQ-YYYYMMDD-XXXXXXXX.
func newRFQNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RFQ-%s-%s", now.Format("20060102"), suffix)
}

// uniqueIDs убирает пробелы и отклоняет пустые и повторные идентификаторы.
func uniqueIDs(ids []string, kind string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, validationf("пустой идентификатор: %s", kind)
		}
		if _, dup := seen[id]; dup {
			return nil, validationf("%s %s указан повторно", kind, id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// checkVendors проверяет, что поставщики видны арендатору и активны.
func (d *RFQDispatcher) checkVendors(ctx context.Context, repos *repository.Repositories, tenantID string, vendorIDs []string) error {
	for _, id := range vendorIDs {
		v, err := repos.Catalog.GetVendor(ctx, tenantID, id)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return validationf("%s: %s", msgVendorNotFound, id)
		case err != nil:
			return fmt.Errorf("%w: справочник поставщиков: %v", ErrDependencyUnavailable, err)
		case !v.IsActive:
			return validationf("поставщик %s неактивен", id)
		}
	}
	return nil
}

// Get возвращает RFQ арендатора.
func (d *RFQDispatcher) Get(ctx context.Context, tenantID, rfqID string) (*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rfq, err := d.store.Repos().RFQs.GetByID(ctx, tenantID, rfqID)
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}
	return rfq, nil
}

// ListForTender возвращает RFQ тендера, новые первыми.
func (d *RFQDispatcher) ListForTender(ctx context.Context, tenantID, tenderID string) ([]*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if _, err := d.tenders.Get(ctx, tenantID, tenderID); err != nil {
		return nil, err
	}
	rfqs, err := d.store.Repos().RFQs.ListByTender(ctx, tenantID, tenderID)
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}
	if rfqs == nil {
		rfqs = []*model.RFQ{}
	}
	return rfqs, nil
}

// Send переводит RFQ в sent и ставит пары (поставщик, канал) в очередь.
// Закрытый RFQ — ErrConflict.
func (d *RFQDispatcher) Send(ctx context.Context, tenantID, rfqID string, in SendInput) (*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	channels, err := d.validateChannels(in.Channels)
	if err != nil {
		return nil, err
	}
	extraVendors, err := uniqueIDs(in.VendorIDs, "поставщик")
	if err != nil {
		return nil, err
	}

	repos := d.store.Repos()
	if len(extraVendors) > 0 {
		if err := d.checkVendors(ctx, repos, tenantID, extraVendors); err != nil {
			return nil, err
		}
	}

	var (
		rfq       *model.RFQ
		attempted []deliveryPair
	)
	err = d.store.RunInTx(ctx, func(r *repository.Repositories) error {
		cur, err := r.RFQs.GetForUpdate(ctx, tenantID, rfqID)
		if err != nil {
			return err
		}
		if cur.Status == model.RFQStatusClosed {
			return conflictf("RFQ %s закрыт", cur.RFQNumber)
		}
		if err := lifecycle.CheckRFQ(cur.Status, model.RFQStatusSent); err != nil {
			return err
		}

		targets := cur.VendorIDs
		if len(extraVendors) > 0 {
			for _, v := range extraVendors {
				if !cur.HasVendor(v) {
					cur.VendorIDs = append(cur.VendorIDs, v)
				}
			}
			targets = extraVendors
		}

		now := d.now()
		attempted = attempted[:0]
		for _, ch := range channels {
			for _, v := range targets {
				if rec, ok := cur.Deliveries.Get(ch, v); ok && rec.Status != model.DeliveryFailed {
					continue
				}
				cur.Deliveries.Set(ch, v, model.DeliveryRecord{Status: model.DeliveryQueued, UpdatedAt: now})
				attempted = append(attempted, deliveryPair{vendorID: v, channel: ch})
			}
		}

		cur.TotalSent += len(attempted)
		cur.Status = model.RFQStatusSent
		if cur.SentAt == nil {
			cur.SentAt = &now
		}
		if err := r.RFQs.Update(ctx, cur); err != nil {
			return err
		}
		rfq = cur
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}

	d.logger.Info("RFQ отправлен",
		slog.String("tenant_id", tenantID),
		slog.String("rfq_id", rfq.ID),
		slog.Int("attempted", len(attempted)),
		slog.Int("total_sent", rfq.TotalSent),
	)

	failed := d.publish(ctx, rfq, attempted)
	if len(failed) == 0 {
		return rfq, nil
	}
	return d.markFailed(ctx, tenantID, rfqID, failed)
}

// validateChannels проверяет каналы и убирает повторы.
func (d *RFQDispatcher) validateChannels(channels []string) ([]string, error) {
	if len(channels) == 0 {
		return nil, validationf("не указаны каналы рассылки")
	}
	seen := make(map[string]bool, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if !model.IsValidChannel(ch) {
			return nil, validationf("неизвестный канал %q", ch)
		}
		if !d.channels[ch] {
			return nil, validationf("канал %q отключён", ch)
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out, nil
}

// publish передаёт пары транспорту и возвращает не принятые очередью с ошибками.
func (d *RFQDispatcher) publish(ctx context.Context, rfq *model.RFQ, pairs []deliveryPair) map[deliveryPair]string {
	failed := make(map[deliveryPair]string)
	for _, p := range pairs {
		rfqDispatchTotal.WithLabelValues(p.channel).Inc()
		err := d.publisher.Publish(ctx, model.DeliveryRequest{
			TenantID:  rfq.TenantID,
			RFQID:     rfq.ID,
			RFQNumber: rfq.RFQNumber,
			VendorID:  p.vendorID,
			Channel:   p.channel,
			Subject:   rfq.Subject,
			Message:   rfq.Message,
		})
		if err != nil {
			rfqDispatchFailedTotal.WithLabelValues(p.channel).Inc()
			d.logger.Warn("Задание доставки не принято очередью",
				slog.String("rfq_id", rfq.ID),
				slog.String("vendor_id", p.vendorID),
				slog.String("channel", p.channel),
				slog.String("error", err.Error()),
			)
			failed[p] = err.Error()
		}
	}
	return failed
}

// markFailed помечает пары как failed, если они всё ещё в очереди.
func (d *RFQDispatcher) markFailed(ctx context.Context, tenantID, rfqID string, failed map[deliveryPair]string) (*model.RFQ, error) {
	var rfq *model.RFQ
	err := d.store.RunInTx(ctx, func(r *repository.Repositories) error {
		cur, err := r.RFQs.GetForUpdate(ctx, tenantID, rfqID)
		if err != nil {
			return err
		}
		now := d.now()
		for p, msg := range failed {
			if rec, ok := cur.Deliveries.Get(p.channel, p.vendorID); ok && rec.Status == model.DeliveryQueued {
				cur.Deliveries.Set(p.channel, p.vendorID, model.DeliveryRecord{
					Status:    model.DeliveryFailed,
					UpdatedAt: now,
					Error:     msg,
				})
			}
		}
		if err := r.RFQs.Update(ctx, cur); err != nil {
			return err
		}
		rfq = cur
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}
	return rfq, nil
}

// UpdateDeliveryStatus фиксирует итог доставки от транспорта (delivered или failed).
// Доставленная пара последующим failed не откатывается.
func (d *RFQDispatcher) UpdateDeliveryStatus(ctx context.Context, tenantID, rfqID, vendorID, channel, status, errMsg string) (*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if status != model.DeliveryDelivered && status != model.DeliveryFailed {
		return nil, validationf("недопустимый статус доставки %q, допустимые: delivered, failed", status)
	}
	if !model.IsValidChannel(channel) {
		return nil, validationf("неизвестный канал %q", channel)
	}

	var rfq *model.RFQ
	err := d.store.RunInTx(ctx, func(r *repository.Repositories) error {
		cur, err := r.RFQs.GetForUpdate(ctx, tenantID, rfqID)
		if err != nil {
			return err
		}
		rec, ok := cur.Deliveries.Get(channel, vendorID)
		if !ok {
			return validationf("RFQ не отправлялся поставщику %s по каналу %s", vendorID, channel)
		}
		rfq = cur
		if rec.Status == model.DeliveryDelivered {
			return nil
		}
		newRec := model.DeliveryRecord{Status: status, UpdatedAt: d.now()}
		if status == model.DeliveryFailed {
			newRec.Error = errMsg
		}
		cur.Deliveries.Set(channel, vendorID, newRec)
		return r.RFQs.Update(ctx, cur)
	})
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}

	d.logger.Info("Статус доставки RFQ обновлён",
		slog.String("tenant_id", tenantID),
		slog.String("rfq_id", rfqID),
		slog.String("vendor_id", vendorID),
		slog.String("channel", channel),
		slog.String("status", status),
	)
	return rfq, nil
}

// Close закрывает RFQ; повторное закрытие не ошибка.
func (d *RFQDispatcher) Close(ctx context.Context, tenantID, rfqID string) (*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rfq, _, err := d.close(ctx, tenantID, rfqID, false)
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// close закрывает RFQ в транзакции. onlyExpired — закрыть, только если срок истёк.
// Возвращает признак того, что статус изменился.
func (d *RFQDispatcher) close(ctx context.Context, tenantID, rfqID string, onlyExpired bool) (*model.RFQ, bool, error) {
	var (
		rfq     *model.RFQ
		changed bool
	)
	err := d.store.RunInTx(ctx, func(r *repository.Repositories) error {
		cur, err := r.RFQs.GetForUpdate(ctx, tenantID, rfqID)
		if err != nil {
			return err
		}
		rfq = cur
		now := d.now()
		if cur.Status == model.RFQStatusClosed || (onlyExpired && cur.ResponseDeadline.After(now)) {
			return nil
		}
		if err := lifecycle.CheckRFQ(cur.Status, model.RFQStatusClosed); err != nil {
			return err
		}
		cur.Status = model.RFQStatusClosed
		cur.ClosedAt = &now
		changed = true
		return r.RFQs.Update(ctx, cur)
	})
	if err != nil {
		return nil, false, mapRepoError(err, msgRFQNotFound)
	}
	if changed {
		d.logger.Info("RFQ закрыт",
			slog.String("tenant_id", tenantID),
			slog.String("rfq_id", rfqID),
			slog.Bool("expired", onlyExpired),
		)
	}
	return rfq, changed, nil
}

// Reopen открывает закрытый RFQ: в sent, если он отправлялся, иначе в draft.
// newDeadline обязателен, если прежний срок ответа истёк.
func (d *RFQDispatcher) Reopen(ctx context.Context, tenantID, rfqID string, newDeadline *time.Time) (*model.RFQ, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	now := d.now()
	if newDeadline != nil && !newDeadline.After(now) {
		return nil, validationf("срок ответа должен быть в будущем")
	}

	var rfq *model.RFQ
	err := d.store.RunInTx(ctx, func(r *repository.Repositories) error {
		cur, err := r.RFQs.GetForUpdate(ctx, tenantID, rfqID)
		if err != nil {
			return err
		}
		if cur.Status != model.RFQStatusClosed {
			return conflictf("RFQ %s не закрыт", cur.RFQNumber)
		}
		if newDeadline != nil {
			cur.ResponseDeadline = newDeadline.UTC()
		}
		if !cur.ResponseDeadline.After(now) {
			return validationf("срок ответа истёк, укажите новый")
		}
		target := model.RFQStatusDraft
		if cur.SentAt != nil {
			target = model.RFQStatusSent
		}
		if err := lifecycle.CheckRFQ(cur.Status, target); err != nil {
			return err
		}
		cur.Status = target
		cur.ClosedAt = nil
		if err := r.RFQs.Update(ctx, cur); err != nil {
			return err
		}
		rfq = cur
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}

	d.logger.Info("RFQ открыт повторно",
		slog.String("tenant_id", tenantID),
		slog.String("rfq_id", rfqID),
		slog.String("status", rfq.Status),
	)
	return rfq, nil
}

// CloseExpired закрывает RFQ всех арендаторов с истёкшим сроком ответа.
// Закрытие каждого RFQ идёт в собственной транзакции с его арендатором.
func (d *RFQDispatcher) CloseExpired(ctx context.Context) (int, error) {
	expired, err := d.store.Repos().RFQs.ListExpired(ctx, d.now(), expiredBatchSize)
	if err != nil {
		return 0, fmt.Errorf("получение просроченных RFQ: %w", err)
	}

	closed := 0
	for _, rfq := range expired {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		_, changed, err := d.close(ctx, rfq.TenantID, rfq.ID, true)
		if err != nil {
			d.logger.Warn("Не удалось закрыть просроченный RFQ",
				slog.String("tenant_id", rfq.TenantID),
				slog.String("rfq_id", rfq.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if changed {
			closed++
			rfqExpiredTotal.Inc()
		}
	}
	return closed, nil
}
