// boq_ledger.go — ведомость объёмов работ (BOQ) тендера.
//
// Структурные изменения (добавление, удаление, переупорядочивание) выполняются
// в транзакции под блокировкой строки ведомости тендера (boq_ledgers), поэтому
// row_order = max + 1 не даёт дубликатов при параллельных добавлениях.
// FinalRate пересчитывается при каждой записи и клиентом не задаётся.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/pricing"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

// Источники добавления позиций (метка метрики).
const (
	appendSourceManual    = "manual"
	appendSourceGenerator = "generator"
)

// BOQItemInput — поля новой позиции.
type BOQItemInput struct {
	ItemNumber          string
	Description         string
	Specifications      *string
	HSNCode             *string
	Quantity            decimal.Decimal
	Unit                string
	SuggestedRate       *decimal.Decimal
	SuggestedRateSource *string
	ManualRate          *decimal.Decimal
	// GSTPercent — nil означает ставку по умолчанию
	GSTPercent         *decimal.Decimal
	MatchedProductID   *string
	MatchingConfidence *float64
	Notes              *string
}

// BOQItemPatch — частичное обновление позиции.
// nil-указатель — поле не меняется; ставки можно очистить явным null.
type BOQItemPatch struct {
	ItemNumber     *string
	Description    *string
	Specifications *string
	HSNCode        *string
	Quantity       *decimal.Decimal
	Unit           *string
	SuggestedRate  model.OptionalDecimal
	ManualRate     model.OptionalDecimal
	GSTPercent     *decimal.Decimal
	Notes          *string
	// ExpectedVersion — версия позиции, на которой основано изменение
	ExpectedVersion *int
}

// LedgerView — позиции тендера со сводкой.
type LedgerView struct {
	TenderID string
	Items    []*model.BOQItem
	Summary  model.BOQSummary
	// Version — версия ведомости для переупорядочивания
	Version int64
}

// BOQLedgerService — операции над ведомостью тендера.
type BOQLedgerService struct {
	store      repository.Store
	tenders    *TenderDirectory
	defaultGST decimal.Decimal
	logger     *slog.Logger
}

// NewBOQLedgerService создаёт сервис ведомости.
func NewBOQLedgerService(
	store repository.Store,
	tenders *TenderDirectory,
	defaultGST decimal.Decimal,
	logger *slog.Logger,
) *BOQLedgerService {
	return &BOQLedgerService{
		store:      store,
		tenders:    tenders,
		defaultGST: defaultGST,
		logger:     logger.With(slog.String("component", "boq_ledger")),
	}
}

// ListForTender возвращает позиции тендера по возрастанию row_order со сводкой.
func (s *BOQLedgerService) ListForTender(ctx context.Context, tenantID, tenderID string) (*LedgerView, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if _, err := s.tenders.Get(ctx, tenantID, tenderID); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	items, err := repos.BOQItems.ListByTender(ctx, tenantID, tenderID)
	if err != nil {
		return nil, mapRepoError(err, msgItemNotFound)
	}
	version, err := repos.Ledgers.Version(ctx, tenantID, tenderID)
	if err != nil {
		return nil, mapRepoError(err, msgItemNotFound)
	}
	if items == nil {
		items = []*model.BOQItem{}
	}

	return &LedgerView{
		TenderID: tenderID,
		Items:    items,
		Summary:  pricing.Summarize(items),
		Version:  version,
	}, nil
}

// Append добавляет позицию в конец ведомости тендера.
func (s *BOQLedgerService) Append(ctx context.Context, tenantID, tenderID string, in BOQItemInput) (*model.BOQItem, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	item, err := s.buildItem(tenantID, tenderID, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.tenders.Get(ctx, tenantID, tenderID); err != nil {
		return nil, err
	}
	if err := s.appendItem(ctx, item, appendSourceManual); err != nil {
		return nil, err
	}
	return item, nil
}

// buildItem валидирует ввод и собирает позицию с вычисленной FinalRate.
func (s *BOQLedgerService) buildItem(tenantID, tenderID string, in BOQItemInput) (*model.BOQItem, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, validationf("описание позиции обязательно")
	}
	if err := pricing.ValidateQuantity(in.Quantity); err != nil {
		return nil, validationf("%v", err)
	}
	gst := s.defaultGST
	if in.GSTPercent != nil {
		gst = *in.GSTPercent
	}
	if err := pricing.ValidateGST(gst); err != nil {
		return nil, validationf("%v", err)
	}
	if err := pricing.ValidateRate(in.SuggestedRate); err != nil {
		return nil, validationf("предлагаемая ставка: %v", err)
	}
	if err := pricing.ValidateRate(in.ManualRate); err != nil {
		return nil, validationf("ручная ставка: %v", err)
	}
	if in.MatchingConfidence != nil && (*in.MatchingConfidence < 0 || *in.MatchingConfidence > 1) {
		return nil, validationf("уверенность сопоставления должна быть в диапазоне [0, 1]")
	}

	source := in.SuggestedRateSource
	if in.SuggestedRate != nil && source == nil {
		v := model.RateSourceUserInput
		source = &v
	}
	if in.SuggestedRate == nil {
		source = nil
	}

	item := &model.BOQItem{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		TenderID:            tenderID,
		ItemNumber:          strings.TrimSpace(in.ItemNumber),
		Description:         description,
		Specifications:      in.Specifications,
		HSNCode:             in.HSNCode,
		Quantity:            in.Quantity,
		Unit:                strings.TrimSpace(in.Unit),
		SuggestedRate:       in.SuggestedRate,
		SuggestedRateSource: source,
		ManualRate:          in.ManualRate,
		GSTPercent:          gst,
		MatchedProductID:    in.MatchedProductID,
		MatchingConfidence:  in.MatchingConfidence,
		Notes:               in.Notes,
	}
	pricing.Apply(item)
	return item, nil
}

// appendItem вставляет подготовленную позицию под блокировкой ведомости.
func (s *BOQLedgerService) appendItem(ctx context.Context, item *model.BOQItem, source string) error {
	err := s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		if _, err := r.Ledgers.Lock(ctx, item.TenantID, item.TenderID); err != nil {
			return err
		}
		maxOrder, err := r.BOQItems.MaxRowOrder(ctx, item.TenantID, item.TenderID)
		if err != nil {
			return err
		}
		item.RowOrder = maxOrder + 1
		if err := r.BOQItems.Create(ctx, item); err != nil {
			return err
		}
		_, err = r.Ledgers.Bump(ctx, item.TenantID, item.TenderID)
		return err
	})
	if err != nil {
		return mapRepoError(err, msgItemNotFound)
	}

	boqItemsAppendedTotal.WithLabelValues(source).Inc()
	s.logger.Info("Позиция BOQ добавлена",
		slog.String("tenant_id", item.TenantID),
		slog.String("tender_id", item.TenderID),
		slog.String("item_id", item.ID),
		slog.Int("row_order", item.RowOrder),
		slog.String("source", source),
	)
	return nil
}

// Update применяет частичное обновление и пересчитывает FinalRate.
// Ручная ставка снимает выбор КП с позиции.
func (s *BOQLedgerService) Update(ctx context.Context, tenantID, itemID string, patch BOQItemPatch) (*model.BOQItem, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var (
		updated  *model.BOQItem
		rejected string
	)
	err := s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		head, err := r.BOQItems.GetByID(ctx, tenantID, itemID)
		if err != nil {
			return err
		}
		// ведомость блокируется раньше позиции, как при выборе КП
		if _, err := r.Ledgers.Lock(ctx, tenantID, head.TenderID); err != nil {
			return err
		}
		item, err := r.BOQItems.GetForUpdate(ctx, tenantID, itemID)
		if err != nil {
			return err
		}
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != item.Version {
			return conflictf("позиция изменена: версия %d, ожидалась %d", item.Version, *patch.ExpectedVersion)
		}
		applyPatch(item, patch)
		if err := r.BOQItems.Update(ctx, item); err != nil {
			return err
		}
		if patch.ManualRate.Set {
			if rejected, err = releaseSelection(ctx, r, tenantID, item.ID); err != nil {
				return err
			}
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, msgItemNotFound)
	}

	s.logger.Info("Позиция BOQ обновлена",
		slog.String("tenant_id", tenantID),
		slog.String("item_id", itemID),
		slog.Int("version", updated.Version),
	)
	s.logReleased(tenantID, itemID, rejected)
	return updated, nil
}

// logReleased фиксирует КП, отклонённое после снятия с позиции последнего выбора.
func (s *BOQLedgerService) logReleased(tenantID, itemID, quoteID string) {
	if quoteID == "" {
		return
	}
	s.logger.Info("КП отклонено: не осталось выбранных позиций",
		slog.String("tenant_id", tenantID),
		slog.String("item_id", itemID),
		slog.String("quote_id", quoteID),
	)
}

// validatePatch проверяет изменяемые поля до обращения к хранилищу.
func validatePatch(p BOQItemPatch) error {
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return validationf("описание позиции обязательно")
	}
	if p.Quantity != nil {
		if err := pricing.ValidateQuantity(*p.Quantity); err != nil {
			return validationf("%v", err)
		}
	}
	if p.GSTPercent != nil {
		if err := pricing.ValidateGST(*p.GSTPercent); err != nil {
			return validationf("%v", err)
		}
	}
	if err := pricing.ValidateRate(p.SuggestedRate.Value); err != nil {
		return validationf("предлагаемая ставка: %v", err)
	}
	if err := pricing.ValidateRate(p.ManualRate.Value); err != nil {
		return validationf("ручная ставка: %v", err)
	}
	return nil
}

// applyPatch переносит заданные поля в позицию и пересчитывает FinalRate.
func applyPatch(item *model.BOQItem, p BOQItemPatch) {
	if p.ItemNumber != nil {
		item.ItemNumber = strings.TrimSpace(*p.ItemNumber)
	}
	if p.Description != nil {
		item.Description = strings.TrimSpace(*p.Description)
	}
	if p.Specifications != nil {
		item.Specifications = p.Specifications
	}
	if p.HSNCode != nil {
		item.HSNCode = p.HSNCode
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		item.Unit = strings.TrimSpace(*p.Unit)
	}
	if p.GSTPercent != nil {
		item.GSTPercent = *p.GSTPercent
	}
	if p.Notes != nil {
		item.Notes = p.Notes
	}
	if p.SuggestedRate.Set {
		item.SuggestedRate = p.SuggestedRate.Value
		if p.SuggestedRate.Value != nil {
			src := model.RateSourceUserInput
			item.SuggestedRateSource = &src
		} else {
			item.SuggestedRateSource = nil
		}
	}
	if p.ManualRate.Set {
		item.ManualRate = p.ManualRate.Value
		// ручная правка отменяет привязку к выбранному КП
		item.SelectedVendorQuoteID = nil
		if item.SuggestedRateSource != nil && strings.HasPrefix(*item.SuggestedRateSource, model.RateSourceVendorQuotePrefix) {
			src := model.RateSourceUserInput
			item.SuggestedRateSource = &src
		}
	}
	pricing.Apply(item)
}

// Remove мягко удаляет позицию; row_order остальных позиций не меняется.
// Выбор КП для позиции снимается.
func (s *BOQLedgerService) Remove(ctx context.Context, tenantID, itemID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	var tenderID, rejected string
	err := s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		item, err := r.BOQItems.GetByID(ctx, tenantID, itemID)
		if err != nil {
			return err
		}
		tenderID = item.TenderID
		if _, err := r.Ledgers.Lock(ctx, tenantID, tenderID); err != nil {
			return err
		}
		if err := r.BOQItems.SoftDelete(ctx, tenantID, itemID); err != nil {
			return err
		}
		if rejected, err = releaseSelection(ctx, r, tenantID, itemID); err != nil {
			return err
		}
		_, err = r.Ledgers.Bump(ctx, tenantID, tenderID)
		return err
	})
	if err != nil {
		return mapRepoError(err, msgItemNotFound)
	}

	s.logger.Info("Позиция BOQ удалена",
		slog.String("tenant_id", tenantID),
		slog.String("tender_id", tenderID),
		slog.String("item_id", itemID),
	)
	s.logReleased(tenantID, itemID, rejected)
	return nil
}

// Reorder переписывает row_order позиций тендера в 1..N по порядку orderedIDs.
// Дубликаты — ErrValidation; расхождение с набором позиций или устаревшая
// версия ведомости — ErrConflict. Изменение атомарно.
func (s *BOQLedgerService) Reorder(ctx context.Context, tenantID, tenderID string, orderedIDs []string, expectedVersion *int64) ([]*model.BOQItem, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if len(orderedIDs) == 0 {
		return nil, validationf("список позиций пуст")
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return nil, validationf("позиция %s указана повторно", id)
		}
		seen[id] = struct{}{}
	}
	if _, err := s.tenders.Get(ctx, tenantID, tenderID); err != nil {
		return nil, err
	}

	var items []*model.BOQItem
	err := s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		version, err := r.Ledgers.Lock(ctx, tenantID, tenderID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != version {
			return conflictf("ведомость изменена: версия %d, ожидалась %d", version, *expectedVersion)
		}
		if err := r.BOQItems.Renumber(ctx, tenantID, tenderID, orderedIDs); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return conflictf("список не совпадает с текущими позициями тендера")
			}
			return err
		}
		if _, err := r.Ledgers.Bump(ctx, tenantID, tenderID); err != nil {
			return err
		}
		items, err = r.BOQItems.ListByTender(ctx, tenantID, tenderID)
		return err
	})
	if err != nil {
		return nil, mapRepoError(err, msgItemNotFound)
	}

	s.logger.Info("Позиции BOQ переупорядочены",
		slog.String("tenant_id", tenantID),
		slog.String("tender_id", tenderID),
		slog.Int("count", len(items)),
	)
	return items, nil
}
