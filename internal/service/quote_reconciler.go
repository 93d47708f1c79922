// quote_reconciler.go — регистрация КП поставщиков и перенос выбранных цен в BOQ.
//
// Выбор КП для позиции — последняя запись побеждает: у позиции не более
// одного выбранного КП (quote_selections). Перенос ставок, смена выбора
// и статусов КП выполняются в одной транзакции под блокировкой ведомости.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/lifecycle"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/pricing"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

// RecordQuoteInput — поля нового КП.
type RecordQuoteInput struct {
	TenderID    string
	VendorID    string
	RFQID       *string
	QuoteNumber *string
	QuoteDate   *time.Time
	ValidUntil  *time.Time
	Currency    string
	// TotalAmount — nil означает сумму по строкам
	TotalAmount      *decimal.Decimal
	Lines            []model.QuoteLine
	PaymentTerms     *string
	DeliveryTerms    *string
	WarrantyTerms    *string
	QuoteDocumentURL *string
	InternalNotes    *string
}

// QuoteMapping — строка КП, выбранная для позиции BOQ.
type QuoteMapping struct {
	BOQItemID string
	// LineIndex — индекс строки КП (с нуля)
	LineIndex int
}

// SelectInput — параметры выбора КП.
type SelectInput struct {
	Mappings []QuoteMapping
	// ExpectedVersion — версия КП, на которой основан выбор
	ExpectedVersion *int
}

// SelectResult — итог выбора КП.
type SelectResult struct {
	Quote *model.VendorQuote
	Items []*model.BOQItem
	// Rejected — КП, потерявшие последнюю выбранную позицию
	Rejected []string
}

// QuoteReconciler — сервис КП поставщиков.
type QuoteReconciler struct {
	store   repository.Store
	tenders *TenderDirectory
	now     func() time.Time
	logger  *slog.Logger
}

// NewQuoteReconciler создаёт сервис КП.
func NewQuoteReconciler(store repository.Store, tenders *TenderDirectory, logger *slog.Logger) *QuoteReconciler {
	return &QuoteReconciler{
		store:   store,
		tenders: tenders,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "quote_reconciler")),
	}
}

// RecordQuote регистрирует КП в статусе received.
// С RFQ: RFQ должен быть отправлен и срок ответа не истёк, иначе ErrConflict.
// Повтор с тем же (поставщик, RFQ, номер КП) возвращает уже сохранённое КП.
func (s *QuoteReconciler) RecordQuote(ctx context.Context, tenantID string, in RecordQuoteInput) (*model.VendorQuote, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	quote, err := s.buildQuote(tenantID, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.tenders.Get(ctx, tenantID, in.TenderID); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	if _, err := repos.Catalog.GetVendor(ctx, tenantID, quote.VendorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validationf("%s: %s", msgVendorNotFound, quote.VendorID)
		}
		return nil, mapRepoError(err, msgVendorNotFound)
	}

	var (
		result  *model.VendorQuote
		created bool
	)
	err = s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		if quote.QuoteNumber != nil {
			existing, err := r.Quotes.FindByNumber(ctx, tenantID, quote.VendorID, quote.RFQID, *quote.QuoteNumber)
			if err == nil {
				result = existing
				return nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		for i, line := range quote.Lines {
			if line.BOQItemID == nil {
				continue
			}
			item, err := r.BOQItems.GetByID(ctx, tenantID, *line.BOQItemID)
			if errors.Is(err, repository.ErrNotFound) || (err == nil && item.TenderID != quote.TenderID) {
				return validationf("строка %d: позиция %s не найдена в ведомости тендера", i, *line.BOQItemID)
			}
			if err != nil {
				return err
			}
		}

		var rfq *model.RFQ
		if quote.RFQID != nil {
			cur, err := r.RFQs.GetForUpdate(ctx, tenantID, *quote.RFQID)
			if errors.Is(err, repository.ErrNotFound) {
				return notFound(msgRFQNotFound)
			}
			if err != nil {
				return err
			}
			if err := checkAcceptsQuote(cur, quote, s.now()); err != nil {
				return err
			}
			rfq = cur
		}

		if err := r.Quotes.Create(ctx, quote); err != nil {
			return err
		}
		if rfq != nil {
			rfq.TotalResponses++
			if err := r.RFQs.Update(ctx, rfq); err != nil {
				return err
			}
		}
		result = quote
		created = true
		return nil
	})
	if errors.Is(err, repository.ErrConflict) && quote.QuoteNumber != nil {
		// Параллельная регистрация того же КП успела раньше.
		existing, findErr := repos.Quotes.FindByNumber(ctx, tenantID, quote.VendorID, quote.RFQID, *quote.QuoteNumber)
		if findErr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, mapRepoError(err, msgQuoteNotFound)
	}

	if created {
		vendorQuotesRecordedTotal.Inc()
		s.logger.Info("КП зарегистрировано",
			slog.String("tenant_id", tenantID),
			slog.String("tender_id", result.TenderID),
			slog.String("quote_id", result.ID),
			slog.String("vendor_id", result.VendorID),
			slog.String("total_amount", result.TotalAmount.String()),
		)
	}
	return result, nil
}

// checkAcceptsQuote проверяет, что RFQ принимает КП от поставщика.
func checkAcceptsQuote(rfq *model.RFQ, q *model.VendorQuote, now time.Time) error {
	if rfq.TenderID != q.TenderID {
		return validationf("RFQ %s относится к другому тендеру", rfq.RFQNumber)
	}
	if !rfq.HasVendor(q.VendorID) {
		return validationf("поставщик %s не входит в RFQ %s", q.VendorID, rfq.RFQNumber)
	}
	if !lifecycle.AcceptsResponses(rfq.Status) {
		return conflictf("RFQ %s в статусе %s не принимает КП", rfq.RFQNumber, rfq.Status)
	}
	if !rfq.ResponseDeadline.After(now) {
		return conflictf("срок ответа по RFQ %s истёк", rfq.RFQNumber)
	}
	return nil
}

// buildQuote проверяет поля и собирает КП; сумма считается по строкам, если не задана.
func (s *QuoteReconciler) buildQuote(tenantID string, in RecordQuoteInput) (*model.VendorQuote, error) {
	tenderID := strings.TrimSpace(in.TenderID)
	vendorID := strings.TrimSpace(in.VendorID)
	if tenderID == "" {
		return nil, validationf("не указан тендер")
	}
	if vendorID == "" {
		return nil, validationf("не указан поставщик")
	}
	if len(in.Lines) == 0 && in.TotalAmount == nil {
		return nil, validationf("КП без строк должно содержать общую сумму")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = model.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, validationf("код валюты должен состоять из трёх букв: %q", in.Currency)
	}
	if in.QuoteDate != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.QuoteDate) {
		return nil, validationf("срок действия КП раньше даты КП")
	}

	lines := make([]model.QuoteLine, len(in.Lines))
	total := decimal.Zero
	for i, line := range in.Lines {
		line.Description = strings.TrimSpace(line.Description)
		if line.Description == "" {
			return nil, validationf("строка %d: описание обязательно", i)
		}
		if line.Quantity.IsNegative() {
			return nil, validationf("строка %d: %s", i, pricing.ErrNegativeQuantity.Error())
		}
		if line.UnitRate.IsNegative() {
			return nil, validationf("строка %d: %s", i, pricing.ErrNegativeRate.Error())
		}
		if line.LeadTimeDays != nil && *line.LeadTimeDays < 0 {
			return nil, validationf("строка %d: срок поставки не может быть отрицательным", i)
		}
		total = total.Add(line.UnitRate.Mul(line.Quantity))
		lines[i] = line
	}
	if in.TotalAmount != nil {
		if in.TotalAmount.IsNegative() {
			return nil, validationf("общая сумма КП не может быть отрицательной")
		}
		total = *in.TotalAmount
	}

	var quoteNumber *string
	if in.QuoteNumber != nil {
		if n := strings.TrimSpace(*in.QuoteNumber); n != "" {
			quoteNumber = &n
		}
	}

	return &model.VendorQuote{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		TenderID:         tenderID,
		VendorID:         vendorID,
		RFQID:            in.RFQID,
		QuoteNumber:      quoteNumber,
		QuoteDate:        in.QuoteDate,
		ValidUntil:       in.ValidUntil,
		Currency:         currency,
		TotalAmount:      total,
		Lines:            lines,
		PaymentTerms:     in.PaymentTerms,
		DeliveryTerms:    in.DeliveryTerms,
		WarrantyTerms:    in.WarrantyTerms,
		QuoteDocumentURL: in.QuoteDocumentURL,
		InternalNotes:    in.InternalNotes,
		Status:           model.QuoteStatusReceived,
	}, nil
}

// SelectQuote переносит цены выбранных строк КП в позиции BOQ.
// КП, у которых не осталось выбранных позиций, переводятся в rejected.
func (s *QuoteReconciler) SelectQuote(ctx context.Context, tenantID, quoteID string, in SelectInput) (*SelectResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := validateMappings(in.Mappings); err != nil {
		return nil, err
	}

	var result *SelectResult
	err := s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		// Порядок блокировок: ведомость тендера, затем КП и позиции.
		// Ручная правка и удаление позиций блокируют в том же порядке.
		head, err := r.Quotes.GetByID(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		if _, err := r.Ledgers.Lock(ctx, tenantID, head.TenderID); err != nil {
			return err
		}
		quote, err := r.Quotes.GetForUpdate(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		if in.ExpectedVersion != nil && *in.ExpectedVersion != quote.Version {
			return conflictf("КП изменено: версия %d, ожидалась %d", quote.Version, *in.ExpectedVersion)
		}
		if quote.Status == model.QuoteStatusRejected {
			return conflictf("КП отклонено, выбор невозможен")
		}
		for _, m := range in.Mappings {
			if m.LineIndex >= len(quote.Lines) {
				return validationf("в КП нет строки с индексом %d", m.LineIndex)
			}
		}

		source := model.RateSourceVendorQuotePrefix + quote.VendorID
		displaced := make(map[string]struct{})
		items := make([]*model.BOQItem, 0, len(in.Mappings))
		for _, m := range in.Mappings {
			item, err := r.BOQItems.GetForUpdate(ctx, tenantID, m.BOQItemID)
			if errors.Is(err, repository.ErrNotFound) || (err == nil && item.TenderID != quote.TenderID) {
				return validationf("позиция %s не найдена в ведомости тендера КП", m.BOQItemID)
			}
			if err != nil {
				return err
			}

			rate := quote.Lines[m.LineIndex].UnitRate
			item.ManualRate = &rate
			item.SuggestedRateSource = &source
			item.SelectedVendorQuoteID = &quote.ID
			pricing.Apply(item)
			if err := r.BOQItems.Update(ctx, item); err != nil {
				return err
			}
			items = append(items, item)

			prev, err := r.Selections.GetByItem(ctx, tenantID, item.ID)
			switch {
			case err == nil && prev.QuoteID != quote.ID:
				displaced[prev.QuoteID] = struct{}{}
			case err != nil && !errors.Is(err, repository.ErrNotFound):
				return err
			}
			if err := r.Selections.Upsert(ctx, &model.QuoteSelection{
				TenantID:       tenantID,
				BOQItemID:      item.ID,
				QuoteID:        quote.ID,
				QuoteLineIndex: m.LineIndex,
			}); err != nil {
				return err
			}
		}

		rejected := make([]string, 0, len(displaced))
		for prevID := range displaced {
			demoted, err := demoteIfUnused(ctx, r, tenantID, prevID)
			if err != nil {
				return err
			}
			if demoted {
				rejected = append(rejected, prevID)
			}
		}

		if err := lifecycle.CheckQuote(quote.Status, model.QuoteStatusSelected); err != nil {
			return err
		}
		selected, err := r.Quotes.UpdateStatus(ctx, tenantID, quote.ID, model.QuoteStatusSelected)
		if err != nil {
			return err
		}

		result = &SelectResult{Quote: selected, Items: items, Rejected: rejected}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, msgQuoteNotFound)
	}

	quoteSelectionsTotal.Add(float64(len(result.Items)))
	s.logger.Info("КП выбрано",
		slog.String("tenant_id", tenantID),
		slog.String("tender_id", result.Quote.TenderID),
		slog.String("quote_id", quoteID),
		slog.Int("items", len(result.Items)),
		slog.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// validateMappings отклоняет пустой выбор, отрицательные индексы и повторные позиции.
func validateMappings(mappings []QuoteMapping) error {
	if len(mappings) == 0 {
		return validationf("не указаны строки КП для позиций BOQ")
	}
	seen := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		id := strings.TrimSpace(m.BOQItemID)
		if id == "" {
			return validationf("не указана позиция BOQ")
		}
		if m.LineIndex < 0 {
			return validationf("индекс строки КП не может быть отрицательным")
		}
		if _, dup := seen[id]; dup {
			return validationf("позиция %s указана повторно", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// releaseSelection снимает выбор КП с позиции BOQ. Вызывается под блокировкой
// ведомости. Возвращает КП, переведённое в rejected (пустая строка — не переводилось).
func releaseSelection(ctx context.Context, r *repository.Repositories, tenantID, itemID string) (string, error) {
	quoteID, err := r.Selections.DeleteByItem(ctx, tenantID, itemID)
	if err != nil || quoteID == "" {
		return "", err
	}
	demoted, err := demoteIfUnused(ctx, r, tenantID, quoteID)
	if err != nil || !demoted {
		return "", err
	}
	return quoteID, nil
}

// demoteIfUnused переводит КП в rejected, если за ним не осталось выбранных позиций.
func demoteIfUnused(ctx context.Context, r *repository.Repositories, tenantID, quoteID string) (bool, error) {
	count, err := r.Selections.CountByQuote(ctx, tenantID, quoteID)
	if err != nil || count > 0 {
		return false, err
	}
	q, err := r.Quotes.GetForUpdate(ctx, tenantID, quoteID)
	if err != nil {
		return false, err
	}
	if q.Status == model.QuoteStatusRejected {
		return false, nil
	}
	if err := lifecycle.CheckQuote(q.Status, model.QuoteStatusRejected); err != nil {
		return false, err
	}
	if _, err := r.Quotes.UpdateStatus(ctx, tenantID, quoteID, model.QuoteStatusRejected); err != nil {
		return false, err
	}
	return true, nil
}

// MarkUnderReview переводит КП на рассмотрение.
func (s *QuoteReconciler) MarkUnderReview(ctx context.Context, tenantID, quoteID string) (*model.VendorQuote, error) {
	return s.changeStatus(ctx, tenantID, quoteID, model.QuoteStatusUnderReview)
}

// Reject отклоняет КП. КП, выбранное хотя бы для одной позиции, — ErrConflict.
func (s *QuoteReconciler) Reject(ctx context.Context, tenantID, quoteID string) (*model.VendorQuote, error) {
	return s.changeStatus(ctx, tenantID, quoteID, model.QuoteStatusRejected)
}

// changeStatus меняет статус КП; повтор текущего статуса не ошибка.
func (s *QuoteReconciler) changeStatus(ctx context.Context, tenantID, quoteID, status string) (*model.VendorQuote, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var quote *model.VendorQuote
	err := s.store.RunInTx(ctx, func(r *repository.Repositories) error {
		cur, err := r.Quotes.GetForUpdate(ctx, tenantID, quoteID)
		if err != nil {
			return err
		}
		if cur.Status == status {
			quote = cur
			return nil
		}
		if status == model.QuoteStatusRejected {
			count, err := r.Selections.CountByQuote(ctx, tenantID, quoteID)
			if err != nil {
				return err
			}
			if count > 0 {
				return conflictf("КП выбрано для %d позиций BOQ", count)
			}
		}
		if err := lifecycle.CheckQuote(cur.Status, status); err != nil {
			return err
		}
		quote, err = r.Quotes.UpdateStatus(ctx, tenantID, quoteID, status)
		return err
	})
	if err != nil {
		return nil, mapRepoError(err, msgQuoteNotFound)
	}

	s.logger.Info("Статус КП изменён",
		slog.String("tenant_id", tenantID),
		slog.String("quote_id", quoteID),
		slog.String("status", quote.Status),
	)
	return quote, nil
}

// Get возвращает КП арендатора.
func (s *QuoteReconciler) Get(ctx context.Context, tenantID, quoteID string) (*model.VendorQuote, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	q, err := s.store.Repos().Quotes.GetByID(ctx, tenantID, quoteID)
	if err != nil {
		return nil, mapRepoError(err, msgQuoteNotFound)
	}
	return q, nil
}

// ListForTender возвращает КП тендера, новые первыми.
func (s *QuoteReconciler) ListForTender(ctx context.Context, tenantID, tenderID string) ([]*model.VendorQuote, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if _, err := s.tenders.Get(ctx, tenantID, tenderID); err != nil {
		return nil, err
	}
	quotes, err := s.store.Repos().Quotes.ListByTender(ctx, tenantID, tenderID)
	if err != nil {
		return nil, mapRepoError(err, msgQuoteNotFound)
	}
	if quotes == nil {
		quotes = []*model.VendorQuote{}
	}
	return quotes, nil
}

// ListForRFQ возвращает КП, полученные в ответ на RFQ, новые первыми.
// Неизвестный или чужой RFQ — ErrNotFound.
func (s *QuoteReconciler) ListForRFQ(ctx context.Context, tenantID, rfqID string) ([]*model.VendorQuote, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	if _, err := repos.RFQs.GetByID(ctx, tenantID, rfqID); err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}
	quotes, err := repos.Quotes.ListByRFQ(ctx, tenantID, rfqID)
	if err != nil {
		return nil, mapRepoError(err, msgRFQNotFound)
	}
	if quotes == nil {
		quotes = []*model.VendorQuote{}
	}
	return quotes, nil
}
