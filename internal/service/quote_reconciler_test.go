package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

// sentRFQ создаёт и отправляет RFQ поставщикам по email.
func sentRFQ(t *testing.T, env *testEnv, vendors ...string) *model.RFQ {
	t.Helper()
	rfq := newRFQ(t, env, vendors...)
	sent, err := env.dispatcher.Send(context.Background(), tenantA, rfq.ID, SendInput{Channels: []string{"email"}})
	if err != nil {
		t.Fatalf("Send ошибка: %v", err)
	}
	return sent
}

// quoteLines — три строки КП со ставками 100, 250 и 400.
func quoteLines() []model.QuoteLine {
	return []model.QuoteLine{
		{Description: "Мышь", Quantity: dec("10"), UnitRate: dec("100")},
		{Description: "Клавиатура", Quantity: dec("10"), UnitRate: dec("250")},
		{Description: "Монитор", Quantity: dec("5"), UnitRate: dec("400")},
	}
}

func recordQuote(t *testing.T, env *testEnv, vendorID string, rfqID *string, number string) *model.VendorQuote {
	t.Helper()
	env.putVendor(tenantA, vendorID, true)
	q, err := env.quotes.RecordQuote(context.Background(), tenantA, RecordQuoteInput{
		TenderID:    tender1,
		VendorID:    vendorID,
		RFQID:       rfqID,
		QuoteNumber: strPtr(number),
		Lines:       quoteLines(),
	})
	if err != nil {
		t.Fatalf("RecordQuote ошибка: %v", err)
	}
	return q
}

// TestQuoteReconciler_RecordQuote проверяет регистрацию КП по RFQ.
func TestQuoteReconciler_RecordQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := sentRFQ(t, env, "vendor-a")

	q := recordQuote(t, env, "vendor-a", &rfq.ID, "Q-001")
	if q.Status != model.QuoteStatusReceived {
		t.Errorf("Status = %s, ожидался received", q.Status)
	}
	if q.Currency != model.DefaultCurrency {
		t.Errorf("Currency = %s, ожидалась %s", q.Currency, model.DefaultCurrency)
	}
	// 10×100 + 10×250 + 5×400
	if !q.TotalAmount.Equal(dec("5500")) {
		t.Errorf("TotalAmount = %s, ожидалось 5500", q.TotalAmount)
	}

	got, _ := env.dispatcher.Get(ctx, tenantA, rfq.ID)
	if got.TotalResponses != 1 {
		t.Errorf("TotalResponses = %d, ожидался 1", got.TotalResponses)
	}

	// повтор того же КП не создаёт дубликат
	again := recordQuote(t, env, "vendor-a", &rfq.ID, "Q-001")
	if again.ID != q.ID {
		t.Errorf("повтор вернул новое КП %s, ожидалось %s", again.ID, q.ID)
	}
	got, _ = env.dispatcher.Get(ctx, tenantA, rfq.ID)
	if got.TotalResponses != 1 {
		t.Errorf("TotalResponses = %d после повтора, ожидался 1", got.TotalResponses)
	}

	list, err := env.quotes.ListForTender(ctx, tenantA, tender1)
	if err != nil {
		t.Fatalf("ListForTender ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("КП в списке = %d, ожидалось 1", len(list))
	}

	_, err = env.quotes.Get(ctx, tenantB, q.ID)
	assertErrorIs(t, err, ErrNotFound)
}

// TestQuoteReconciler_RecordQuoteClosedRFQ проверяет отказ по закрытому RFQ.
func TestQuoteReconciler_RecordQuoteClosedRFQ(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := sentRFQ(t, env, "vendor-a")
	if _, err := env.dispatcher.Close(ctx, tenantA, rfq.ID); err != nil {
		t.Fatalf("Close ошибка: %v", err)
	}

	_, err := env.quotes.RecordQuote(ctx, tenantA, RecordQuoteInput{
		TenderID: tender1, VendorID: "vendor-a", RFQID: &rfq.ID, Lines: quoteLines(),
	})
	assertErrorIs(t, err, ErrConflict)

	got, _ := env.dispatcher.Get(ctx, tenantA, rfq.ID)
	if got.TotalResponses != 0 {
		t.Errorf("TotalResponses = %d, ожидался 0", got.TotalResponses)
	}
}

// TestQuoteReconciler_RecordQuoteValidation проверяет отказы при регистрации.
func TestQuoteReconciler_RecordQuoteValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := sentRFQ(t, env, "vendor-a")
	draft := newRFQ(t, env, "vendor-a")
	env.putVendor(tenantA, "vendor-x", true)
	missing := "missing-rfq"

	tests := []struct {
		name string
		in   RecordQuoteInput
		want error
	}{
		{"без поставщика", RecordQuoteInput{TenderID: tender1, Lines: quoteLines()}, ErrValidation},
		{"без строк и суммы", RecordQuoteInput{TenderID: tender1, VendorID: "vendor-a"}, ErrValidation},
		{"отрицательная ставка строки", RecordQuoteInput{TenderID: tender1, VendorID: "vendor-a", Lines: []model.QuoteLine{{Description: "x", Quantity: dec("1"), UnitRate: dec("-1")}}}, ErrValidation},
		{"строка без описания", RecordQuoteInput{TenderID: tender1, VendorID: "vendor-a", Lines: []model.QuoteLine{{Quantity: dec("1"), UnitRate: dec("1")}}}, ErrValidation},
		{"неизвестный поставщик", RecordQuoteInput{TenderID: tender1, VendorID: "nobody", Lines: quoteLines()}, ErrValidation},
		{"поставщик не из RFQ", RecordQuoteInput{TenderID: tender1, VendorID: "vendor-x", RFQID: &rfq.ID, Lines: quoteLines()}, ErrValidation},
		{"RFQ другого тендера", RecordQuoteInput{TenderID: tender2, VendorID: "vendor-a", RFQID: &rfq.ID, Lines: quoteLines()}, ErrValidation},
		{"неизвестный RFQ", RecordQuoteInput{TenderID: tender1, VendorID: "vendor-a", RFQID: &missing, Lines: quoteLines()}, ErrNotFound},
		{"RFQ не отправлен", RecordQuoteInput{TenderID: tender1, VendorID: "vendor-a", RFQID: &draft.ID, Lines: quoteLines()}, ErrConflict},
		{"чужой тендер", RecordQuoteInput{TenderID: "tender-b1", VendorID: "vendor-a", Lines: quoteLines()}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.quotes.RecordQuote(ctx, tenantA, tt.in)
			assertErrorIs(t, err, tt.want)
		})
	}
}

// TestQuoteReconciler_RecordQuoteExpiredRFQ проверяет отказ после срока ответа.
func TestQuoteReconciler_RecordQuoteExpiredRFQ(t *testing.T) {
	env := newTestEnv(t)
	rfq := sentRFQ(t, env, "vendor-a")
	env.quotes.now = func() time.Time { return time.Now().UTC().Add(72 * time.Hour) }

	_, err := env.quotes.RecordQuote(context.Background(), tenantA, RecordQuoteInput{
		TenderID: tender1, VendorID: "vendor-a", RFQID: &rfq.ID, Lines: quoteLines(),
	})
	assertErrorIs(t, err, ErrConflict)
}

// TestQuoteReconciler_SelectQuote проверяет перенос ставки и вытеснение прежнего КП.
func TestQuoteReconciler_SelectQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lineX := env.appendItem(t, tenantA, tender1, "Клавиатура", 10)

	first := recordQuote(t, env, "vendor-a", nil, "A-1")
	second := recordQuote(t, env, "vendor-b", nil, "B-1")

	res, err := env.quotes.SelectQuote(ctx, tenantA, first.ID, SelectInput{
		Mappings: []QuoteMapping{{BOQItemID: lineX.ID, LineIndex: 0}},
	})
	if err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}
	if res.Quote.Status != model.QuoteStatusSelected {
		t.Errorf("Status = %s, ожидался selected", res.Quote.Status)
	}

	res, err = env.quotes.SelectQuote(ctx, tenantA, second.ID, SelectInput{
		Mappings: []QuoteMapping{{BOQItemID: lineX.ID, LineIndex: 1}},
	})
	if err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}

	view, err := env.ledger.ListForTender(ctx, tenantA, tender1)
	if err != nil {
		t.Fatalf("ListForTender ошибка: %v", err)
	}
	item := view.Items[0]
	assertDecimal(t, "FinalRate", item.FinalRate, "250")
	assertDecimal(t, "ManualRate", item.ManualRate, "250")
	if item.SelectedVendorQuoteID == nil || *item.SelectedVendorQuoteID != second.ID {
		t.Errorf("SelectedVendorQuoteID = %v, ожидался %s", item.SelectedVendorQuoteID, second.ID)
	}
	if item.SuggestedRateSource == nil || *item.SuggestedRateSource != "vendor_quote:vendor-b" {
		t.Errorf("SuggestedRateSource = %v, ожидался vendor_quote:vendor-b", item.SuggestedRateSource)
	}

	prev, _ := env.quotes.Get(ctx, tenantA, first.ID)
	if prev.Status != model.QuoteStatusRejected {
		t.Errorf("прежнее КП в статусе %s, ожидался rejected", prev.Status)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != first.ID {
		t.Errorf("Rejected = %v, ожидался [%s]", res.Rejected, first.ID)
	}
}

// TestQuoteReconciler_SelectKeepsQuoteWithOtherLines проверяет, что КП,
// выбранное для других позиций, при вытеснении с одной позиции остаётся selected.
func TestQuoteReconciler_SelectKeepsQuoteWithOtherLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.appendItem(t, tenantA, tender1, "Мышь", 10)
	y := env.appendItem(t, tenantA, tender1, "Монитор", 5)

	first := recordQuote(t, env, "vendor-a", nil, "A-1")
	second := recordQuote(t, env, "vendor-b", nil, "B-1")

	if _, err := env.quotes.SelectQuote(ctx, tenantA, first.ID, SelectInput{
		Mappings: []QuoteMapping{{BOQItemID: x.ID, LineIndex: 0}, {BOQItemID: y.ID, LineIndex: 2}},
	}); err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}
	res, err := env.quotes.SelectQuote(ctx, tenantA, second.ID, SelectInput{
		Mappings: []QuoteMapping{{BOQItemID: x.ID, LineIndex: 0}},
	})
	if err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}
	if len(res.Rejected) != 0 {
		t.Errorf("Rejected = %v, ожидался пустой", res.Rejected)
	}
	prev, _ := env.quotes.Get(ctx, tenantA, first.ID)
	if prev.Status != model.QuoteStatusSelected {
		t.Errorf("КП за позицией Y в статусе %s, ожидался selected", prev.Status)
	}

	_, err = env.quotes.Reject(ctx, tenantA, first.ID)
	assertErrorIs(t, err, ErrConflict)
}

// TestQuoteReconciler_SelectValidation проверяет отказы выбора.
func TestQuoteReconciler_SelectValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.appendItem(t, tenantA, tender1, "Мышь", 10)
	foreign := env.appendItem(t, tenantA, tender2, "Коммутатор", 1)
	q := recordQuote(t, env, "vendor-a", nil, "A-1")

	tests := []struct {
		name string
		in   SelectInput
		want error
	}{
		{"пустой выбор", SelectInput{}, ErrValidation},
		{"индекс за пределами", SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID, LineIndex: 3}}}, ErrValidation},
		{"отрицательный индекс", SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID, LineIndex: -1}}}, ErrValidation},
		{"повтор позиции", SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID, LineIndex: 0}, {BOQItemID: x.ID, LineIndex: 1}}}, ErrValidation},
		{"позиция другого тендера", SelectInput{Mappings: []QuoteMapping{{BOQItemID: foreign.ID, LineIndex: 0}}}, ErrValidation},
		{"устаревшая версия", SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID, LineIndex: 0}}, ExpectedVersion: intPtr(q.Version + 1)}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.quotes.SelectQuote(ctx, tenantA, q.ID, tt.in)
			assertErrorIs(t, err, tt.want)
		})
	}

	view, _ := env.ledger.ListForTender(ctx, tenantA, tender1)
	if view.Items[0].SelectedVendorQuoteID != nil {
		t.Error("неудачный выбор изменил позицию")
	}

	_, err := env.quotes.SelectQuote(ctx, tenantB, q.ID, SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID}}})
	assertErrorIs(t, err, ErrNotFound)

	if _, err := env.quotes.Reject(ctx, tenantA, q.ID); err != nil {
		t.Fatalf("Reject ошибка: %v", err)
	}
	_, err = env.quotes.SelectQuote(ctx, tenantA, q.ID, SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID}}})
	assertErrorIs(t, err, ErrConflict)
}

// TestQuoteReconciler_StatusChanges проверяет рассмотрение и отклонение.
func TestQuoteReconciler_StatusChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := recordQuote(t, env, "vendor-a", nil, "A-1")

	reviewed, err := env.quotes.MarkUnderReview(ctx, tenantA, q.ID)
	if err != nil {
		t.Fatalf("MarkUnderReview ошибка: %v", err)
	}
	if reviewed.Status != model.QuoteStatusUnderReview {
		t.Errorf("Status = %s, ожидался under_review", reviewed.Status)
	}
	if _, err := env.quotes.MarkUnderReview(ctx, tenantA, q.ID); err != nil {
		t.Errorf("повторный MarkUnderReview ошибка: %v", err)
	}

	rejected, err := env.quotes.Reject(ctx, tenantA, q.ID)
	if err != nil {
		t.Fatalf("Reject ошибка: %v", err)
	}
	if rejected.Status != model.QuoteStatusRejected {
		t.Errorf("Status = %s, ожидался rejected", rejected.Status)
	}

	_, err = env.quotes.Reject(ctx, tenantB, q.ID)
	assertErrorIs(t, err, ErrNotFound)
}

// TestQuoteReconciler_ListForRFQ проверяет выборку КП по RFQ: КП без RFQ
// и чужой арендатор в неё не попадают.
func TestQuoteReconciler_ListForRFQ(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rfq := sentRFQ(t, env, "vendor-a", "vendor-b")
	first := recordQuote(t, env, "vendor-a", &rfq.ID, "A-1")
	second := recordQuote(t, env, "vendor-b", &rfq.ID, "B-1")
	recordQuote(t, env, "vendor-c", nil, "C-1")

	list, err := env.quotes.ListForRFQ(ctx, tenantA, rfq.ID)
	if err != nil {
		t.Fatalf("ListForRFQ ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("КП по RFQ = %d, ожидалось 2", len(list))
	}
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Errorf("КП по RFQ = %v, ожидались %s и %s", ids, first.ID, second.ID)
	}

	empty := newRFQ(t, env, "vendor-a")
	list, err = env.quotes.ListForRFQ(ctx, tenantA, empty.ID)
	if err != nil {
		t.Fatalf("ListForRFQ ошибка: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("ожидался пустой список (не nil), получено %v", list)
	}

	_, err = env.quotes.ListForRFQ(ctx, tenantB, rfq.ID)
	assertErrorIs(t, err, ErrNotFound)
	_, err = env.quotes.ListForRFQ(ctx, tenantA, "missing")
	assertErrorIs(t, err, ErrNotFound)
}

// TestQuoteReconciler_ManualOverrideClearsSelection проверяет, что ручная
// ставка снимает привязку позиции к КП.
func TestQuoteReconciler_ManualOverrideClearsSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.appendItem(t, tenantA, tender1, "Мышь", 10)
	q := recordQuote(t, env, "vendor-a", nil, "A-1")
	if _, err := env.quotes.SelectQuote(ctx, tenantA, q.ID, SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID}}}); err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}

	updated, err := env.ledger.Update(ctx, tenantA, x.ID, BOQItemPatch{ManualRate: model.SetDecimal(dec("95"))})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}
	if updated.SelectedVendorQuoteID != nil {
		t.Errorf("SelectedVendorQuoteID = %s, ожидался nil", *updated.SelectedVendorQuoteID)
	}
	assertDecimal(t, "FinalRate", updated.FinalRate, "95")
	if updated.SuggestedRateSource == nil || *updated.SuggestedRateSource != model.RateSourceUserInput {
		t.Errorf("SuggestedRateSource = %v, ожидался %s", updated.SuggestedRateSource, model.RateSourceUserInput)
	}

	assertSelectionReleased(t, env, x.ID, q.ID)
}

// TestQuoteReconciler_RemovedItemReleasesSelection проверяет, что удаление
// позиции снимает с неё выбор КП.
func TestQuoteReconciler_RemovedItemReleasesSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.appendItem(t, tenantA, tender1, "Мышь", 10)
	q := recordQuote(t, env, "vendor-a", nil, "A-1")
	if _, err := env.quotes.SelectQuote(ctx, tenantA, q.ID, SelectInput{Mappings: []QuoteMapping{{BOQItemID: x.ID}}}); err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}

	if err := env.ledger.Remove(ctx, tenantA, x.ID); err != nil {
		t.Fatalf("Remove ошибка: %v", err)
	}

	assertSelectionReleased(t, env, x.ID, q.ID)
}

// TestQuoteReconciler_ReleaseKeepsQuoteWithOtherItems проверяет, что КП остаётся
// выбранным, пока за ним есть другие позиции.
func TestQuoteReconciler_ReleaseKeepsQuoteWithOtherItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.appendItem(t, tenantA, tender1, "Мышь", 10)
	y := env.appendItem(t, tenantA, tender1, "Клавиатура", 10)
	q := recordQuote(t, env, "vendor-a", nil, "A-1")
	mappings := []QuoteMapping{{BOQItemID: x.ID}, {BOQItemID: y.ID, LineIndex: 1}}
	if _, err := env.quotes.SelectQuote(ctx, tenantA, q.ID, SelectInput{Mappings: mappings}); err != nil {
		t.Fatalf("SelectQuote ошибка: %v", err)
	}

	if err := env.ledger.Remove(ctx, tenantA, x.ID); err != nil {
		t.Fatalf("Remove ошибка: %v", err)
	}

	got, err := env.quotes.Get(ctx, tenantA, q.ID)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if got.Status != model.QuoteStatusSelected {
		t.Errorf("Status = %s, ожидался selected", got.Status)
	}
	_, err = env.quotes.Reject(ctx, tenantA, q.ID)
	assertErrorIs(t, err, ErrConflict)
}

// assertSelectionReleased проверяет, что выбор снят, а КП без позиций отклонено.
func assertSelectionReleased(t *testing.T, env *testEnv, itemID, quoteID string) {
	t.Helper()
	ctx := context.Background()

	if _, err := env.store.Repos().Selections.GetByItem(ctx, tenantA, itemID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("выбор КП для позиции не снят: %v", err)
	}
	got, err := env.quotes.Get(ctx, tenantA, quoteID)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if got.Status != model.QuoteStatusRejected {
		t.Errorf("Status = %s, ожидался rejected", got.Status)
	}
	if _, err := env.quotes.Reject(ctx, tenantA, quoteID); err != nil {
		t.Errorf("Reject после снятия выбора: %v", err)
	}
}

func intPtr(v int) *int {
	return &v
}
