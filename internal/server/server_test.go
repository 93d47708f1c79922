package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/api/handlers"
	"github.com/bigkaa/hexabid/costing-module/internal/api/middleware"
	"github.com/bigkaa/hexabid/costing-module/internal/delivery"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
	"github.com/bigkaa/hexabid/costing-module/internal/repository/memory"
	"github.com/bigkaa/hexabid/costing-module/internal/service"
	"github.com/bigkaa/hexabid/costing-module/internal/tenderclient"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
	tender1 = "tender-1"
)

// fakeTenders — подсистема тендеров: tender-1 принадлежит tenant-a.
type fakeTenders struct {
	mu  sync.Mutex
	err error
}

func (f *fakeTenders) GetTender(_ context.Context, tenantID, tenderID string) (*model.Tender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if tenderID != tender1 || tenantID != tenantA {
		return nil, tenderclient.ErrNotFound
	}
	return &model.Tender{
		ID:       tender1,
		TenantID: tenantA,
		Title:    "Поставка ноутбуков",
		ParsedItems: []model.ParsedItem{
			{ItemNumber: "1", Description: "Ноутбук 14 дюймов", Quantity: decimal.NewFromInt(5), Unit: "nos"},
		},
	}, nil
}

// staticChecker — ReadinessChecker с фиксированным ответом.
type staticChecker struct{ status string }

func (c staticChecker) CheckReady() (string, string) { return c.status, "" }

type testEnv struct {
	store   *memory.Store
	tenders *fakeTenders
	router  http.Handler
}

func newTestEnv(t *testing.T, checkers ...handlers.NamedChecker) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewStore(repository.Options{})
	tenders := &fakeTenders{}
	directory := service.NewTenderDirectory(tenders, 100, time.Minute)
	catalog := service.NewCatalogCache(store.Repos().Catalog, 10, time.Minute)
	matcher := matching.NewLexicalMatcher()
	ledger := service.NewBOQLedgerService(store, directory, model.DefaultGSTPercent, logger)

	api := handlers.NewAPIHandler(
		handlers.NewHealthHandler(checkers...),
		ledger,
		service.NewBOQGenerator(ledger, directory, catalog, matcher, 0.5, logger),
		service.NewProductMatchService(catalog, matcher, 10),
		service.NewRFQDispatcher(store, directory, delivery.NewNoopPublisher(logger), nil, logger),
		service.NewQuoteReconciler(store, directory, logger),
		logger,
	)
	resolver := middleware.NewTenantResolver("X-Tenant-ID", "", logger)

	return &testEnv{
		store:   store,
		tenders: tenders,
		router:  NewRouter(logger, api, nil, resolver),
	}
}

// do выполняет запрос к маршрутизатору. body == nil — без тела.
func (e *testEnv) do(t *testing.T, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("сериализация тела: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// expect проверяет статус и разбирает JSON-ответ в out (если out != nil).
func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, out any) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("статус = %d, ожидался %d, тело: %s", rec.Code, status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("ошибка разбора ответа: %v (%s)", err, rec.Body.String())
		}
	}
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	var body errorResponse
	expect(t, rec, status, &body)
	if body.Error.Code != code {
		t.Errorf("code = %q, ожидался %q (%s)", body.Error.Code, code, body.Error.Message)
	}
}

type itemJSON struct {
	ID                    string  `json:"id"`
	RowOrder              int     `json:"row_order"`
	Version               int     `json:"version"`
	FinalRate             *string `json:"final_rate"`
	ManualRate            *string `json:"manual_rate"`
	LineTotal             *string `json:"line_total"`
	SuggestedRateSource   *string `json:"suggested_rate_source"`
	SelectedVendorQuoteID *string `json:"selected_vendor_quote_id"`
}

type ledgerJSON struct {
	Items   []itemJSON `json:"items"`
	Version int64      `json:"version"`
	Summary struct {
		TotalItems    int    `json:"total_items"`
		UnpricedItems int    `json:"unpriced_items"`
		Subtotal      string `json:"subtotal"`
		TotalTax      string `json:"total_tax"`
		GrandTotal    string `json:"grand_total"`
	} `json:"summary"`
}

func (e *testEnv) appendItem(t *testing.T, description, quantity string, manualRate *string) itemJSON {
	t.Helper()
	body := map[string]any{"description": description, "quantity": quantity, "unit": "nos"}
	if manualRate != nil {
		body["manual_rate"] = *manualRate
	}
	var item itemJSON
	expect(t, e.do(t, http.MethodPost, "/api/v1/boq/tender/"+tender1+"/items", tenantA, body), http.StatusCreated, &item)
	return item
}

func strPtr(s string) *string { return &s }

// TestRouter_Health проверяет health endpoints и метрики.
func TestRouter_Health(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		env := newTestEnv(t)
		var body struct {
			Status  string `json:"status"`
			Service string `json:"service"`
		}
		expect(t, env.do(t, http.MethodGet, "/health/live", "", nil), http.StatusOK, &body)
		if body.Status != "ok" || body.Service != "costing-module" {
			t.Errorf("ответ = %+v", body)
		}
	})

	t.Run("ready degraded", func(t *testing.T) {
		env := newTestEnv(t,
			handlers.NamedChecker{Name: "postgresql", Checker: staticChecker{"ok"}},
			handlers.NamedChecker{Name: "redis", Checker: staticChecker{"degraded"}},
		)
		var body struct {
			Status string                       `json:"status"`
			Checks map[string]map[string]string `json:"checks"`
		}
		expect(t, env.do(t, http.MethodGet, "/health/ready", "", nil), http.StatusOK, &body)
		if body.Status != "degraded" {
			t.Errorf("status = %s, ожидался degraded", body.Status)
		}
		if body.Checks["postgresql"]["status"] != "ok" {
			t.Errorf("checks = %+v", body.Checks)
		}
	})

	t.Run("ready fail", func(t *testing.T) {
		env := newTestEnv(t, handlers.NamedChecker{Name: "postgresql", Checker: nil})
		expect(t, env.do(t, http.MethodGet, "/health/ready", "", nil), http.StatusServiceUnavailable, nil)
	})

	t.Run("metrics без арендатора", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/metrics", "", nil)
		expect(t, rec, http.StatusOK, nil)
		if !bytes.Contains(rec.Body.Bytes(), []byte("cm_http_requests_total")) {
			t.Error("метрика cm_http_requests_total не найдена")
		}
	})
}

// TestRouter_TenantRequired проверяет отказ API без арендатора.
func TestRouter_TenantRequired(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/boq/tender/"+tender1, "", nil),
		http.StatusBadRequest, "TENANT_REQUIRED")
}

// TestRouter_BOQFlow проверяет жизненный цикл ведомости через HTTP.
func TestRouter_BOQFlow(t *testing.T) {
	env := newTestEnv(t)

	first := env.appendItem(t, "Ноутбук", "2", strPtr("1000"))
	second := env.appendItem(t, "Мышь", "3", nil)
	if first.RowOrder != 1 || second.RowOrder != 2 {
		t.Fatalf("row_order = %d, %d", first.RowOrder, second.RowOrder)
	}
	if first.FinalRate == nil || *first.FinalRate != "1000" || *first.LineTotal != "2000" {
		t.Errorf("первая позиция = %+v", first)
	}

	var ledger ledgerJSON
	expect(t, env.do(t, http.MethodGet, "/api/v1/boq/tender/"+tender1, tenantA, nil), http.StatusOK, &ledger)
	if ledger.Summary.TotalItems != 2 || ledger.Summary.UnpricedItems != 1 {
		t.Errorf("summary = %+v", ledger.Summary)
	}
	if ledger.Summary.Subtotal != "2000" || ledger.Summary.TotalTax != "360" || ledger.Summary.GrandTotal != "2360" {
		t.Errorf("summary = %+v", ledger.Summary)
	}

	// null очищает ручную ставку, отсутствующие поля не меняются
	var patched itemJSON
	expect(t, env.do(t, http.MethodPatch, "/api/v1/boq/items/"+first.ID, tenantA,
		map[string]any{"manual_rate": nil, "suggested_rate": "800"}), http.StatusOK, &patched)
	if patched.ManualRate != nil || patched.FinalRate == nil || *patched.FinalRate != "800" {
		t.Errorf("после PATCH = %+v", patched)
	}

	expectError(t, env.do(t, http.MethodPatch, "/api/v1/boq/items/"+first.ID, tenantA,
		map[string]any{"notes": "x", "expected_version": first.Version}), http.StatusConflict, "CONFLICT")

	var reordered struct {
		Items []itemJSON `json:"items"`
		Total int        `json:"total"`
	}
	expect(t, env.do(t, http.MethodPut, "/api/v1/boq/tender/"+tender1+"/order", tenantA,
		map[string]any{"item_ids": []string{second.ID, first.ID}, "expected_version": ledger.Version}),
		http.StatusOK, &reordered)
	if reordered.Total != 2 || reordered.Items[0].ID != second.ID || reordered.Items[0].RowOrder != 1 {
		t.Errorf("после reorder = %+v", reordered.Items)
	}

	expect(t, env.do(t, http.MethodDelete, "/api/v1/boq/items/"+second.ID, tenantA, nil), http.StatusNoContent, nil)
	expectError(t, env.do(t, http.MethodDelete, "/api/v1/boq/items/"+second.ID, tenantA, nil),
		http.StatusNotFound, "NOT_FOUND")

	rec := env.do(t, http.MethodGet, "/api/v1/boq/tender/"+tender1+"/export", tenantA, nil)
	expect(t, rec, http.StatusOK, nil)
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("тело не похоже на XLSX (zip)")
	}
}

// TestRouter_BOQErrors проверяет коды ошибок ведомости.
func TestRouter_BOQErrors(t *testing.T) {
	env := newTestEnv(t)
	item := env.appendItem(t, "Ноутбук", "1", nil)

	tests := []struct {
		name   string
		method string
		path   string
		tenant string
		body   any
		status int
		code   string
	}{
		{"отрицательное количество", http.MethodPost, "/api/v1/boq/tender/" + tender1 + "/items", tenantA,
			map[string]any{"description": "x", "quantity": "-1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"GST вне диапазона", http.MethodPatch, "/api/v1/boq/items/" + item.ID, tenantA,
			map[string]any{"gst_percent": "120"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"чужой арендатор", http.MethodPatch, "/api/v1/boq/items/" + item.ID, tenantB,
			map[string]any{"notes": "x"}, http.StatusNotFound, "NOT_FOUND"},
		{"чужой тендер", http.MethodGet, "/api/v1/boq/tender/" + tender1, tenantB,
			nil, http.StatusNotFound, "NOT_FOUND"},
		{"повтор в порядке", http.MethodPut, "/api/v1/boq/tender/" + tender1 + "/order", tenantA,
			map[string]any{"item_ids": []string{item.ID, item.ID}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неполный порядок", http.MethodPut, "/api/v1/boq/tender/" + tender1 + "/order", tenantA,
			map[string]any{"item_ids": []string{"unknown"}}, http.StatusConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, tt.method, tt.path, tt.tenant, tt.body), tt.status, tt.code)
		})
	}

	t.Run("некорректный JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/boq/tender/"+tender1+"/items", bytes.NewBufferString("{"))
		req.Header.Set("X-Tenant-ID", tenantA)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("подсистема тендеров недоступна", func(t *testing.T) {
		down := newTestEnv(t)
		down.tenders.err = errors.New("connection refused")
		expectError(t, down.do(t, http.MethodGet, "/api/v1/boq/tender/"+tender1, tenantA, nil),
			http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE")
	})
}

// TestRouter_GenerateAndMatch проверяет генерацию ведомости и подбор продуктов.
func TestRouter_GenerateAndMatch(t *testing.T) {
	env := newTestEnv(t)
	owner := tenantA
	price := decimal.NewFromInt(45000)
	env.store.PutProduct(&model.CatalogProduct{
		ID:        "prod-1",
		TenantID:  &owner,
		Name:      "Ноутбук 14 дюймов",
		ListPrice: &price,
		Currency:  "INR",
		IsActive:  true,
		UpdatedAt: time.Now(),
	})

	var generated struct {
		ItemsCreated int        `json:"items_created"`
		Items        []itemJSON `json:"items"`
		SkipReasons  []string   `json:"skip_reasons"`
	}
	expect(t, env.do(t, http.MethodPost, "/api/v1/boq/tender/"+tender1+"/generate", tenantA, nil),
		http.StatusOK, &generated)
	if generated.ItemsCreated != 1 || generated.SkipReasons == nil {
		t.Fatalf("generate = %+v", generated)
	}
	src := generated.Items[0].SuggestedRateSource
	if src == nil || *src != model.RateSourceCatalogMatch || *generated.Items[0].FinalRate != "45000" {
		t.Errorf("сгенерированная позиция = %+v", generated.Items[0])
	}

	var matched struct {
		Items []struct {
			ProductID  string  `json:"product_id"`
			Confidence float64 `json:"confidence"`
		} `json:"items"`
	}
	expect(t, env.do(t, http.MethodPost, "/api/v1/products/match", tenantA,
		map[string]any{"description": "ноутбук"}), http.StatusOK, &matched)
	if len(matched.Items) != 1 || matched.Items[0].ProductID != "prod-1" {
		t.Errorf("match = %+v", matched.Items)
	}

	expect(t, env.do(t, http.MethodPost, "/api/v1/products/match", tenantB,
		map[string]any{"description": "ноутбук"}), http.StatusOK, &matched)
	if len(matched.Items) != 0 {
		t.Errorf("чужой каталог виден: %+v", matched.Items)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/products/match", tenantA,
		map[string]any{"description": " "}), http.StatusBadRequest, "VALIDATION_ERROR")
}

// TestRouter_RFQAndQuoteFlow проверяет рассылку RFQ, регистрацию и выбор КП.
func TestRouter_RFQAndQuoteFlow(t *testing.T) {
	env := newTestEnv(t)
	owner := tenantA
	env.store.PutVendor(&model.OEMVendor{ID: "vendor-a", TenantID: &owner, CompanyName: "Vendor A", IsActive: true})
	item := env.appendItem(t, "Ноутбук", "2", nil)

	type rfqJSON struct {
		ID             string `json:"id"`
		RFQNumber      string `json:"rfq_number"`
		Status         string `json:"status"`
		TotalSent      int    `json:"total_sent"`
		TotalResponses int    `json:"total_responses"`
		Deliveries     map[string]map[string]struct {
			Status string `json:"status"`
		} `json:"deliveries"`
	}

	var rfq rfqJSON
	expect(t, env.do(t, http.MethodPost, "/api/v1/rfq", tenantA, map[string]any{
		"tender_id":         tender1,
		"boq_item_ids":      []string{item.ID},
		"vendor_ids":        []string{"vendor-a"},
		"response_deadline": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}), http.StatusCreated, &rfq)
	if rfq.Status != model.RFQStatusDraft || rfq.RFQNumber == "" {
		t.Fatalf("rfq = %+v", rfq)
	}

	expect(t, env.do(t, http.MethodPost, "/api/v1/rfq/"+rfq.ID+"/send", tenantA,
		map[string]any{"channels": []string{"email"}}), http.StatusOK, &rfq)
	if rfq.Status != model.RFQStatusSent || rfq.TotalSent != 1 {
		t.Fatalf("после send = %+v", rfq)
	}
	if rfq.Deliveries["email"]["vendor-a"].Status != model.DeliveryQueued {
		t.Errorf("deliveries = %+v", rfq.Deliveries)
	}

	expect(t, env.do(t, http.MethodPost, "/api/v1/rfq/"+rfq.ID+"/delivery-status", tenantA,
		map[string]any{"vendor_id": "vendor-a", "channel": "email", "status": "delivered"}), http.StatusOK, &rfq)
	if rfq.Deliveries["email"]["vendor-a"].Status != model.DeliveryDelivered {
		t.Errorf("deliveries = %+v", rfq.Deliveries)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/rfq/"+rfq.ID+"/send", tenantA,
		map[string]any{"channels": []string{"sms"}}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, env.do(t, http.MethodGet, "/api/v1/rfq/"+rfq.ID, tenantB, nil),
		http.StatusNotFound, "NOT_FOUND")

	type quoteJSON struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		TotalAmount string `json:"total_amount"`
		Currency    string `json:"currency"`
		Version     int    `json:"version"`
	}
	quoteBody := map[string]any{
		"tender_id":    tender1,
		"vendor_id":    "vendor-a",
		"rfq_id":       rfq.ID,
		"quote_number": "Q-1",
		"lines": []map[string]any{
			{"description": "Ноутбук", "quantity": "2", "unit_rate": "52000", "boq_item_id": item.ID},
		},
	}
	var quote quoteJSON
	expect(t, env.do(t, http.MethodPost, "/api/v1/vendor-quotes", tenantA, quoteBody), http.StatusCreated, &quote)
	if quote.Status != model.QuoteStatusReceived || quote.TotalAmount != "104000" || quote.Currency != "INR" {
		t.Fatalf("quote = %+v", quote)
	}

	// Повтор возвращает то же КП без второго отклика
	var again quoteJSON
	expect(t, env.do(t, http.MethodPost, "/api/v1/vendor-quotes", tenantA, quoteBody), http.StatusCreated, &again)
	if again.ID != quote.ID {
		t.Errorf("повтор создал новое КП: %s != %s", again.ID, quote.ID)
	}
	expect(t, env.do(t, http.MethodGet, "/api/v1/rfq/"+rfq.ID, tenantA, nil), http.StatusOK, &rfq)
	if rfq.TotalResponses != 1 {
		t.Errorf("total_responses = %d, ожидался 1", rfq.TotalResponses)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/vendor-quotes/"+quote.ID+"/select", tenantA,
		map[string]any{"mappings": []map[string]any{{"boq_item_id": item.ID, "line_index": 5}}}),
		http.StatusBadRequest, "VALIDATION_ERROR")

	var selected struct {
		Quote quoteJSON  `json:"quote"`
		Items []itemJSON `json:"items"`
	}
	expect(t, env.do(t, http.MethodPost, "/api/v1/vendor-quotes/"+quote.ID+"/select", tenantA,
		map[string]any{"mappings": []map[string]any{{"boq_item_id": item.ID, "line_index": 0}}}),
		http.StatusOK, &selected)
	if selected.Quote.Status != model.QuoteStatusSelected {
		t.Errorf("статус КП = %s", selected.Quote.Status)
	}
	if len(selected.Items) != 1 || *selected.Items[0].FinalRate != "52000" ||
		*selected.Items[0].SuggestedRateSource != model.RateSourceVendorQuotePrefix+"vendor-a" {
		t.Errorf("позиции = %+v", selected.Items)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/vendor-quotes/"+quote.ID+"/reject", tenantA, nil),
		http.StatusConflict, "CONFLICT")

	var list struct {
		Total int `json:"total"`
	}
	expect(t, env.do(t, http.MethodGet, "/api/v1/vendor-quotes/tender/"+tender1, tenantA, nil), http.StatusOK, &list)
	if list.Total != 1 {
		t.Errorf("КП в списке = %d", list.Total)
	}
	expect(t, env.do(t, http.MethodGet, "/api/v1/rfq/"+rfq.ID+"/quotes", tenantA, nil), http.StatusOK, &list)
	if list.Total != 1 {
		t.Errorf("КП по RFQ = %d", list.Total)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/v1/rfq/"+rfq.ID+"/quotes", tenantB, nil),
		http.StatusNotFound, "NOT_FOUND")

	expect(t, env.do(t, http.MethodPost, "/api/v1/rfq/"+rfq.ID+"/close", tenantA, nil), http.StatusOK, &rfq)
	if rfq.Status != model.RFQStatusClosed {
		t.Errorf("статус = %s, ожидался closed", rfq.Status)
	}
	quoteBody["quote_number"] = "Q-2"
	expectError(t, env.do(t, http.MethodPost, "/api/v1/vendor-quotes", tenantA, quoteBody),
		http.StatusConflict, "CONFLICT")

	expect(t, env.do(t, http.MethodPost, "/api/v1/rfq/"+rfq.ID+"/reopen", tenantA, nil), http.StatusOK, &rfq)
	if rfq.Status != model.RFQStatusSent {
		t.Errorf("после reopen статус = %s, ожидался sent", rfq.Status)
	}

	var rfqs struct {
		Total int `json:"total"`
	}
	expect(t, env.do(t, http.MethodGet, "/api/v1/rfq/tender/"+tender1, tenantA, nil), http.StatusOK, &rfqs)
	if rfqs.Total != 1 {
		t.Errorf("RFQ в списке = %d", rfqs.Total)
	}
}
