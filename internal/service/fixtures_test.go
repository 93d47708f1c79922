package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/matching"
	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
	"github.com/bigkaa/hexabid/costing-module/internal/repository/memory"
	"github.com/bigkaa/hexabid/costing-module/internal/tenderclient"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
	tender1 = "tender-1"
	tender2 = "tender-2"
)

// --- Мок подсистемы тендеров ---

// mockTenders — мок TenderSource: тендеры по id, чужой арендатор — не найден.
type mockTenders struct {
	mu      sync.Mutex
	tenders map[string]*model.Tender
	err     error
	calls   int
}

func newMockTenders(tenders ...*model.Tender) *mockTenders {
	m := &mockTenders{tenders: make(map[string]*model.Tender)}
	for _, t := range tenders {
		m.tenders[t.ID] = t
	}
	return m
}

func (m *mockTenders) GetTender(_ context.Context, tenantID, tenderID string) (*model.Tender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tenders[tenderID]
	if !ok || t.TenantID != tenantID {
		return nil, tenderclient.ErrNotFound
	}
	return t, nil
}

func (m *mockTenders) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockTenders) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Мок источника каталога ---

type mockCatalog struct {
	listFn func(ctx context.Context, tenantID string) ([]*model.CatalogProduct, error)
	calls  int
}

func (m *mockCatalog) ListActiveProducts(ctx context.Context, tenantID string) ([]*model.CatalogProduct, error) {
	m.calls++
	if m.listFn != nil {
		return m.listFn(ctx, tenantID)
	}
	return nil, nil
}

// --- Мок публикации доставки ---

type mockPublisher struct {
	mu       sync.Mutex
	requests []model.DeliveryRequest
	failFor  map[string]bool // канал → отказ очереди
}

func (m *mockPublisher) Publish(_ context.Context, req model.DeliveryRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[req.Channel] {
		return errors.New("очередь недоступна")
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// --- Окружение сервисов ---

type testEnv struct {
	store      *memory.Store
	tenders    *mockTenders
	publisher  *mockPublisher
	directory  *TenderDirectory
	catalog    *CatalogCache
	ledger     *BOQLedgerService
	generator  *BOQGenerator
	matcher    *ProductMatchService
	dispatcher *RFQDispatcher
	quotes     *QuoteReconciler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv собирает сервисы поверх хранилища в памяти.
// Тендеры: tender-1 и tender-2 у tenant-a, tender-b1 у tenant-b.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore(repository.Options{})
	tenders := newMockTenders(
		&model.Tender{ID: tender1, TenantID: tenantA, Title: "Поставка ноутбуков"},
		&model.Tender{ID: tender2, TenantID: tenantA, Title: "Сетевое оборудование"},
		&model.Tender{ID: "tender-b1", TenantID: tenantB, Title: "Чужой тендер"},
	)
	publisher := &mockPublisher{failFor: map[string]bool{}}
	logger := testLogger()

	directory := NewTenderDirectory(tenders, 100, time.Minute)
	catalog := NewCatalogCache(store.Repos().Catalog, 10, time.Minute)
	matcher := matching.NewLexicalMatcher()
	ledger := NewBOQLedgerService(store, directory, model.DefaultGSTPercent, logger)

	return &testEnv{
		store:      store,
		tenders:    tenders,
		publisher:  publisher,
		directory:  directory,
		catalog:    catalog,
		ledger:     ledger,
		generator:  NewBOQGenerator(ledger, directory, catalog, matcher, 0.5, logger),
		matcher:    NewProductMatchService(catalog, matcher, 10),
		dispatcher: NewRFQDispatcher(store, directory, publisher, nil, logger),
		quotes:     NewQuoteReconciler(store, directory, logger),
	}
}

// appendItem добавляет позицию и прерывает тест при ошибке.
func (e *testEnv) appendItem(t *testing.T, tenantID, tenderID, description string, qty int64) *model.BOQItem {
	t.Helper()
	item, err := e.ledger.Append(context.Background(), tenantID, tenderID, BOQItemInput{
		Description: description,
		Quantity:    decimal.NewFromInt(qty),
		Unit:        "nos",
	})
	if err != nil {
		t.Fatalf("Append(%q) ошибка: %v", description, err)
	}
	return item
}

// putVendor добавляет активного поставщика арендатора.
func (e *testEnv) putVendor(tenantID, id string, active bool) {
	owner := tenantID
	e.store.PutVendor(&model.OEMVendor{ID: id, TenantID: &owner, CompanyName: "Vendor " + id, IsActive: active})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string {
	return &s
}

// assertErrorIs проверяет класс ошибки.
func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("ошибка = %v, ожидалась %v", err, target)
	}
}

// assertDecimal сравнивает nullable-значение с ожидаемым ("" — nil).
func assertDecimal(t *testing.T, field string, got *decimal.Decimal, want string) {
	t.Helper()
	switch {
	case want == "" && got != nil:
		t.Errorf("%s = %s, ожидался nil", field, got)
	case want != "" && got == nil:
		t.Errorf("%s = nil, ожидался %s", field, want)
	case want != "" && !got.Equal(dec(want)):
		t.Errorf("%s = %s, ожидался %s", field, got, want)
	}
}
