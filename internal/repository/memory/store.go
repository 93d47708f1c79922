// Пакет memory — хранилище в памяти с тем же контрактом, что и PostgreSQL.
//
// Транзакции сериализуются одним мьютексом и откатываются восстановлением
// снимка состояния. Записи хранятся копиями и никогда не меняются на месте,
// поэтому снимок — это поверхностная копия карт. Данные теряются при рестарте.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
	"github.com/bigkaa/hexabid/costing-module/internal/repository"
)

type ledgerKey struct{ tenantID, tenderID string }

type selectionKey struct{ tenantID, boqItemID string }

type state struct {
	ledgers    map[ledgerKey]int64
	items      map[string]*model.BOQItem
	rfqs       map[string]*model.RFQ
	quotes     map[string]*model.VendorQuote
	selections map[selectionKey]*model.QuoteSelection
	products   map[string]*model.CatalogProduct
	vendors    map[string]*model.OEMVendor
}

func newState() *state {
	return &state{
		ledgers:    make(map[ledgerKey]int64),
		items:      make(map[string]*model.BOQItem),
		rfqs:       make(map[string]*model.RFQ),
		quotes:     make(map[string]*model.VendorQuote),
		selections: make(map[selectionKey]*model.QuoteSelection),
		products:   make(map[string]*model.CatalogProduct),
		vendors:    make(map[string]*model.OEMVendor),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.rfqs {
		c.rfqs[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	for k, v := range s.selections {
		c.selections[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.vendors {
		c.vendors[k] = v
	}
	return c
}

// Store — repository.Store в памяти.
type Store struct {
	mu      sync.Mutex
	st      *state
	opts    repository.Options
	now     func() time.Time
	repos   *repository.Repositories
	txRepos *repository.Repositories
}

// NewStore создаёт пустое хранилище.
func NewStore(opts repository.Options) *Store {
	s := &Store{
		st:   newState(),
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}
	s.repos = s.newRepositories(true)
	s.txRepos = s.newRepositories(false)
	return s
}

func (s *Store) newRepositories(locking bool) *repository.Repositories {
	b := base{s: s, locking: locking}
	return &repository.Repositories{
		Ledgers:    &ledgerRepo{b},
		BOQItems:   &boqItemRepo{b},
		RFQs:       &rfqRepo{b},
		Quotes:     &quoteRepo{b},
		Selections: &selectionRepo{b},
		Catalog:    &catalogRepo{b},
	}
}

// Repos возвращает репозитории, блокирующие хранилище на время каждого вызова.
func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// RunInTx выполняет fn под мьютексом хранилища; ошибка fn или отменённый
// контекст восстанавливают состояние до начала транзакции.
func (s *Store) RunInTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.txRepos); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// PutProduct добавляет или заменяет продукт каталога.
func (s *Store) PutProduct(p *model.CatalogProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.st.products[p.ID] = &c
}

// PutVendor добавляет или заменяет поставщика.
func (s *Store) PutVendor(v *model.OEMVendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *v
	c.Categories = append([]string(nil), v.Categories...)
	s.st.vendors[v.ID] = &c
}

// base — общее для репозиториев: доступ к состоянию и блокировка.
type base struct {
	s       *Store
	locking bool
}

// lock блокирует хранилище вне транзакции; внутри транзакции мьютекс уже захвачен.
func (b base) lock() func() {
	if !b.locking {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}

func (b base) st() *state {
	return b.s.st
}

func (b base) now() time.Time {
	return b.s.now()
}

func checkTenant(tenantID string) error {
	if tenantID == "" {
		return repository.ErrMissingTenant
	}
	return nil
}
