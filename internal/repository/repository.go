// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
//
// Каждый метод принимает идентификатор арендатора и добавляет предикат
// tenant_id в запрос; пустой идентификатор отклоняется до обращения к БД.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена (или принадлежит другому арендатору).
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности или устаревшая версия.
	ErrConflict = errors.New("конфликт — запись уже существует или изменена")
	// ErrMissingTenant — запрос без идентификатора арендатора.
	ErrMissingTenant = errors.New("не задан идентификатор арендатора")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options — параметры видимости данных.
type Options struct {
	// SharedCatalog — в каталог арендатора входят общие продукты и поставщики (tenant_id IS NULL)
	SharedCatalog bool
}

// Repositories — набор репозиториев, привязанных к одному DBTX.
type Repositories struct {
	Ledgers    LedgerRepository
	BOQItems   BOQItemRepository
	RFQs       RFQRepository
	Quotes     VendorQuoteRepository
	Selections QuoteSelectionRepository
	Catalog    CatalogRepository
}

// NewRepositories создаёт репозитории поверх пула или транзакции.
func NewRepositories(db DBTX, opts Options) *Repositories {
	return &Repositories{
		Ledgers:    NewLedgerRepository(db),
		BOQItems:   NewBOQItemRepository(db),
		RFQs:       NewRFQRepository(db),
		Quotes:     NewVendorQuoteRepository(db),
		Selections: NewQuoteSelectionRepository(db),
		Catalog:    NewCatalogRepository(db, opts.SharedCatalog),
	}
}

// Store — точка входа сервисов в хранилище.
type Store interface {
	// Repos возвращает репозитории вне транзакции.
	Repos() *Repositories
	// RunInTx выполняет fn в транзакции: ошибка fn — откат, иначе коммит.
	RunInTx(ctx context.Context, fn func(r *Repositories) error) error
}

// PostgresStore — Store поверх pgxpool.
type PostgresStore struct {
	pool  *pgxpool.Pool
	opts  Options
	repos *Repositories
}

// NewPostgresStore создаёт хранилище на пуле подключений.
func NewPostgresStore(pool *pgxpool.Pool, opts Options) *PostgresStore {
	return &PostgresStore{
		pool:  pool,
		opts:  opts,
		repos: NewRepositories(pool, opts),
	}
}

// Repos возвращает репозитории, работающие через пул.
func (s *PostgresStore) Repos() *Repositories {
	return s.repos
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(r *Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(NewRepositories(tx, s.opts)); err != nil {
		return mapTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapTxError(fmt.Errorf("ошибка коммита транзакции: %w", err))
	}
	return nil
}

// mapTxError превращает взаимоблокировку и сбой сериализации в ErrConflict:
// транзакция откатана, операцию можно повторить.
func mapTxError(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: транзакция прервана: %v", ErrConflict, err)
	}
	return err
}

// checkTenant отклоняет пустой идентификатор арендатора.
func checkTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrMissingTenant
	}
	return nil
}

// scanner — общий интерфейс pgx.Row и pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isSerializationFailure — deadlock_detected (40P01) или serialization_failure (40001).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}
