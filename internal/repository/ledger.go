package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LedgerRepository — служебные строки ведомостей (таблица boq_ledgers).
type LedgerRepository interface {
	// Lock создаёт строку при необходимости и блокирует её до конца транзакции.
	// Возвращает текущую версию ведомости.
	Lock(ctx context.Context, tenantID, tenderID string) (int64, error)
	// Bump увеличивает версию ведомости и возвращает новую.
	Bump(ctx context.Context, tenantID, tenderID string) (int64, error)
	// Version возвращает версию без блокировки (0 — ведомость ещё не менялась).
	Version(ctx context.Context, tenantID, tenderID string) (int64, error)
}

type ledgerRepo struct {
	db DBTX
}

// NewLedgerRepository создаёт репозиторий строк ведомостей.
func NewLedgerRepository(db DBTX) LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Lock(ctx context.Context, tenantID, tenderID string) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	// DO UPDATE берёт блокировку строки и для уже существующей ведомости
	query := `
		INSERT INTO boq_ledgers (tenant_id, tender_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, tender_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING version`

	var version int64
	if err := r.db.QueryRow(ctx, query, tenantID, tenderID).Scan(&version); err != nil {
		return 0, fmt.Errorf("ошибка блокировки ведомости: %w", err)
	}
	return version, nil
}

func (r *ledgerRepo) Bump(ctx context.Context, tenantID, tenderID string) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	query := `
		UPDATE boq_ledgers SET version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND tender_id = $2
		RETURNING version`

	var version int64
	err := r.db.QueryRow(ctx, query, tenantID, tenderID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления версии ведомости: %w", err)
	}
	return version, nil
}

func (r *ledgerRepo) Version(ctx context.Context, tenantID, tenderID string) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	query := `SELECT version FROM boq_ledgers WHERE tenant_id = $1 AND tender_id = $2`

	var version int64
	err := r.db.QueryRow(ctx, query, tenantID, tenderID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения версии ведомости: %w", err)
	}
	return version, nil
}
