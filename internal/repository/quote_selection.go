package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// QuoteSelectionRepository — интерфейс для таблицы quote_selections.
type QuoteSelectionRepository interface {
	// GetByItem возвращает текущий выбор для позиции BOQ.
	GetByItem(ctx context.Context, tenantID, boqItemID string) (*model.QuoteSelection, error)
	// Upsert заменяет выбор для позиции BOQ.
	Upsert(ctx context.Context, sel *model.QuoteSelection) error
	// CountByQuote — число позиций, для которых выбрано КП.
	CountByQuote(ctx context.Context, tenantID, quoteID string) (int, error)
	// DeleteByItem снимает выбор с позиции BOQ и возвращает КП, которое было выбрано
	// (пустая строка — выбора не было).
	DeleteByItem(ctx context.Context, tenantID, boqItemID string) (string, error)
}

type quoteSelectionRepo struct {
	db DBTX
}

// NewQuoteSelectionRepository создаёт репозиторий выбора КП.
func NewQuoteSelectionRepository(db DBTX) QuoteSelectionRepository {
	return &quoteSelectionRepo{db: db}
}

func (r *quoteSelectionRepo) GetByItem(ctx context.Context, tenantID, boqItemID string) (*model.QuoteSelection, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, boq_item_id, quote_id, quote_line_index, selected_at
		FROM quote_selections
		WHERE tenant_id = $1 AND boq_item_id = $2`

	s := &model.QuoteSelection{}
	err := r.db.QueryRow(ctx, query, tenantID, boqItemID).Scan(
		&s.TenantID, &s.BOQItemID, &s.QuoteID, &s.QuoteLineIndex, &s.SelectedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выбора КП: %w", err)
	}
	return s, nil
}

func (r *quoteSelectionRepo) Upsert(ctx context.Context, sel *model.QuoteSelection) error {
	if err := checkTenant(sel.TenantID); err != nil {
		return err
	}

	query := `
		INSERT INTO quote_selections (tenant_id, boq_item_id, quote_id, quote_line_index, selected_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, boq_item_id) DO UPDATE SET
			quote_id = EXCLUDED.quote_id,
			quote_line_index = EXCLUDED.quote_line_index,
			selected_at = EXCLUDED.selected_at
		RETURNING selected_at`

	err := r.db.QueryRow(ctx, query,
		sel.TenantID, sel.BOQItemID, sel.QuoteID, sel.QuoteLineIndex,
	).Scan(&sel.SelectedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения выбора КП: %w", err)
	}
	return nil
}

func (r *quoteSelectionRepo) CountByQuote(ctx context.Context, tenantID, quoteID string) (int, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM quote_selections WHERE tenant_id = $1 AND quote_id = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, tenantID, quoteID).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта выбора КП: %w", err)
	}
	return count, nil
}

func (r *quoteSelectionRepo) DeleteByItem(ctx context.Context, tenantID, boqItemID string) (string, error) {
	if err := checkTenant(tenantID); err != nil {
		return "", err
	}

	query := `
		DELETE FROM quote_selections
		WHERE tenant_id = $1 AND boq_item_id = $2
		RETURNING quote_id`

	var quoteID string
	err := r.db.QueryRow(ctx, query, tenantID, boqItemID).Scan(&quoteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка снятия выбора КП: %w", err)
	}
	return quoteID, nil
}
