package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// BOQItemRepository — интерфейс для таблицы boq_items.
// Чтение возвращает только неудалённые позиции.
type BOQItemRepository interface {
	// Create вставляет позицию; заполняет Version, CreatedAt, UpdatedAt.
	Create(ctx context.Context, item *model.BOQItem) error
	// GetByID возвращает позицию арендатора.
	GetByID(ctx context.Context, tenantID, id string) (*model.BOQItem, error)
	// GetForUpdate возвращает позицию и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, tenantID, id string) (*model.BOQItem, error)
	// ListByTender возвращает позиции тендера по возрастанию row_order.
	ListByTender(ctx context.Context, tenantID, tenderID string) ([]*model.BOQItem, error)
	// MaxRowOrder — максимальный row_order тендера с учётом удалённых (0, если позиций нет).
	MaxRowOrder(ctx context.Context, tenantID, tenderID string) (int, error)
	// Update сохраняет изменяемые поля, увеличивает Version.
	Update(ctx context.Context, item *model.BOQItem) error
	// SoftDelete помечает позицию удалённой, порядок остальных не меняется.
	SoftDelete(ctx context.Context, tenantID, id string) error
	// Renumber присваивает позициям row_order 1..N в порядке orderedIDs.
	// Список должен совпадать с набором неудалённых позиций тендера.
	Renumber(ctx context.Context, tenantID, tenderID string, orderedIDs []string) error
}

type boqItemRepo struct {
	db DBTX
}

// NewBOQItemRepository создаёт репозиторий позиций BOQ.
func NewBOQItemRepository(db DBTX) BOQItemRepository {
	return &boqItemRepo{db: db}
}

const boqItemColumns = `
	id, tenant_id, tender_id, item_number, description, specifications, hsn_code,
	quantity, unit, suggested_rate, suggested_rate_source, manual_rate, final_rate,
	gst_percent, matched_product_id, matching_confidence, selected_vendor_quote_id,
	row_order, notes, version, deleted_at, created_at, updated_at`

func scanBOQItem(row scanner) (*model.BOQItem, error) {
	it := &model.BOQItem{}
	err := row.Scan(
		&it.ID, &it.TenantID, &it.TenderID, &it.ItemNumber, &it.Description,
		&it.Specifications, &it.HSNCode, &it.Quantity, &it.Unit,
		&it.SuggestedRate, &it.SuggestedRateSource, &it.ManualRate, &it.FinalRate,
		&it.GSTPercent, &it.MatchedProductID, &it.MatchingConfidence,
		&it.SelectedVendorQuoteID, &it.RowOrder, &it.Notes, &it.Version,
		&it.DeletedAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (r *boqItemRepo) Create(ctx context.Context, item *model.BOQItem) error {
	if err := checkTenant(item.TenantID); err != nil {
		return err
	}

	query := `
		INSERT INTO boq_items (
			id, tenant_id, tender_id, item_number, description, specifications, hsn_code,
			quantity, unit, suggested_rate, suggested_rate_source, manual_rate, final_rate,
			gst_percent, matched_product_id, matching_confidence, selected_vendor_quote_id,
			row_order, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING version, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		item.ID, item.TenantID, item.TenderID, item.ItemNumber, item.Description,
		item.Specifications, item.HSNCode, item.Quantity, item.Unit,
		item.SuggestedRate, item.SuggestedRateSource, item.ManualRate, item.FinalRate,
		item.GSTPercent, item.MatchedProductID, item.MatchingConfidence,
		item.SelectedVendorQuoteID, item.RowOrder, item.Notes,
	).Scan(&item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания позиции BOQ: %w", err)
	}
	return nil
}

func (r *boqItemRepo) GetByID(ctx context.Context, tenantID, id string) (*model.BOQItem, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *boqItemRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.BOQItem, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *boqItemRepo) get(ctx context.Context, tenantID, id, lock string) (*model.BOQItem, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + boqItemColumns + `
		FROM boq_items
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL` + lock

	it, err := scanBOQItem(r.db.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения позиции BOQ: %w", err)
	}
	return it, nil
}

func (r *boqItemRepo) ListByTender(ctx context.Context, tenantID, tenderID string) ([]*model.BOQItem, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + boqItemColumns + `
		FROM boq_items
		WHERE tenant_id = $1 AND tender_id = $2 AND deleted_at IS NULL
		ORDER BY row_order ASC`

	rows, err := r.db.Query(ctx, query, tenantID, tenderID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения позиций BOQ: %w", err)
	}
	defer rows.Close()

	var result []*model.BOQItem
	for rows.Next() {
		it, err := scanBOQItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования позиции BOQ: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (r *boqItemRepo) MaxRowOrder(ctx context.Context, tenantID, tenderID string) (int, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	query := `SELECT COALESCE(MAX(row_order), 0) FROM boq_items WHERE tenant_id = $1 AND tender_id = $2`

	var maxOrder int
	if err := r.db.QueryRow(ctx, query, tenantID, tenderID).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("ошибка получения максимального row_order: %w", err)
	}
	return maxOrder, nil
}

func (r *boqItemRepo) Update(ctx context.Context, item *model.BOQItem) error {
	if err := checkTenant(item.TenantID); err != nil {
		return err
	}

	query := `
		UPDATE boq_items SET
			item_number = $3, description = $4, specifications = $5, hsn_code = $6,
			quantity = $7, unit = $8, suggested_rate = $9, suggested_rate_source = $10,
			manual_rate = $11, final_rate = $12, gst_percent = $13,
			matched_product_id = $14, matching_confidence = $15,
			selected_vendor_quote_id = $16, notes = $17,
			version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING version, updated_at`

	err := r.db.QueryRow(ctx, query,
		item.TenantID, item.ID, item.ItemNumber, item.Description, item.Specifications,
		item.HSNCode, item.Quantity, item.Unit, item.SuggestedRate, item.SuggestedRateSource,
		item.ManualRate, item.FinalRate, item.GSTPercent, item.MatchedProductID,
		item.MatchingConfidence, item.SelectedVendorQuoteID, item.Notes,
	).Scan(&item.Version, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка обновления позиции BOQ: %w", err)
	}
	return nil
}

func (r *boqItemRepo) SoftDelete(ctx context.Context, tenantID, id string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE boq_items SET deleted_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, tenantID, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции BOQ: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *boqItemRepo) Renumber(ctx context.Context, tenantID, tenderID string, orderedIDs []string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}

	// Первый проход уводит порядок в отрицательные значения,
	// чтобы уникальный индекс не срабатывал на промежуточных перестановках.
	negate := `
		UPDATE boq_items SET row_order = -row_order
		WHERE tenant_id = $1 AND tender_id = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, negate, tenantID, tenderID)
	if err != nil {
		return fmt.Errorf("ошибка подготовки переупорядочивания: %w", err)
	}
	if tag.RowsAffected() != int64(len(orderedIDs)) {
		return ErrConflict
	}

	assign := `
		UPDATE boq_items b SET
			row_order = o.ord::int, version = b.version + 1, updated_at = NOW()
		FROM unnest($3::text[]) WITH ORDINALITY AS o(id, ord)
		WHERE b.tenant_id = $1 AND b.tender_id = $2 AND b.deleted_at IS NULL AND b.id = o.id`

	tag, err = r.db.Exec(ctx, assign, tenantID, tenderID, orderedIDs)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка переупорядочивания позиций BOQ: %w", err)
	}
	if tag.RowsAffected() != int64(len(orderedIDs)) {
		return ErrConflict
	}
	return nil
}
