package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// VendorQuoteRepository — интерфейс для таблицы vendor_quotes.
// После создания меняется только статус.
type VendorQuoteRepository interface {
	// Create вставляет КП; дубликат (поставщик, RFQ, номер) — ErrConflict.
	Create(ctx context.Context, q *model.VendorQuote) error
	// GetByID возвращает КП арендатора.
	GetByID(ctx context.Context, tenantID, id string) (*model.VendorQuote, error)
	// GetForUpdate возвращает КП и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, tenantID, id string) (*model.VendorQuote, error)
	// FindByNumber ищет КП поставщика по номеру в рамках RFQ (или без RFQ).
	FindByNumber(ctx context.Context, tenantID, vendorID string, rfqID *string, quoteNumber string) (*model.VendorQuote, error)
	// ListByTender возвращает КП тендера, новые первыми.
	ListByTender(ctx context.Context, tenantID, tenderID string) ([]*model.VendorQuote, error)
	// ListByRFQ возвращает КП, полученные в ответ на RFQ, новые первыми.
	ListByRFQ(ctx context.Context, tenantID, rfqID string) ([]*model.VendorQuote, error)
	// UpdateStatus меняет статус и увеличивает Version.
	UpdateStatus(ctx context.Context, tenantID, id, status string) (*model.VendorQuote, error)
}

type vendorQuoteRepo struct {
	db DBTX
}

// NewVendorQuoteRepository создаёт репозиторий КП поставщиков.
func NewVendorQuoteRepository(db DBTX) VendorQuoteRepository {
	return &vendorQuoteRepo{db: db}
}

const vendorQuoteColumns = `
	id, tenant_id, tender_id, vendor_id, rfq_id, quote_number, quote_date, valid_until,
	currency, total_amount, line_items, payment_terms, delivery_terms, warranty_terms,
	quote_document_url, internal_notes, status, version, created_at, updated_at`

func scanVendorQuote(row scanner) (*model.VendorQuote, error) {
	q := &model.VendorQuote{}
	var lines []byte
	err := row.Scan(
		&q.ID, &q.TenantID, &q.TenderID, &q.VendorID, &q.RFQID, &q.QuoteNumber,
		&q.QuoteDate, &q.ValidUntil, &q.Currency, &q.TotalAmount, &lines,
		&q.PaymentTerms, &q.DeliveryTerms, &q.WarrantyTerms, &q.QuoteDocumentURL,
		&q.InternalNotes, &q.Status, &q.Version, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &q.Lines); err != nil {
			return nil, fmt.Errorf("декодирование line_items: %w", err)
		}
	}
	return q, nil
}

func (r *vendorQuoteRepo) Create(ctx context.Context, q *model.VendorQuote) error {
	if err := checkTenant(q.TenantID); err != nil {
		return err
	}
	lines, err := json.Marshal(q.Lines)
	if err != nil {
		return fmt.Errorf("кодирование line_items: %w", err)
	}

	query := `
		INSERT INTO vendor_quotes (
			id, tenant_id, tender_id, vendor_id, rfq_id, quote_number, quote_date, valid_until,
			currency, total_amount, line_items, payment_terms, delivery_terms, warranty_terms,
			quote_document_url, internal_notes, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING version, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		q.ID, q.TenantID, q.TenderID, q.VendorID, q.RFQID, q.QuoteNumber, q.QuoteDate,
		q.ValidUntil, q.Currency, q.TotalAmount, lines, q.PaymentTerms, q.DeliveryTerms,
		q.WarrantyTerms, q.QuoteDocumentURL, q.InternalNotes, q.Status,
	).Scan(&q.Version, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания КП: %w", err)
	}
	return nil
}

func (r *vendorQuoteRepo) GetByID(ctx context.Context, tenantID, id string) (*model.VendorQuote, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *vendorQuoteRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.VendorQuote, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *vendorQuoteRepo) get(ctx context.Context, tenantID, id, lock string) (*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + vendorQuoteColumns + ` FROM vendor_quotes WHERE tenant_id = $1 AND id = $2` + lock

	q, err := scanVendorQuote(r.db.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения КП: %w", err)
	}
	return q, nil
}

func (r *vendorQuoteRepo) FindByNumber(ctx context.Context, tenantID, vendorID string, rfqID *string, quoteNumber string) (*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + vendorQuoteColumns + `
		FROM vendor_quotes
		WHERE tenant_id = $1 AND vendor_id = $2
		  AND COALESCE(rfq_id, '') = COALESCE($3, '')
		  AND quote_number = $4`

	q, err := scanVendorQuote(r.db.QueryRow(ctx, query, tenantID, vendorID, rfqID, quoteNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска КП по номеру: %w", err)
	}
	return q, nil
}

func (r *vendorQuoteRepo) ListByTender(ctx context.Context, tenantID, tenderID string) ([]*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + vendorQuoteColumns + `
		FROM vendor_quotes
		WHERE tenant_id = $1 AND tender_id = $2
		ORDER BY created_at DESC`

	return r.list(ctx, query, tenantID, tenderID)
}

func (r *vendorQuoteRepo) ListByRFQ(ctx context.Context, tenantID, rfqID string) ([]*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + vendorQuoteColumns + `
		FROM vendor_quotes
		WHERE tenant_id = $1 AND rfq_id = $2
		ORDER BY created_at DESC`

	return r.list(ctx, query, tenantID, rfqID)
}

func (r *vendorQuoteRepo) list(ctx context.Context, query string, args ...any) ([]*model.VendorQuote, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка КП: %w", err)
	}
	defer rows.Close()

	var result []*model.VendorQuote
	for rows.Next() {
		q, err := scanVendorQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования КП: %w", err)
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (r *vendorQuoteRepo) UpdateStatus(ctx context.Context, tenantID, id, status string) (*model.VendorQuote, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		UPDATE vendor_quotes SET status = $3, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + vendorQuoteColumns

	q, err := scanVendorQuote(r.db.QueryRow(ctx, query, tenantID, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления статуса КП: %w", err)
	}
	return q, nil
}
