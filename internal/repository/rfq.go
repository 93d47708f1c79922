package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// RFQRepository — интерфейс для таблицы rfqs.
type RFQRepository interface {
	// Create вставляет RFQ; заполняет Version, CreatedAt, UpdatedAt.
	Create(ctx context.Context, rfq *model.RFQ) error
	// GetByID возвращает RFQ арендатора.
	GetByID(ctx context.Context, tenantID, id string) (*model.RFQ, error)
	// GetForUpdate возвращает RFQ и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, tenantID, id string) (*model.RFQ, error)
	// ListByTender возвращает RFQ тендера, новые первыми.
	ListByTender(ctx context.Context, tenantID, tenderID string) ([]*model.RFQ, error)
	// Update сохраняет изменяемые поля, увеличивает Version.
	Update(ctx context.Context, rfq *model.RFQ) error
	// ListExpired — незакрытые RFQ с истёкшим сроком ответа по всем арендаторам.
	// Используется только фоновым закрытием; запись идёт через методы с арендатором.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.RFQ, error)
}

type rfqRepo struct {
	db DBTX
}

// NewRFQRepository создаёт репозиторий RFQ.
func NewRFQRepository(db DBTX) RFQRepository {
	return &rfqRepo{db: db}
}

const rfqColumns = `
	id, tenant_id, tender_id, rfq_number, subject, message, boq_item_ids, vendor_ids,
	response_deadline, deliveries, total_sent, total_responses, status, created_by,
	version, created_at, updated_at, sent_at, closed_at`

func scanRFQ(row scanner) (*model.RFQ, error) {
	r := &model.RFQ{}
	var deliveries []byte
	err := row.Scan(
		&r.ID, &r.TenantID, &r.TenderID, &r.RFQNumber, &r.Subject, &r.Message,
		&r.BOQItemIDs, &r.VendorIDs, &r.ResponseDeadline, &deliveries,
		&r.TotalSent, &r.TotalResponses, &r.Status, &r.CreatedBy,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &r.SentAt, &r.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Deliveries = model.Deliveries{}
	if len(deliveries) > 0 {
		if err := json.Unmarshal(deliveries, &r.Deliveries); err != nil {
			return nil, fmt.Errorf("декодирование deliveries: %w", err)
		}
	}
	return r, nil
}

func encodeDeliveries(d model.Deliveries) ([]byte, error) {
	if d == nil {
		d = model.Deliveries{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("кодирование deliveries: %w", err)
	}
	return b, nil
}

func (r *rfqRepo) Create(ctx context.Context, rfq *model.RFQ) error {
	if err := checkTenant(rfq.TenantID); err != nil {
		return err
	}
	deliveries, err := encodeDeliveries(rfq.Deliveries)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rfqs (
			id, tenant_id, tender_id, rfq_number, subject, message, boq_item_ids, vendor_ids,
			response_deadline, deliveries, total_sent, total_responses, status, created_by,
			sent_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING version, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		rfq.ID, rfq.TenantID, rfq.TenderID, rfq.RFQNumber, rfq.Subject, rfq.Message,
		rfq.BOQItemIDs, rfq.VendorIDs, rfq.ResponseDeadline, deliveries,
		rfq.TotalSent, rfq.TotalResponses, rfq.Status, rfq.CreatedBy,
		rfq.SentAt, rfq.ClosedAt,
	).Scan(&rfq.Version, &rfq.CreatedAt, &rfq.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания RFQ: %w", err)
	}
	return nil
}

func (r *rfqRepo) GetByID(ctx context.Context, tenantID, id string) (*model.RFQ, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *rfqRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*model.RFQ, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *rfqRepo) get(ctx context.Context, tenantID, id, lock string) (*model.RFQ, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + rfqColumns + ` FROM rfqs WHERE tenant_id = $1 AND id = $2` + lock

	rfq, err := scanRFQ(r.db.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения RFQ: %w", err)
	}
	return rfq, nil
}

func (r *rfqRepo) ListByTender(ctx context.Context, tenantID, tenderID string) ([]*model.RFQ, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + rfqColumns + `
		FROM rfqs
		WHERE tenant_id = $1 AND tender_id = $2
		ORDER BY created_at DESC`

	return r.list(ctx, query, tenantID, tenderID)
}

func (r *rfqRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.RFQ, error) {
	query := `SELECT ` + rfqColumns + `
		FROM rfqs
		WHERE status <> 'closed' AND response_deadline < $1
		ORDER BY response_deadline ASC
		LIMIT $2`

	return r.list(ctx, query, now, limit)
}

func (r *rfqRepo) list(ctx context.Context, query string, args ...any) ([]*model.RFQ, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка RFQ: %w", err)
	}
	defer rows.Close()

	var result []*model.RFQ
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования RFQ: %w", err)
		}
		result = append(result, rfq)
	}
	return result, rows.Err()
}

func (r *rfqRepo) Update(ctx context.Context, rfq *model.RFQ) error {
	if err := checkTenant(rfq.TenantID); err != nil {
		return err
	}
	deliveries, err := encodeDeliveries(rfq.Deliveries)
	if err != nil {
		return err
	}

	query := `
		UPDATE rfqs SET
			subject = $3, message = $4, boq_item_ids = $5, vendor_ids = $6,
			response_deadline = $7, deliveries = $8, total_sent = $9,
			total_responses = $10, status = $11, sent_at = $12, closed_at = $13,
			version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING version, updated_at`

	err = r.db.QueryRow(ctx, query,
		rfq.TenantID, rfq.ID, rfq.Subject, rfq.Message, rfq.BOQItemIDs, rfq.VendorIDs,
		rfq.ResponseDeadline, deliveries, rfq.TotalSent, rfq.TotalResponses,
		rfq.Status, rfq.SentAt, rfq.ClosedAt,
	).Scan(&rfq.Version, &rfq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка обновления RFQ: %w", err)
	}
	return nil
}
