package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// CatalogRepository — чтение каталога продуктов и поставщиков.
// Таблицы ведёт внешняя подсистема каталога.
type CatalogRepository interface {
	// ListActiveProducts возвращает активные продукты, видимые арендатору.
	ListActiveProducts(ctx context.Context, tenantID string) ([]*model.CatalogProduct, error)
	// GetProduct возвращает продукт, видимый арендатору.
	GetProduct(ctx context.Context, tenantID, id string) (*model.CatalogProduct, error)
	// GetVendor возвращает поставщика, видимого арендатору.
	GetVendor(ctx context.Context, tenantID, id string) (*model.OEMVendor, error)
}

type catalogRepo struct {
	db     DBTX
	shared bool
}

// NewCatalogRepository создаёт репозиторий каталога.
// shared — добавлять к каталогу арендатора общие записи (tenant_id IS NULL).
func NewCatalogRepository(db DBTX, shared bool) CatalogRepository {
	return &catalogRepo{db: db, shared: shared}
}

const productColumns = `
	id, tenant_id, sku, name, brand, model, category, sub_category, specifications,
	technical_description, hsn_code, list_price, currency, lead_time_days,
	oem_vendor_id, is_active, updated_at`

// visibility — предикат видимости записи каталога арендатору ($1 — tenant_id, $2 — shared).
const visibility = `(tenant_id = $1 OR ($2 AND tenant_id IS NULL))`

func scanProduct(row scanner) (*model.CatalogProduct, error) {
	p := &model.CatalogProduct{}
	var specs []byte
	err := row.Scan(
		&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Brand, &p.Model, &p.Category,
		&p.SubCategory, &specs, &p.TechnicalDescription, &p.HSNCode, &p.ListPrice,
		&p.Currency, &p.LeadTimeDays, &p.OEMVendorID, &p.IsActive, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		if err := decodeSpecifications(specs, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// decodeSpecifications приводит значения характеристик к строкам:
// внешний каталог хранит в них и числа, и булевы значения.
func decodeSpecifications(raw []byte, p *model.CatalogProduct) error {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("декодирование specifications продукта %s: %w", p.ID, err)
	}
	p.Specifications = make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			p.Specifications[k] = val
		case nil:
		default:
			b, _ := json.Marshal(val)
			p.Specifications[k] = string(b)
		}
	}
	return nil
}

func (r *catalogRepo) ListActiveProducts(ctx context.Context, tenantID string) ([]*model.CatalogProduct, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + productColumns + `
		FROM catalog_products
		WHERE ` + visibility + ` AND is_active
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, tenantID, r.shared)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога: %w", err)
	}
	defer rows.Close()

	var result []*model.CatalogProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования продукта: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *catalogRepo) GetProduct(ctx context.Context, tenantID, id string) (*model.CatalogProduct, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + productColumns + ` FROM catalog_products WHERE ` + visibility + ` AND id = $3`

	p, err := scanProduct(r.db.QueryRow(ctx, query, tenantID, r.shared, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения продукта: %w", err)
	}
	return p, nil
}

func (r *catalogRepo) GetVendor(ctx context.Context, tenantID, id string) (*model.OEMVendor, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, company_name, categories, email, phone, is_active
		FROM oem_vendors
		WHERE ` + visibility + ` AND id = $3`

	v := &model.OEMVendor{}
	err := r.db.QueryRow(ctx, query, tenantID, r.shared, id).Scan(
		&v.ID, &v.TenantID, &v.CompanyName, &v.Categories, &v.Email, &v.Phone, &v.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения поставщика: %w", err)
	}
	return v, nil
}
