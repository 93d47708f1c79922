package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogProduct — продукт каталога. Каталог ведёт внешняя подсистема,
// здесь он только читается.
type CatalogProduct struct {
	// ID — UUID продукта
	ID string
	// TenantID — владелец; nil — общий каталог
	TenantID *string
	// SKU — артикул
	SKU *string
	// Name — наименование
	Name string
	// Brand — бренд
	Brand *string
	// Model — модель
	Model *string
	// Category — категория
	Category *string
	// SubCategory — подкатегория
	SubCategory *string
	// Specifications — характеристики
	Specifications map[string]string
	// TechnicalDescription — техническое описание
	TechnicalDescription *string
	// HSNCode — код HSN
	HSNCode *string
	// ListPrice — прайсовая цена
	ListPrice *decimal.Decimal
	// Currency — валюта прайса
	Currency string
	// LeadTimeDays — срок поставки в днях
	LeadTimeDays *int
	// OEMVendorID — поставщик-производитель
	OEMVendorID *string
	// IsActive — активен ли продукт
	IsActive bool
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// OEMVendor — поставщик (OEM). Внешнее хранилище, только чтение.
type OEMVendor struct {
	ID          string
	TenantID    *string
	CompanyName string
	Categories  []string
	Email       *string
	Phone       *string
	IsActive    bool
}
