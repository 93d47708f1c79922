package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Источники предлагаемой ставки (SuggestedRateSource).
const (
	// RateSourceCatalogMatch — ставка взята из прайса сопоставленного продукта каталога.
	RateSourceCatalogMatch = "catalog_match"
	// RateSourceUserInput — ставка введена пользователем.
	RateSourceUserInput = "user_input"
	// RateSourceVendorQuotePrefix — префикс источника для ставки из выбранного КП поставщика.
	RateSourceVendorQuotePrefix = "vendor_quote:"
)

// DefaultGSTPercent — ставка GST по умолчанию для новых позиций.
var DefaultGSTPercent = decimal.NewFromInt(18)

// BOQItem — позиция ведомости объёмов работ (Bill of Quantities).
// Хранится в таблице boq_items.
type BOQItem struct {
	// ID — UUID позиции
	ID string
	// TenantID — идентификатор арендатора
	TenantID string
	// TenderID — тендер, к которому относится позиция
	TenderID string
	// ItemNumber — номер позиции для отображения (не ключ сортировки)
	ItemNumber string
	// Description — описание позиции (обязательно)
	Description string
	// Specifications — текст спецификации (опционально)
	Specifications *string
	// HSNCode — код HSN/SAC
	HSNCode *string
	// Quantity — количество (неотрицательное)
	Quantity decimal.Decimal
	// Unit — единица измерения
	Unit string
	// SuggestedRate — предлагаемая системой ставка
	SuggestedRate *decimal.Decimal
	// SuggestedRateSource — происхождение предлагаемой ставки
	SuggestedRateSource *string
	// ManualRate — ставка, заданная вручную
	ManualRate *decimal.Decimal
	// FinalRate — итоговая ставка, вычисляется при каждой записи
	FinalRate *decimal.Decimal
	// GSTPercent — ставка GST в процентах [0, 100]
	GSTPercent decimal.Decimal
	// MatchedProductID — сопоставленный продукт каталога
	MatchedProductID *string
	// MatchingConfidence — уверенность сопоставления [0, 1]
	MatchingConfidence *float64
	// SelectedVendorQuoteID — выбранное КП поставщика
	SelectedVendorQuoteID *string
	// RowOrder — порядковый ключ (строго возрастает, допускает пропуски)
	RowOrder int
	// Notes — примечания
	Notes *string
	// Version — версия для оптимистичной блокировки
	Version int
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// BOQSummary — сводка по ведомости тендера.
// Неоценённые позиции не входят в суммы и считаются отдельно.
type BOQSummary struct {
	TotalItems    int
	PricedItems   int
	UnpricedItems int
	Subtotal      decimal.Decimal
	TotalTax      decimal.Decimal
	GrandTotal    decimal.Decimal
}

// Ledger — служебная строка ведомости тендера (boq_ledgers).
// Сериализует структурные изменения и хранит их счётчик.
type Ledger struct {
	TenantID string
	TenderID string
	// Version — увеличивается при добавлении, удалении и переупорядочивании
	Version int64
}
