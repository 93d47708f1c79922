package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы КП поставщика.
const (
	QuoteStatusReceived    = "received"
	QuoteStatusUnderReview = "under_review"
	QuoteStatusSelected    = "selected"
	QuoteStatusRejected    = "rejected"
)

// DefaultCurrency — валюта КП по умолчанию.
const DefaultCurrency = "INR"

// QuoteLine — строка КП поставщика.
// Хранится в vendor_quotes.line_items (jsonb).
type QuoteLine struct {
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit,omitempty"`
	UnitRate     decimal.Decimal `json:"unit_rate"`
	BOQItemID    *string         `json:"boq_item_id,omitempty"`
	Brand        *string         `json:"brand,omitempty"`
	Model        *string         `json:"model,omitempty"`
	LeadTimeDays *int            `json:"lead_time_days,omitempty"`
}

// VendorQuote — коммерческое предложение поставщика.
// После создания меняется только статус.
type VendorQuote struct {
	// ID — UUID КП
	ID string
	// TenantID — идентификатор арендатора
	TenantID string
	// TenderID — тендер
	TenderID string
	// VendorID — поставщик
	VendorID string
	// RFQID — запрос, в ответ на который получено КП (опционально)
	RFQID *string
	// QuoteNumber — номер КП у поставщика
	QuoteNumber *string
	// QuoteDate — дата КП
	QuoteDate *time.Time
	// ValidUntil — срок действия
	ValidUntil *time.Time
	// Currency — валюта
	Currency string
	// TotalAmount — общая сумма
	TotalAmount decimal.Decimal
	// Lines — строки КП
	Lines []QuoteLine
	// PaymentTerms — условия оплаты
	PaymentTerms *string
	// DeliveryTerms — условия поставки
	DeliveryTerms *string
	// WarrantyTerms — гарантийные условия
	WarrantyTerms *string
	// QuoteDocumentURL — ссылка на документ КП
	QuoteDocumentURL *string
	// InternalNotes — внутренние заметки
	InternalNotes *string
	// Status — статус (received, under_review, selected, rejected)
	Status string
	// Version — версия для оптимистичной блокировки
	Version int
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Clone возвращает копию КП с собственным срезом строк.
func (q *VendorQuote) Clone() *VendorQuote {
	c := *q
	c.Lines = append([]QuoteLine(nil), q.Lines...)
	return &c
}

// QuoteSelection — текущий выбор КП для позиции BOQ.
// У позиции не более одного выбранного КП.
type QuoteSelection struct {
	TenantID       string
	BOQItemID      string
	QuoteID        string
	QuoteLineIndex int
	SelectedAt     time.Time
}
