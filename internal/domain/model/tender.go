package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tender — тендер из внешней подсистемы тендеров.
type Tender struct {
	ID       string
	TenantID string
	Title    string
	Value    *decimal.Decimal
	Currency string
	Status   string
	// Category — категория из результатов разбора (если есть)
	Category *string
	// SubmissionDeadline — срок подачи заявки
	SubmissionDeadline *time.Time
	// ParsingConfidence — уверенность разбора документации [0, 1]
	ParsingConfidence *float64
	// ParsedItems — позиции, извлечённые внешним парсером
	ParsedItems []ParsedItem
}

// ParsedItem — кандидат в позицию BOQ из результатов разбора тендера.
type ParsedItem struct {
	ItemNumber     string
	Description    string
	Specifications string
	Quantity       decimal.Decimal
	Unit           string
	HSNCode        string
}
