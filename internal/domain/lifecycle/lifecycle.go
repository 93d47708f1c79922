// Пакет lifecycle — матрицы допустимых переходов статусов RFQ и КП поставщиков.
//
// RFQ: draft → sent → closed; sent → sent (дослать новым поставщикам);
// closed → sent или draft (повторное открытие).
//
// КП: received → under_review → selected или rejected;
// selected → rejected (вытеснено другим КП); rejected → selected или under_review.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeUnknownStatus     = "UNKNOWN_STATUS"
)

// rfqTransitions — ключ: текущий статус, значение: допустимые целевые.
var rfqTransitions = map[string]map[string]bool{
	model.RFQStatusDraft:  {model.RFQStatusSent: true, model.RFQStatusClosed: true},
	model.RFQStatusSent:   {model.RFQStatusSent: true, model.RFQStatusClosed: true},
	model.RFQStatusClosed: {model.RFQStatusSent: true, model.RFQStatusDraft: true},
}

var quoteTransitions = map[string]map[string]bool{
	model.QuoteStatusReceived: {
		model.QuoteStatusUnderReview: true,
		model.QuoteStatusSelected:    true,
		model.QuoteStatusRejected:    true,
	},
	model.QuoteStatusUnderReview: {
		model.QuoteStatusSelected: true,
		model.QuoteStatusRejected: true,
	},
	model.QuoteStatusSelected: {
		model.QuoteStatusSelected: true,
		model.QuoteStatusRejected: true,
	},
	model.QuoteStatusRejected: {
		model.QuoteStatusUnderReview: true,
		model.QuoteStatusSelected:    true,
	},
}

// TransitionError — недопустимый переход статуса.
type TransitionError struct {
	Code    string // INVALID_TRANSITION, UNKNOWN_STATUS
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CheckRFQ проверяет переход статуса RFQ.
func CheckRFQ(from, to string) error {
	return check(rfqTransitions, "RFQ", from, to)
}

// CheckQuote проверяет переход статуса КП.
func CheckQuote(from, to string) error {
	return check(quoteTransitions, "КП", from, to)
}

// AcceptsResponses — в RFQ можно регистрировать ответы поставщиков.
func AcceptsResponses(status string) bool {
	return status == model.RFQStatusSent
}

func check(matrix map[string]map[string]bool, kind, from, to string) error {
	targets, ok := matrix[from]
	if !ok {
		return &TransitionError{
			Code:    CodeUnknownStatus,
			Message: fmt.Sprintf("неизвестный статус %s: %q", kind, from),
		}
	}
	if _, known := matrix[to]; !known {
		return &TransitionError{
			Code:    CodeUnknownStatus,
			Message: fmt.Sprintf("неизвестный статус %s: %q", kind, to),
		}
	}
	if !targets[to] {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s %s → %s недопустим", kind, from, to),
		}
	}
	return nil
}
