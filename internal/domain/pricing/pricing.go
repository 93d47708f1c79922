// Пакет pricing — вычисление итоговой ставки позиции BOQ и сводки по ведомости.
// Чистые функции без состояния и блокировок.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

var (
	// ErrNegativeQuantity — отрицательное количество.
	ErrNegativeQuantity = errors.New("количество не может быть отрицательным")
	// ErrGSTOutOfRange — ставка GST вне диапазона [0, 100].
	ErrGSTOutOfRange = errors.New("ставка GST должна быть в диапазоне [0, 100]")
	// ErrNegativeRate — отрицательная ставка.
	ErrNegativeRate = errors.New("ставка не может быть отрицательной")
)

var hundred = decimal.NewFromInt(100)

// ResolveFinalRate возвращает ручную ставку, если она задана,
// иначе предлагаемую, иначе nil (позиция не оценена).
func ResolveFinalRate(manual, suggested *decimal.Decimal) *decimal.Decimal {
	switch {
	case manual != nil:
		v := *manual
		return &v
	case suggested != nil:
		v := *suggested
		return &v
	default:
		return nil
	}
}

// Apply пересчитывает FinalRate позиции по её ставкам.
func Apply(item *model.BOQItem) {
	item.FinalRate = ResolveFinalRate(item.ManualRate, item.SuggestedRate)
}

// LineTotal — стоимость позиции без налога (nil для неоценённой позиции).
func LineTotal(finalRate *decimal.Decimal, quantity decimal.Decimal) *decimal.Decimal {
	if finalRate == nil {
		return nil
	}
	v := finalRate.Mul(quantity)
	return &v
}

// LineTax — налог по позиции (nil для неоценённой позиции).
func LineTax(lineTotal *decimal.Decimal, gstPercent decimal.Decimal) *decimal.Decimal {
	if lineTotal == nil {
		return nil
	}
	v := lineTotal.Mul(gstPercent).Div(hundred)
	return &v
}

// Summarize считает сводку по позициям за один проход.
// Неоценённые позиции в суммы не входят, считаются в UnpricedItems.
func Summarize(items []*model.BOQItem) model.BOQSummary {
	s := model.BOQSummary{
		TotalItems: len(items),
		Subtotal:   decimal.Zero,
		TotalTax:   decimal.Zero,
	}
	for _, it := range items {
		total := LineTotal(it.FinalRate, it.Quantity)
		if total == nil {
			s.UnpricedItems++
			continue
		}
		s.PricedItems++
		s.Subtotal = s.Subtotal.Add(*total)
		s.TotalTax = s.TotalTax.Add(*LineTax(total, it.GSTPercent))
	}
	s.GrandTotal = s.Subtotal.Add(s.TotalTax)
	return s
}

// ValidateQuantity проверяет, что количество неотрицательно.
func ValidateQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return ErrNegativeQuantity
	}
	return nil
}

// ValidateGST проверяет, что ставка GST в диапазоне [0, 100].
func ValidateGST(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return ErrGSTOutOfRange
	}
	return nil
}

// ValidateRate проверяет, что ставка (если задана) неотрицательна.
func ValidateRate(r *decimal.Decimal) error {
	if r != nil && r.IsNegative() {
		return ErrNegativeRate
	}
	return nil
}
