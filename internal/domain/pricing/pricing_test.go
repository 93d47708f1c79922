package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/model"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestResolveFinalRate(t *testing.T) {
	tests := []struct {
		name      string
		manual    *decimal.Decimal
		suggested *decimal.Decimal
		want      *decimal.Decimal
	}{
		{"обе ставки", dec("120"), dec("100"), dec("120")},
		{"только ручная", dec("120"), nil, dec("120")},
		{"только предлагаемая", nil, dec("100"), dec("100")},
		{"нет ставок", nil, nil, nil},
		{"ручная ноль перекрывает предлагаемую", dec("0"), dec("100"), dec("0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveFinalRate(tt.manual, tt.suggested)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("ожидался nil, получено %s", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Fatalf("получено %v, ожидалось %s", got, tt.want)
			}
		})
	}
}

func TestResolveFinalRate_CopiesValue(t *testing.T) {
	manual := dec("10")
	got := ResolveFinalRate(manual, nil)
	if got == manual {
		t.Error("итоговая ставка не должна разделять указатель с ручной")
	}
}

func TestLineTotalAndTax(t *testing.T) {
	total := LineTotal(dec("250.50"), decimal.NewFromInt(4))
	if total == nil || !total.Equal(decimal.RequireFromString("1002")) {
		t.Fatalf("LineTotal = %v, ожидалось 1002", total)
	}
	tax := LineTax(total, decimal.NewFromInt(18))
	if tax == nil || !tax.Equal(decimal.RequireFromString("180.36")) {
		t.Fatalf("LineTax = %v, ожидалось 180.36", tax)
	}

	if LineTotal(nil, decimal.NewFromInt(4)) != nil {
		t.Error("LineTotal для неоценённой позиции должен быть nil")
	}
	if LineTax(nil, decimal.NewFromInt(18)) != nil {
		t.Error("LineTax для неоценённой позиции должен быть nil")
	}
}

func TestSummarize(t *testing.T) {
	items := []*model.BOQItem{
		{Quantity: decimal.NewFromInt(2), FinalRate: dec("100"), GSTPercent: decimal.NewFromInt(18)},
		{Quantity: decimal.NewFromInt(10), FinalRate: dec("5.5"), GSTPercent: decimal.NewFromInt(5)},
		{Quantity: decimal.NewFromInt(3), FinalRate: nil, GSTPercent: decimal.NewFromInt(18)},
		{Quantity: decimal.NewFromInt(7), FinalRate: nil, GSTPercent: decimal.NewFromInt(12)},
	}

	s := Summarize(items)

	if s.TotalItems != 4 || s.PricedItems != 2 || s.UnpricedItems != 2 {
		t.Errorf("счётчики: total=%d priced=%d unpriced=%d", s.TotalItems, s.PricedItems, s.UnpricedItems)
	}
	if !s.Subtotal.Equal(decimal.RequireFromString("255")) {
		t.Errorf("Subtotal = %s, ожидалось 255", s.Subtotal)
	}
	if !s.TotalTax.Equal(decimal.RequireFromString("38.75")) {
		t.Errorf("TotalTax = %s, ожидалось 38.75", s.TotalTax)
	}
	if !s.GrandTotal.Equal(s.Subtotal.Add(s.TotalTax)) {
		t.Errorf("GrandTotal = %s не равен Subtotal + TotalTax", s.GrandTotal)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalItems != 0 || !s.GrandTotal.IsZero() {
		t.Errorf("пустая сводка: %+v", s)
	}
}

func TestValidate(t *testing.T) {
	if err := ValidateQuantity(decimal.NewFromInt(-1)); err != ErrNegativeQuantity {
		t.Errorf("ValidateQuantity(-1) = %v", err)
	}
	if err := ValidateQuantity(decimal.Zero); err != nil {
		t.Errorf("ValidateQuantity(0) = %v", err)
	}

	gstCases := map[string]bool{"-0.01": false, "0": true, "18": true, "100": true, "100.01": false}
	for v, ok := range gstCases {
		err := ValidateGST(decimal.RequireFromString(v))
		if ok && err != nil {
			t.Errorf("ValidateGST(%s) = %v, ожидалось nil", v, err)
		}
		if !ok && err != ErrGSTOutOfRange {
			t.Errorf("ValidateGST(%s) = %v, ожидалось ErrGSTOutOfRange", v, err)
		}
	}

	if err := ValidateRate(dec("-5")); err != ErrNegativeRate {
		t.Errorf("ValidateRate(-5) = %v", err)
	}
	if err := ValidateRate(nil); err != nil {
		t.Errorf("ValidateRate(nil) = %v", err)
	}
}
