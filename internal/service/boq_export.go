// boq_export.go — выгрузка ведомости тендера в XLSX.
package service

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/hexabid/costing-module/internal/domain/pricing"
)

const exportSheet = "BOQ"

var exportHeader = []string{
	"№", "Номер позиции", "Описание", "Спецификация", "HSN", "Количество", "Ед.",
	"Ставка", "GST, %", "Сумма", "Налог", "Итого", "Источник ставки",
}

// Export пишет ведомость тендера в w в формате XLSX:
// заголовок, позиции по row_order и блок сводки.
func (s *BOQLedgerService) Export(ctx context.Context, tenantID, tenderID string, w io.Writer) error {
	view, err := s.ListForTender(ctx, tenantID, tenderID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("создание листа: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("создание стиля: %w", err)
	}

	for col, title := range exportHeader {
		if err := setCell(f, col+1, 1, title); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("стиль заголовка: %w", err)
	}

	row := 2
	for i, item := range view.Items {
		total := pricing.LineTotal(item.FinalRate, item.Quantity)
		tax := pricing.LineTax(total, item.GSTPercent)
		var gross *decimal.Decimal
		if total != nil {
			v := total.Add(*tax)
			gross = &v
		}

		values := []any{
			i + 1,
			item.ItemNumber,
			item.Description,
			derefString(item.Specifications),
			derefString(item.HSNCode),
			item.Quantity.InexactFloat64(),
			item.Unit,
			decimalCell(item.FinalRate),
			item.GSTPercent.InexactFloat64(),
			decimalCell(total),
			decimalCell(tax),
			decimalCell(gross),
			derefString(item.SuggestedRateSource),
		}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
		row++
	}

	row++
	summary := []struct {
		label string
		value any
	}{
		{"Позиций", view.Summary.TotalItems},
		{"Оценено", view.Summary.PricedItems},
		{"Без ставки", view.Summary.UnpricedItems},
		{"Сумма без налога", view.Summary.Subtotal.InexactFloat64()},
		{"Налог", view.Summary.TotalTax.InexactFloat64()},
		{"Итого", view.Summary.GrandTotal.InexactFloat64()},
	}
	for _, line := range summary {
		if err := setCell(f, 11, row, line.label); err != nil {
			return err
		}
		if err := setCell(f, 12, row, line.value); err != nil {
			return err
		}
		labelCell, _ := excelize.CoordinatesToCellName(11, row)
		if err := f.SetCellStyle(exportSheet, labelCell, labelCell, bold); err != nil {
			return fmt.Errorf("стиль сводки: %w", err)
		}
		row++
	}

	if err := f.SetColWidth(exportSheet, "C", "D", 48); err != nil {
		return fmt.Errorf("ширина колонок: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("запись XLSX: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("адрес ячейки: %w", err)
	}
	if err := f.SetCellValue(exportSheet, cell, value); err != nil {
		return fmt.Errorf("запись ячейки %s: %w", cell, err)
	}
	return nil
}

// decimalCell — число для ячейки или пустая строка для неоценённой позиции.
func decimalCell(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
