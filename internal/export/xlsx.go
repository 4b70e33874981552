// Package export writes batch extraction results to an XLSX workbook.
package export

import (
	"fmt"
	"io"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/pipeline"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding one row per card.
const SheetName = "Cards"

var fixedHeaders = []string{"Card", "Run ID", "State", "Message"}

// Row is the result of one card in a batch.
type Row struct {
	Name    string
	Outcome *pipeline.Outcome
	Err     error
}

func (r Row) records(partial bool) []models.Record {
	if r.Outcome == nil {
		return nil
	}
	return r.Outcome.Visible(partial)
}

// Columns returns the field columns: the queries' fields in order, then any
// other key the model returned, in first-seen order.
func Columns(rows []Row, queries []models.Query, partial bool) []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	for _, q := range queries {
		for _, f := range q.Fields {
			add(f)
		}
	}
	for _, r := range rows {
		for _, rec := range r.records(partial) {
			for _, f := range rec.Fields {
				add(f.Key)
			}
		}
	}
	return cols
}

// WriteWorkbook writes rows to w as an XLSX workbook.
func WriteWorkbook(w io.Writer, rows []Row, queries []models.Query, partial bool) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	index, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	cols := Columns(rows, queries, partial)
	headers := append(append([]string(nil), fixedHeaders...), cols...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(SheetName, "A1", last, style)
	}

	colIndex := make(map[string]int, len(cols))
	for i, c := range cols {
		colIndex[c] = len(fixedHeaders) + i + 1
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) error {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			return f.SetCellValue(SheetName, cell, v)
		}
		values := []any{r.Name, "", "", pipeline.UserMessage(r.Err)}
		if r.Outcome != nil {
			values[1] = r.Outcome.RunID
			values[2] = string(r.Outcome.State)
		}
		for col, v := range values {
			if err := write(col+1, v); err != nil {
				return err
			}
		}
		for _, rec := range r.records(partial) {
			for _, fld := range rec.Fields {
				if err := write(colIndex[fld.Key], fld.Value); err != nil {
					return err
				}
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "B", "B", 30)
	_ = f.SetColWidth(SheetName, "C", "C", 12)
	_ = f.SetColWidth(SheetName, "D", "D", 40)
	if len(cols) > 0 {
		first, _ := excelize.ColumnNumberToName(len(fixedHeaders) + 1)
		last, _ := excelize.ColumnNumberToName(len(headers))
		_ = f.SetColWidth(SheetName, first, last, 22)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
