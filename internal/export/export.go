// Package export writes table contents to Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/noah-analytics/noah-server/internal/table"
)

// RowSet selects which rows of a table are exported
type RowSet string

const (
	// VisibleRows exports the current page
	VisibleRows RowSet = "visible"
	// FilteredRows exports every row passing the active filters
	FilteredRows RowSet = "filtered"
	// AllRows exports every row regardless of filters
	AllRows RowSet = "all"
)

// SheetName is the name of the single worksheet
const SheetName = "Export"

// pixels per Excel character width unit
const pixelsPerChar = 7.0

// ParseRowSet validates a row-set name, defaulting to FilteredRows when empty
func ParseRowSet(s string) (RowSet, error) {
	switch RowSet(s) {
	case "":
		return FilteredRows, nil
	case VisibleRows, FilteredRows, AllRows:
		return RowSet(s), nil
	}
	return "", fmt.Errorf("unknown row set %q (want visible, filtered or all)", s)
}

// FileName returns the download name for a page export, e.g. nhqi_2024-03-09.xlsx
func FileName(page string, now time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", page, now.Format("2006-01-02"))
}

// Workbook writes the downloadable columns of t to w as an xlsx workbook.
// The header row is bold; body cells are top-aligned and wrapped.
func Workbook(t *table.Table, set RowSet, w io.Writer) error {
	var rows []table.Row
	switch set {
	case VisibleRows:
		rows = t.PageRows()
	case FilteredRows:
		rows = t.FilteredRows()
	case AllRows:
		rows = t.CoreRows()
	default:
		return fmt.Errorf("unknown row set %q", set)
	}

	var cols []table.ColumnDef
	for _, c := range t.Columns() {
		if c.Download {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return fmt.Errorf("table has no downloadable columns")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("failed to create body style: %w", err)
	}

	for i, c := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, c.Header); err != nil {
			return fmt.Errorf("failed to write header %q: %w", c.Header, err)
		}

		if c.Width > 0 {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return err
			}
			if err := f.SetColWidth(SheetName, name, name, float64(c.Width)/pixelsPerChar); err != nil {
				return fmt.Errorf("failed to size column %q: %w", c.ID, err)
			}
		}
	}

	for r, row := range rows {
		for i, c := range cols {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(SheetName, cell, cellValue(t.Cell(row, c.ID))); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	lastCol, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if len(rows) > 0 {
		lastCell, err := excelize.CoordinatesToCellName(len(cols), len(rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, "A2", lastCell, bodyStyle); err != nil {
			return fmt.Errorf("failed to style body: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// cellValue keeps numbers and booleans native so spreadsheets can sum them
func cellValue(v any) any {
	switch x := v.(type) {
	case float64, int, int64, bool:
		return x
	}
	return table.CellString(v)
}
