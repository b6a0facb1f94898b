package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"autorkm/internal/core"
)

// maxSheetName is Excel's limit on sheet title length.
const maxSheetName = 31

// WriteTable writes a single-sheet workbook holding t.
func WriteTable(w io.Writer, t core.Table) error {
	return WriteWorkbook(w, t)
}

// WriteWorkbook writes one sheet per table, in order. The header is row 1
// and rows follow without an index column.
func WriteWorkbook(w io.Writer, tables ...core.Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("write workbook: no tables")
	}
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	for i, t := range tables {
		name := sheetName(t.Name, i)
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return fmt.Errorf("rename sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, t); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t core.Table) error {
	head := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("write header of %q: %w", sheet, err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write row %d of %q: %w", i+2, sheet, err)
		}
	}
	return nil
}

// ReadTable reads a sheet written by WriteWorkbook back as text cells. An
// empty sheet name selects the first sheet.
func ReadTable(r io.Reader, sheet string) (core.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return core.Table{}, core.Unexpected("open workbook", err)
	}
	defer f.Close()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return core.Table{}, core.Unexpected("open workbook", core.ErrEmptyWorkbook)
		}
		sheet = list[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return core.Table{}, core.Unexpected("read sheet "+sheet, err)
	}
	if len(rows) == 0 {
		return core.Table{}, core.Unexpected("read sheet "+sheet, core.ErrNoHeader)
	}

	t := core.Table{Name: sheet, Headers: rows[0], Rows: make([][]any, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		cells := make([]any, len(t.Headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = row[i]
			} else {
				cells[i] = ""
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

func sheetName(name string, i int) string {
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}
