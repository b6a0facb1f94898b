// Package xlsx reads complaint workbooks and writes summary tables using
// excelize.
package xlsx

import (
	"context"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"autorkm/internal/core"
	"autorkm/internal/sheets"
)

// ContentType is the MIME type of the workbooks this package writes.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ParseDataset reads the first sheet of an XLSX workbook. Row 1 is the
// header; every later non-blank row becomes a record. Failures are
// returned as *core.UnexpectedError.
func ParseDataset(r io.Reader) (core.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return core.Dataset{}, core.Unexpected("open workbook", err)
	}
	defer f.Close()

	list := f.GetSheetList()
	if len(list) == 0 {
		return core.Dataset{}, core.Unexpected("open workbook", core.ErrEmptyWorkbook)
	}
	rows, err := f.GetRows(list[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return core.Dataset{}, core.Unexpected("read sheet "+list[0], err)
	}
	return sheets.FromValues(rows)
}

// FileReader reads a dataset from a workbook on disk.
type FileReader struct {
	Path string
}

var _ sheets.DatasetReader = FileReader{}

// ReadDataset implements sheets.DatasetReader.
func (r FileReader) ReadDataset(ctx context.Context) (core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return core.Dataset{}, err
	}
	f, err := os.Open(r.Path)
	if err != nil {
		return core.Dataset{}, core.Unexpected("open "+r.Path, err)
	}
	defer f.Close()
	return ParseDataset(f)
}
