package sheets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"autorkm/internal/core"
)

// dateLayouts are tried in order for date cells stored as text.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// maxExcelSerial is 9999-12-31, the last date Excel can store.
const maxExcelSerial = 2958465

// compactLayout matches yyyymmdd cells, which would otherwise read as
// out-of-range serial numbers.
const compactLayout = "20060102"

// FromValues converts a header-first matrix of cell text into a dataset.
// Row 1 is the header; blank rows are skipped. Columns outside the data
// contract stay in the header set but are not read. Failures are returned
// as *core.UnexpectedError.
func FromValues(rows [][]string) (core.Dataset, error) {
	if len(rows) == 0 || isBlank(rows[0]) {
		return core.Dataset{}, core.Unexpected("read header", core.ErrNoHeader)
	}

	header := rows[0]
	columns := make([]core.Column, 0, len(header))
	index := map[core.Column]int{}
	for i, h := range header {
		if h == "" {
			continue
		}
		c := core.Column(h)
		if _, dup := index[c]; dup {
			continue
		}
		index[c] = i
		columns = append(columns, c)
	}

	get := func(row []string, c core.Column) string {
		i, ok := index[c]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]core.ComplaintRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := core.ComplaintRecord{
			Agency:      get(row, core.ColAgency),
			Topic:       get(row, core.ColTopic),
			Channel:     get(row, core.ColChannel),
			Status:      get(row, core.ColStatus),
			SubDistrict: get(row, core.ColSubDistrict),
			Ward:        get(row, core.ColWard),
			Category:    get(row, core.ColCategory),
		}
		date, err := ParseDate(get(row, core.ColDate))
		if err != nil {
			// n is zero-based over data rows; sheet rows are one-based with a header.
			return core.Dataset{}, core.Unexpected(fmt.Sprintf("parse %s on row %d", core.ColDate, n+2), err)
		}
		rec.ReportDate = date
		records = append(records, rec)
	}
	return core.NewDataset(columns, records), nil
}

// ParseDate accepts an Excel serial number or one of the common textual
// layouts. A blank cell yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) == len(compactLayout) && isDigits(s) {
		if t, err := time.Parse(compactLayout, s); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < 1 || serial >= maxExcelSerial+1 {
			return time.Time{}, fmt.Errorf("date serial %s out of range", s)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognised date " + strconv.Quote(s))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
