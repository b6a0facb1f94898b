package core

import (
	"sort"
	"strings"
	"time"
)

// Column names and values that make up the spreadsheet data contract.
// Matching is exact and case-sensitive.
const (
	ColAgency      Column = "Instansi"
	ColTopic       Column = "Topik"
	ColChannel     Column = "Channel"
	ColStatus      Column = "Status"
	ColSubDistrict Column = "Kecamatan"
	ColWard        Column = "Kelurahan"
	ColCategory    Column = "Kategori"
	ColDate        Column = "Tanggal"

	StatusCompleted            = "Selesai"
	CategoryComplaint          = "Keluhan"
	CategoryInformationRequest = "Permohonan Informasi"

	// DateLayout is the calendar-date form used for grouping and display.
	DateLayout = "2006-01-02"
)

type (
	Column string

	// ComplaintRecord is one row of the uploaded sheet.
	ComplaintRecord struct {
		Agency      string
		Topic       string
		Channel     string
		Status      string
		SubDistrict string
		Ward        string
		Category    string
		ReportDate  time.Time // zero when the cell is empty or the column is absent
	}

	// Dataset is the whole upload: the header set as found in the file and
	// the rows in file order. It is never mutated after loading.
	Dataset struct {
		columns map[Column]struct{}
		Records []ComplaintRecord
	}
)

// KnownColumns lists every column the aggregator can read.
var KnownColumns = []Column{
	ColAgency, ColTopic, ColChannel, ColStatus,
	ColSubDistrict, ColWard, ColCategory, ColDate,
}

// NewDataset builds a dataset from a header list and typed records.
func NewDataset(columns []Column, records []ComplaintRecord) Dataset {
	set := make(map[Column]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return Dataset{columns: set, Records: records}
}

// HasColumn reports whether the source file carried the column.
func (d Dataset) HasColumn(c Column) bool {
	_, ok := d.columns[c]
	return ok
}

// Columns returns the header set in sorted order.
func (d Dataset) Columns() []Column {
	out := make([]Column, 0, len(d.columns))
	for c := range d.columns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of records.
func (d Dataset) Len() int {
	return len(d.Records)
}

// Where returns a dataset with the same header set holding only the
// records accepted by every predicate.
func (d Dataset) Where(preds ...Predicate) Dataset {
	out := make([]ComplaintRecord, 0, len(d.Records))
	for _, r := range d.Records {
		if matchAll(r, preds) {
			out = append(out, r)
		}
	}
	return Dataset{columns: d.columns, Records: out}
}

// Value returns the record's cell for the given column. Dates are rendered
// with DateLayout; an empty string means the cell was blank.
func (r ComplaintRecord) Value(c Column) string {
	switch c {
	case ColAgency:
		return r.Agency
	case ColTopic:
		return r.Topic
	case ColChannel:
		return r.Channel
	case ColStatus:
		return r.Status
	case ColSubDistrict:
		return r.SubDistrict
	case ColWard:
		return r.Ward
	case ColCategory:
		return r.Category
	case ColDate:
		if r.ReportDate.IsZero() {
			return ""
		}
		return r.ReportDate.Format(DateLayout)
	}
	return ""
}

// Completed reports whether the record carries the completed status.
func (r ComplaintRecord) Completed() bool {
	return r.Status == StatusCompleted
}

// Predicate selects records.
type Predicate func(ComplaintRecord) bool

// WithStatus matches an exact status value.
func WithStatus(status string) Predicate {
	return func(r ComplaintRecord) bool { return r.Status == status }
}

// InCategory matches an exact category value.
func InCategory(category string) Predicate {
	return func(r ComplaintRecord) bool { return r.Category == category }
}

// AgencyPrefix matches agencies whose name starts with prefix (case-sensitive).
func AgencyPrefix(prefix string) Predicate {
	return func(r ComplaintRecord) bool { return strings.HasPrefix(r.Agency, prefix) }
}

// ForAgency matches one agency exactly.
func ForAgency(agency string) Predicate {
	return func(r ComplaintRecord) bool { return r.Agency == agency }
}

func matchAll(r ComplaintRecord, preds []Predicate) bool {
	for _, p := range preds {
		if p != nil && !p(r) {
			return false
		}
	}
	return true
}
