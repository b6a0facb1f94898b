package core

import (
	"strconv"
	"time"
)

// Export headers, exactly as they appear in downloaded spreadsheets.
const (
	HeaderAgency        = "Instansi"
	HeaderCount         = "Jumlah"
	HeaderFollowedUp    = "Ditindaklanjuti"
	HeaderNotFollowedUp = "Belum Ditindaklanjuti"
	HeaderTopics        = "Topik"
	HeaderChannel       = "Channel"
	HeaderDate          = "Tanggal"
	HeaderCategory      = "Kategori"
	HeaderPercentage    = "Persentase"
)

type (
	// AgencyRow is one agency among completed records.
	AgencyRow struct {
		Agency        string
		Count         int
		FollowedUp    int
		NotFollowedUp int
		Topics        string // distinct topics joined with ", "
	}

	// CountRow is one distinct value of a grouping column and its frequency.
	CountRow struct {
		Value string
		Count int
	}

	// DateCount is the number of records reported on one calendar day.
	DateCount struct {
		Date  time.Time
		Count int
	}

	// CategoryShare is a category's count and its share of the total.
	CategoryShare struct {
		Category   string
		Count      int
		Percentage float64
	}

	// Table is a header row plus data rows, ready for export or display.
	Table struct {
		Name    string
		Headers []string
		Rows    [][]any
	}
)

// Label formats the percentage with one decimal place.
func (s CategoryShare) Label() string {
	return strconv.FormatFloat(s.Percentage, 'f', 1, 64)
}

// AgencyTable converts an agency summary into its export layout.
func AgencyTable(name string, rows []AgencyRow) Table {
	t := Table{
		Name:    name,
		Headers: []string{HeaderAgency, HeaderCount, HeaderFollowedUp, HeaderNotFollowedUp, HeaderTopics},
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Agency, r.Count, r.FollowedUp, r.NotFollowedUp, r.Topics})
	}
	return t
}

// CountTable converts value counts into a two-column table whose first
// header is valueHeader.
func CountTable(name, valueHeader string, rows []CountRow) Table {
	t := Table{
		Name:    name,
		Headers: []string{valueHeader, HeaderCount},
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Value, r.Count})
	}
	return t
}

// DateTable converts a daily trend into a two-column table.
func DateTable(name string, rows []DateCount) Table {
	t := Table{
		Name:    name,
		Headers: []string{HeaderDate, HeaderCount},
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Date.Format(DateLayout), r.Count})
	}
	return t
}

// ShareTable converts a percentage breakdown into a three-column table.
// The percentage is exported as its one-decimal display text.
func ShareTable(name string, rows []CategoryShare) Table {
	t := Table{
		Name:    name,
		Headers: []string{HeaderCategory, HeaderCount, HeaderPercentage},
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Category, r.Count, r.Label()})
	}
	return t
}
