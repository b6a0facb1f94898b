package http

import (
	"net/url"
	"time"

	"autorkm/internal/aggregator"
	"autorkm/internal/core"
	"autorkm/internal/services"
)

// drillCategories lists the sections whose agency rows open a topic
// breakdown, and the category the breakdown is narrowed to.
var drillCategories = map[string]string{
	aggregator.SectionAgency:            "",
	aggregator.SectionComplaintAgencies: core.CategoryComplaint,
	aggregator.SectionInfoAgencies:      core.CategoryInformationRequest,
}

type pageView struct {
	SheetsEnabled bool
	MaxUploadMB   int64
	Report        *reportView
}

type reportView struct {
	ID        string
	Source    string
	FileName  string
	Rows      string
	Completed string
	Columns   []string
	Generated string
	Failed    int
	ExportURL string
	DataURL   string
	Sections  []sectionView
}

type sectionView struct {
	ID        string
	Title     string
	ChartURL  string
	ExportURL string
	Headers   []string
	Rows      []rowView
	Err       string
}

type rowView struct {
	Cells     []string
	TopicsURL string
}

type topicsView struct {
	Agency   string
	Category string
	Rows     []rowView
	Err      string
}

func newReportView(e *services.Entry) *reportView {
	rep := e.Report
	v := &reportView{
		ID:        e.ID,
		Source:    e.Source,
		FileName:  e.FileName,
		Rows:      formatCount(rep.Rows),
		Completed: formatCount(rep.Completed),
		Generated: rep.Generated.Format("02/01/2006 15:04"),
		Failed:    len(rep.Failed()),
		ExportURL: reportURL(e.ID) + "/export/all.xlsx",
		DataURL:   reportURL(e.ID) + "/data",
	}
	for _, c := range rep.Columns {
		v.Columns = append(v.Columns, string(c))
	}
	for _, s := range rep.Sections {
		v.Sections = append(v.Sections, newSectionView(e.ID, s))
	}
	return v
}

func newSectionView(id string, s aggregator.Section) sectionView {
	v := sectionView{ID: s.ID, Title: s.Title, Headers: s.Table.Headers}
	if !s.OK() {
		v.Err = describeError(s.Err)
		return v
	}
	v.ExportURL = reportURL(id) + "/export/" + s.ID + ".xlsx"
	if s.Chart != aggregator.ChartNone && len(s.Values) > 0 {
		v.ChartURL = reportURL(id) + "/chart/" + s.ID + ".png"
	}
	category, drill := drillCategories[s.ID]
	for _, row := range s.Table.Rows {
		rv := rowView{Cells: make([]string, len(row))}
		for i, cell := range row {
			rv.Cells[i] = formatCell(cell)
		}
		if drill && len(rv.Cells) > 0 {
			rv.TopicsURL = topicsURL(id, rv.Cells[0], category)
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}

func topicsURL(id, agency, category string) string {
	q := url.Values{"agency": {agency}}
	if category != "" {
		q.Set("category", category)
	}
	return reportURL(id) + "/topics?" + q.Encode()
}

func newTopicsView(p TopicParams, rows []core.CountRow, err error) topicsView {
	v := topicsView{Agency: p.Agency, Category: p.Category}
	if err != nil {
		v.Err = describeError(err)
		return v
	}
	for _, r := range rows {
		v.Rows = append(v.Rows, rowView{Cells: []string{r.Value, formatCount(r.Count)}})
	}
	return v
}

// reportData is the JSON form of a report.
type reportData struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	FileName  string        `json:"file_name,omitempty"`
	Rows      int           `json:"rows"`
	Completed int           `json:"completed"`
	Columns   []string      `json:"columns"`
	Generated time.Time     `json:"generated"`
	Sections  []sectionData `json:"sections"`
}

type sectionData struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Chart   string    `json:"chart,omitempty"`
	Headers []string  `json:"headers"`
	Rows    [][]any   `json:"rows"`
	Labels  []string  `json:"labels"`
	Values  []float64 `json:"values"`
	Error   string    `json:"error,omitempty"`
}

func newReportData(e *services.Entry) reportData {
	rep := e.Report
	d := reportData{
		ID:        e.ID,
		Source:    e.Source,
		FileName:  e.FileName,
		Rows:      rep.Rows,
		Completed: rep.Completed,
		Columns:   make([]string, 0, len(rep.Columns)),
		Generated: rep.Generated,
		Sections:  make([]sectionData, 0, len(rep.Sections)),
	}
	for _, c := range rep.Columns {
		d.Columns = append(d.Columns, string(c))
	}
	for _, s := range rep.Sections {
		sd := sectionData{
			ID:      s.ID,
			Title:   s.Title,
			Chart:   string(s.Chart),
			Headers: s.Table.Headers,
			Rows:    s.Table.Rows,
			Labels:  s.Labels,
			Values:  s.Values,
		}
		if sd.Headers == nil {
			sd.Headers = []string{}
		}
		if sd.Rows == nil {
			sd.Rows = [][]any{}
		}
		if sd.Labels == nil {
			sd.Labels = []string{}
		}
		if sd.Values == nil {
			sd.Values = []float64{}
		}
		if !s.OK() {
			sd.Error = s.Err.Error()
		}
		d.Sections = append(d.Sections, sd)
	}
	return d
}
