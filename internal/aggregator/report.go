package aggregator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"autorkm/internal/core"
)

// Section identifiers. They double as URL path segments and sheet names.
const (
	SectionAgency            = "rkm"
	SectionChannel           = "channel"
	SectionSubDistrict       = "kecamatan"
	SectionWard              = "kelurahan"
	SectionComplaintAgencies = "instansi-keluhan"
	SectionInfoAgencies      = "instansi-permohonan"
	SectionCategories        = "kategori"
	SectionComplaintTrend    = "tren-keluhan"
	SectionInfoTrend         = "tren-permohonan"
)

// ChartKind tells the presentation layer how to draw a section.
type ChartKind string

const (
	ChartNone ChartKind = ""
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
)

// Section is one derived table of a report. Err is set, and the data
// fields are empty, when the derivation failed; sibling sections are not
// affected.
type Section struct {
	ID    string
	Title string
	Chart ChartKind
	Table core.Table
	// Labels and Values are the chart series, in table order.
	Labels []string
	Values []float64
	Err    error
}

// OK reports whether the section was derived.
func (s Section) OK() bool { return s.Err == nil }

// Report holds every section derived from one dataset.
type Report struct {
	Rows      int
	Completed int
	Columns   []core.Column
	Sections  []Section
	Generated time.Time
}

// Section looks a section up by ID.
func (r *Report) Section(id string) (Section, bool) {
	for _, s := range r.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Failed returns the sections whose derivation failed.
func (r *Report) Failed() []Section {
	var out []Section
	for _, s := range r.Sections {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// ReportOptions tunes the category views.
type ReportOptions struct {
	// CategoryAgencyPrefix narrows the per-category agency views, for
	// example to "Dinas". Empty keeps every agency.
	CategoryAgencyPrefix string
	// Limit truncates the top-N views; zero means TopN.
	Limit int
}

type sectionDef struct {
	id    string
	title string
	chart ChartKind
	build func(ds core.Dataset, opts ReportOptions) (Section, error)
}

var sectionDefs = []sectionDef{
	{SectionAgency, "Hasil RKM", ChartNone, func(ds core.Dataset, _ ReportOptions) (Section, error) {
		rows, err := AgencySummary(ds)
		if err != nil {
			return Section{}, err
		}
		s := Section{Table: core.AgencyTable(SectionAgency, rows)}
		for _, r := range rows {
			s.Labels = append(s.Labels, r.Agency)
			s.Values = append(s.Values, float64(r.Count))
		}
		return s, nil
	}},
	{SectionChannel, "Jumlah Keluhan Masyarakat berdasarkan Media", ChartBar, func(ds core.Dataset, _ ReportOptions) (Section, error) {
		rows, err := ChannelSummary(ds)
		if err != nil {
			return Section{}, err
		}
		return countSection(SectionChannel, core.HeaderChannel, rows), nil
	}},
	{SectionSubDistrict, "5 Kecamatan dengan Keluhan Masyarakat Terbanyak", ChartBar, func(ds core.Dataset, opts ReportOptions) (Section, error) {
		return groupedSection(ds, SectionSubDistrict, core.HeaderAgency, GroupQuery{
			GroupBy:      core.ColAgency,
			AgencyPrefix: "Kecamatan",
			Limit:        opts.Limit,
			Require:      []core.Column{core.ColSubDistrict},
		})
	}},
	{SectionWard, "5 Kelurahan dengan Keluhan Masyarakat Terbanyak", ChartBar, func(ds core.Dataset, opts ReportOptions) (Section, error) {
		return groupedSection(ds, SectionWard, core.HeaderAgency, GroupQuery{
			GroupBy:      core.ColAgency,
			AgencyPrefix: "Kelurahan",
			Limit:        opts.Limit,
			Require:      []core.Column{core.ColWard},
		})
	}},
	{SectionComplaintAgencies, "5 Instansi dengan Keluhan Terbanyak", ChartBar, func(ds core.Dataset, opts ReportOptions) (Section, error) {
		return groupedSection(ds, SectionComplaintAgencies, core.HeaderAgency, GroupQuery{
			GroupBy:      core.ColAgency,
			Category:     core.CategoryComplaint,
			AgencyPrefix: opts.CategoryAgencyPrefix,
			Limit:        opts.Limit,
		})
	}},
	{SectionInfoAgencies, "5 Instansi dengan Permohonan Informasi Terbanyak", ChartBar, func(ds core.Dataset, opts ReportOptions) (Section, error) {
		return groupedSection(ds, SectionInfoAgencies, core.HeaderAgency, GroupQuery{
			GroupBy:      core.ColAgency,
			Category:     core.CategoryInformationRequest,
			AgencyPrefix: opts.CategoryAgencyPrefix,
			Limit:        opts.Limit,
		})
	}},
	{SectionCategories, "Persentase Kategori", ChartBar, func(ds core.Dataset, _ ReportOptions) (Section, error) {
		shares, err := PercentageBreakdown(ds)
		if err != nil {
			return Section{}, err
		}
		s := Section{Table: core.ShareTable(SectionCategories, shares)}
		for _, sh := range shares {
			s.Labels = append(s.Labels, sh.Category)
			s.Values = append(s.Values, sh.Percentage)
		}
		return s, nil
	}},
	{SectionComplaintTrend, "Tren Harian Keluhan", ChartLine, func(ds core.Dataset, _ ReportOptions) (Section, error) {
		return trendSection(ds, SectionComplaintTrend, core.CategoryComplaint)
	}},
	{SectionInfoTrend, "Tren Harian Permohonan Informasi", ChartLine, func(ds core.Dataset, _ ReportOptions) (Section, error) {
		return trendSection(ds, SectionInfoTrend, core.CategoryInformationRequest)
	}},
}

// SectionIDs lists every section in display order.
func SectionIDs() []string {
	ids := make([]string, len(sectionDefs))
	for i, d := range sectionDefs {
		ids[i] = d.id
	}
	return ids
}

// BuildReport derives every section concurrently. A section that fails
// keeps its error; the returned error is non-nil only when ctx is done.
func BuildReport(ctx context.Context, ds core.Dataset, opts ReportOptions) (*Report, error) {
	if opts.Limit <= 0 {
		opts.Limit = TopN
	}
	sections := make([]Section, len(sectionDefs))

	var g errgroup.Group
	for i, def := range sectionDefs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				sections[i] = Section{ID: def.id, Title: def.title, Chart: def.chart, Err: err}
				return err
			}
			s, err := def.build(ds, opts)
			s.ID, s.Title, s.Chart, s.Err = def.id, def.title, def.chart, err
			if err != nil {
				s.Table = core.Table{Name: def.id}
			}
			sections[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		Rows:      ds.Len(),
		Completed: ds.Where(core.WithStatus(core.StatusCompleted)).Len(),
		Columns:   ds.Columns(),
		Sections:  sections,
		Generated: time.Now(),
	}, nil
}

func countSection(id, header string, rows []core.CountRow) Section {
	s := Section{Table: core.CountTable(id, header, rows)}
	for _, r := range rows {
		s.Labels = append(s.Labels, r.Value)
		s.Values = append(s.Values, float64(r.Count))
	}
	return s
}

func groupedSection(ds core.Dataset, id, header string, q GroupQuery) (Section, error) {
	rows, err := GroupedCount(ds, q)
	if err != nil {
		return Section{}, err
	}
	return countSection(id, header, rows), nil
}

func trendSection(ds core.Dataset, id, category string) (Section, error) {
	rows, err := DateTrend(ds, category)
	if err != nil {
		return Section{}, err
	}
	s := Section{Table: core.DateTable(id, rows)}
	for _, r := range rows {
		s.Labels = append(s.Labels, r.Date.Format(core.DateLayout))
		s.Values = append(s.Values, float64(r.Count))
	}
	return s, nil
}
