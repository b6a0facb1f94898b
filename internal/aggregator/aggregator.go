// Package aggregator derives summary tables from a complaint dataset.
//
// Every exported derivation is a pure function of its input: it validates
// the columns it needs, filters, groups, counts and sorts, and returns a
// fresh slice. None of them mutate the dataset, so any number of them may
// run concurrently over the same upload.
package aggregator

import (
	"sort"
	"strings"
	"time"

	"autorkm/internal/core"
)

// TopN is the truncation used by the top-five views.
const TopN = 5

// ValidateColumns fails with a *core.SchemaError naming every required
// column the dataset lacks.
func ValidateColumns(ds core.Dataset, required ...core.Column) error {
	var missing []core.Column
	seen := make(map[core.Column]bool, len(required))
	for _, c := range required {
		if seen[c] {
			continue
		}
		seen[c] = true
		if !ds.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &core.SchemaError{Missing: missing}
	}
	return nil
}

// AgencySummary groups completed records by agency, in first-seen order,
// then orders agencies by count descending with ties kept in that order.
// Rows with a blank agency are not counted and blank topics are not listed.
func AgencySummary(ds core.Dataset) ([]core.AgencyRow, error) {
	if err := ValidateColumns(ds, core.ColAgency, core.ColTopic, core.ColChannel, core.ColStatus); err != nil {
		return nil, err
	}

	type acc struct {
		count  int
		topics []string
		seen   map[string]struct{}
	}
	var order []string
	byAgency := map[string]*acc{}
	for _, r := range ds.Records {
		if !r.Completed() || r.Agency == "" {
			continue
		}
		a, ok := byAgency[r.Agency]
		if !ok {
			a = &acc{seen: map[string]struct{}{}}
			byAgency[r.Agency] = a
			order = append(order, r.Agency)
		}
		a.count++
		if _, dup := a.seen[r.Topic]; !dup && r.Topic != "" {
			a.seen[r.Topic] = struct{}{}
			a.topics = append(a.topics, r.Topic)
		}
	}

	rows := make([]core.AgencyRow, 0, len(order))
	for _, name := range order {
		a := byAgency[name]
		// Every completed record counts as followed up; the source data has
		// no field that distinguishes the two.
		followed := a.count
		rows = append(rows, core.AgencyRow{
			Agency:        name,
			Count:         a.count,
			FollowedUp:    followed,
			NotFollowedUp: a.count - followed,
			Topics:        strings.Join(a.topics, ", "),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	return rows, nil
}

// ChannelSummary counts completed records per channel.
func ChannelSummary(ds core.Dataset) ([]core.CountRow, error) {
	if err := ValidateColumns(ds, core.ColChannel, core.ColStatus); err != nil {
		return nil, err
	}
	return countValues(ds.Where(core.WithStatus(core.StatusCompleted)), core.ColChannel), nil
}

// GroupQuery describes one grouped count. The zero value of Status means
// core.StatusCompleted; set AnyStatus to count every status.
type GroupQuery struct {
	GroupBy      core.Column
	Status       string
	AnyStatus    bool
	Category     string
	AgencyPrefix string
	Limit        int
	// Require lists extra columns the view depends on beyond the ones the
	// filters already imply.
	Require []core.Column
}

func (q GroupQuery) status() string {
	if q.Status == "" {
		return core.StatusCompleted
	}
	return q.Status
}

func (q GroupQuery) required() []core.Column {
	cols := []core.Column{q.GroupBy, core.ColStatus}
	if q.Category != "" {
		cols = append(cols, core.ColCategory)
	}
	if q.AgencyPrefix != "" {
		cols = append(cols, core.ColAgency)
	}
	return append(cols, q.Require...)
}

// GroupedCount filters by status, category and agency prefix, counts the
// remaining values of q.GroupBy, sorts by count descending and truncates to
// q.Limit rows when it is positive.
func GroupedCount(ds core.Dataset, q GroupQuery) ([]core.CountRow, error) {
	if err := ValidateColumns(ds, q.required()...); err != nil {
		return nil, err
	}
	var preds []core.Predicate
	if !q.AnyStatus {
		preds = append(preds, core.WithStatus(q.status()))
	}
	if q.Category != "" {
		preds = append(preds, core.InCategory(q.Category))
	}
	if q.AgencyPrefix != "" {
		preds = append(preds, core.AgencyPrefix(q.AgencyPrefix))
	}
	rows := countValues(ds.Where(preds...), q.GroupBy)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// TopicBreakdown counts topics within one agency's records of ds. Callers
// narrow ds to a status and category beforehand.
func TopicBreakdown(ds core.Dataset, agency string) ([]core.CountRow, error) {
	if err := ValidateColumns(ds, core.ColAgency, core.ColTopic); err != nil {
		return nil, err
	}
	return countValues(ds.Where(core.ForAgency(agency)), core.ColTopic), nil
}

// CategoryTopics narrows ds to completed records of category (all
// categories when empty) and breaks agency's records down by topic.
func CategoryTopics(ds core.Dataset, category, agency string) ([]core.CountRow, error) {
	required := []core.Column{core.ColStatus, core.ColAgency, core.ColTopic}
	preds := []core.Predicate{core.WithStatus(core.StatusCompleted)}
	if category != "" {
		required = append(required, core.ColCategory)
		preds = append(preds, core.InCategory(category))
	}
	if err := ValidateColumns(ds, required...); err != nil {
		return nil, err
	}
	return TopicBreakdown(ds.Where(preds...), agency)
}

// DateTrend counts completed records of one category per calendar day,
// oldest day first. Records without a date are skipped.
func DateTrend(ds core.Dataset, category string) ([]core.DateCount, error) {
	if err := ValidateColumns(ds, core.ColStatus, core.ColCategory, core.ColDate); err != nil {
		return nil, err
	}
	counts := map[time.Time]int{}
	for _, r := range ds.Records {
		if !r.Completed() || r.Category != category || r.ReportDate.IsZero() {
			continue
		}
		y, m, d := r.ReportDate.Date()
		counts[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)]++
	}
	rows := make([]core.DateCount, 0, len(counts))
	for day, n := range counts {
		rows = append(rows, core.DateCount{Date: day, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// PercentageBreakdown counts completed records per category and attaches
// each category's share of the total. No rows means no completed records.
func PercentageBreakdown(ds core.Dataset) ([]core.CategoryShare, error) {
	counts, err := GroupedCount(ds, GroupQuery{GroupBy: core.ColCategory})
	if err != nil {
		return nil, err
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	shares := make([]core.CategoryShare, 0, len(counts))
	if total == 0 {
		return shares, nil
	}
	for _, c := range counts {
		shares = append(shares, core.CategoryShare{
			Category:   c.Value,
			Count:      c.Count,
			Percentage: 100 * float64(c.Count) / float64(total),
		})
	}
	return shares, nil
}

// countValues counts col's values in first-seen order and sorts by count
// descending, keeping first-seen order among equal counts. Blank cells are
// not counted.
func countValues(ds core.Dataset, col core.Column) []core.CountRow {
	index := map[string]int{}
	rows := []core.CountRow{}
	for _, r := range ds.Records {
		v := r.Value(col)
		if v == "" {
			continue
		}
		i, ok := index[v]
		if !ok {
			i = len(rows)
			index[v] = i
			rows = append(rows, core.CountRow{Value: v})
		}
		rows[i].Count++
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	return rows
}
