// Package services ties dataset sources, the aggregator and the report
// cache together.
package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"autorkm/internal/aggregator"
	"autorkm/internal/cache"
	"autorkm/internal/core"
	applog "autorkm/internal/log"
	"autorkm/internal/metrics"
	"autorkm/internal/sheets"
	"autorkm/internal/sheets/xlsx"
)

// Dataset sources.
const (
	SourceUpload = "upload"
	SourceSheets = "sheets"
	SourceFile   = "file"
)

var (
	// ErrNotFound is returned for unknown or expired report IDs.
	ErrNotFound = errors.New("report not found")
	// ErrSheetsDisabled is returned by Import when no spreadsheet is configured.
	ErrSheetsDisabled = errors.New("google sheets import is not configured")
)

// Entry is one ingested dataset and the report derived from it. Entries are
// shared between requests and must not be mutated.
type Entry struct {
	ID       string
	Source   string
	FileName string
	Dataset  core.Dataset
	Report   *aggregator.Report
	LoadedAt time.Time
}

// ReportService loads datasets, derives reports and memoizes them by
// content digest.
type ReportService struct {
	cache   cache.Cache[*Entry]
	metrics *metrics.Metrics
	logger  *applog.Logger
	sheets  sheets.DatasetReader
	opts    aggregator.ReportOptions
	group   singleflight.Group
	now     func() time.Time

	buildTimeout time.Duration
	buildReport  func(context.Context, core.Dataset, aggregator.ReportOptions) (*aggregator.Report, error)
}

// DefaultBuildTimeout bounds one shared report build.
const DefaultBuildTimeout = 2 * time.Minute

// Option configures a ReportService.
type Option func(*ReportService)

// WithMetrics records ingest, report and cache metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReportService) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *applog.Logger) Option {
	return func(s *ReportService) { s.logger = l }
}

// WithSheets enables Import from a spreadsheet source.
func WithSheets(r sheets.DatasetReader) Option {
	return func(s *ReportService) { s.sheets = r }
}

// WithReportOptions tunes the category views.
func WithReportOptions(o aggregator.ReportOptions) Option {
	return func(s *ReportService) { s.opts = o }
}

// WithBuildTimeout bounds a report build independently of the requests
// waiting on it.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *ReportService) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

// NewReportService creates a service backed by c.
func NewReportService(c cache.Cache[*Entry], opts ...Option) *ReportService {
	s := &ReportService{
		cache:        c,
		now:          time.Now,
		buildTimeout: DefaultBuildTimeout,
		buildReport:  aggregator.BuildReport,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = applog.FromContext(context.Background())
	}
	s.logger = s.logger.WithComponent(applog.ComponentReport)
	return s
}

// SheetsEnabled reports whether Import can be used.
func (s *ReportService) SheetsEnabled() bool { return s.sheets != nil }

// Upload parses an XLSX workbook and returns its report. Identical bytes
// resolve to the same entry while it is cached.
func (s *ReportService) Upload(ctx context.Context, fileName string, content []byte) (*Entry, error) {
	id := cache.Key(content)
	return s.load(ctx, id, SourceUpload, fileName, func() (core.Dataset, error) {
		return xlsx.ParseDataset(bytes.NewReader(content))
	})
}

// UploadReader reads r fully and calls Upload.
func (s *ReportService) UploadReader(ctx context.Context, fileName string, r io.Reader) (*Entry, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, core.Unexpected("read upload", err)
	}
	return s.Upload(ctx, fileName, content)
}

// Import reads the configured spreadsheet. The entry ID is the digest of
// the sheet's contents, so an unchanged sheet maps to the cached report.
func (s *ReportService) Import(ctx context.Context) (*Entry, error) {
	if s.sheets == nil {
		return nil, ErrSheetsDisabled
	}
	return s.Load(ctx, s.sheets, SourceSheets)
}

// Load reads a dataset from r and returns its report, keyed by the digest
// of the dataset.
func (s *ReportService) Load(ctx context.Context, r sheets.DatasetReader, source string) (*Entry, error) {
	ds, err := r.ReadDataset(ctx)
	if err != nil {
		s.recordDataset(source, err, 0)
		return nil, err
	}
	return s.load(ctx, DatasetDigest(ds), source, "", func() (core.Dataset, error) {
		return ds, nil
	})
}

// Get returns a cached entry.
func (s *ReportService) Get(id string) (*Entry, error) {
	e, ok := s.cache.Get(id)
	if s.metrics != nil {
		s.metrics.RecordCache(ok)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Topics breaks one agency's completed records of a category down by topic.
// An empty category covers every category.
func (s *ReportService) Topics(id, agency, category string) ([]core.CountRow, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return aggregator.CategoryTopics(e.Dataset, category, agency)
}

func (s *ReportService) load(ctx context.Context, id, source, fileName string, read func() (core.Dataset, error)) (*Entry, error) {
	if e, ok := s.cache.Get(id); ok {
		if s.metrics != nil {
			s.metrics.RecordCache(true)
		}
		applog.NewStructuredLogger(s.logger).LogDatasetLoaded(ctx, id, source, e.Report.Rows, e.Report.Completed, true)
		return e, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCache(false)
	}

	// Concurrent loads of the same content share one build. The build
	// outlives any single waiter; each waiter gives up on its own context.
	ch := s.group.DoChan(id, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()

		ds, err := read()
		if err != nil {
			s.recordDataset(source, err, 0)
			return nil, err
		}
		e, err := s.build(bctx, id, source, fileName, ds)
		if err != nil {
			s.recordDataset(source, err, ds.Len())
			return nil, err
		}
		s.recordDataset(source, nil, ds.Len())
		if s.cache.Set(id, e) {
			s.logger.DebugContext(bctx, "Report cache full, evicted oldest entry")
		}
		return e, nil
	})

	var e *Entry
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e = res.Val.(*Entry)
	}
	applog.NewStructuredLogger(s.logger).LogDatasetLoaded(ctx, id, source, e.Report.Rows, e.Report.Completed, false)
	return e, nil
}

func (s *ReportService) build(ctx context.Context, id, source, fileName string, ds core.Dataset) (*Entry, error) {
	start := time.Now()
	rep, err := s.buildReport(ctx, ds, s.opts)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	failed := make([]string, 0, len(rep.Sections))
	for _, sec := range rep.Failed() {
		failed = append(failed, sec.ID)
	}
	if s.metrics != nil {
		s.metrics.RecordReport(elapsed, failed)
	}
	applog.NewStructuredLogger(s.logger).LogReportBuilt(ctx, id, elapsed.Milliseconds(), failed)

	if len(failed) == len(rep.Sections) {
		return nil, unusable(rep)
	}
	return &Entry{
		ID:       id,
		Source:   source,
		FileName: fileName,
		Dataset:  ds,
		Report:   rep,
		LoadedAt: s.now(),
	}, nil
}

// unusable merges the missing columns of every failed section into one
// schema error. Other failures are returned as they are.
func unusable(rep *aggregator.Report) error {
	var missing []core.Column
	seen := map[core.Column]bool{}
	for _, sec := range rep.Sections {
		var se *core.SchemaError
		if !errors.As(sec.Err, &se) {
			return core.Unexpected("build report", sec.Err)
		}
		for _, c := range se.Missing {
			if !seen[c] {
				seen[c] = true
				missing = append(missing, c)
			}
		}
	}
	return &core.SchemaError{Missing: missing}
}

func (s *ReportService) recordDataset(source string, err error, rows int) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	switch {
	case core.IsSchemaError(err):
		outcome = metrics.OutcomeSchemaError
	case err != nil:
		outcome = metrics.OutcomeError
	}
	s.metrics.RecordDataset(source, outcome, rows)
}

// DatasetDigest hashes a dataset's header set and records in order.
func DatasetDigest(ds core.Dataset) string {
	h := sha256.New()
	for _, c := range ds.Columns() {
		fmt.Fprintf(h, "%s\x1f", c)
	}
	h.Write([]byte{'\n'})
	for _, r := range ds.Records {
		for _, c := range core.KnownColumns {
			fmt.Fprintf(h, "%s\x1f", r.Value(c))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
