package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"autorkm/internal/aggregator"
	"autorkm/internal/cache"
	"autorkm/internal/core"
	"autorkm/internal/log"
	"autorkm/internal/metrics"
	"autorkm/internal/services"
	"autorkm/internal/sheets/xlsx"
)

var fullHeader = []any{"Instansi", "Topik", "Channel", "Status", "Kecamatan", "Kelurahan", "Kategori", "Tanggal"}

func fullRows() [][]any {
	return [][]any{
		fullHeader,
		{"Dinas A", "Jalan", "Web", "Selesai", "Kec 1", "Kel 1", "Keluhan", "2024-05-01"},
		{"Dinas A", "Air", "Phone", "Selesai", "Kec 1", "Kel 2", "Permohonan Informasi", "2024-05-02"},
		{"Kecamatan Satu", "Sampah", "Web", "Selesai", "Kec 1", "Kel 1", "Keluhan", "2024-05-02"},
		{"Kelurahan Dua", "Jalan", "Web", "Proses", "Kec 2", "Kel 2", "Keluhan", "2024-05-03"},
	}
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type testEnv struct {
	srv     *Server
	reports *services.ReportService
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, limit int) testEnv {
	t.Helper()
	logger := log.New(log.Config{Output: io.Discard, Component: log.ComponentApp})
	m := metrics.New()
	reports := services.NewReportService(
		cache.NewLRUCache[*services.Entry](8, time.Hour),
		services.WithMetrics(m),
		services.WithLogger(logger),
	)
	srv := NewServer(Options{
		Addr:               ":0",
		Reports:            reports,
		Metrics:            m,
		Logger:             logger,
		MaxUploadBytes:     1 << 20,
		RateLimitPerMinute: limit,
	})
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return testEnv{srv: srv, reports: reports, metrics: m}
}

func (e testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func uploadRequest(t *testing.T, name string, content []byte, htmx bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return req
}

// upload posts rows and returns the report ID.
func (e testEnv) upload(t *testing.T, rows [][]any) string {
	t.Helper()
	rr := e.do(uploadRequest(t, "rkm.xlsx", workbook(t, rows), false))
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	loc := rr.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/report/"), loc)
	return strings.TrimPrefix(loc, "/report/")
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, 30)

	rr := env.get("/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Unggah Data")
	assert.NotContains(t, rr.Body.String(), "Google Sheets", "import button hidden without a spreadsheet")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.get(path)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), path)
	}

	rr = env.get("/static/app.css")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")

	assert.Equal(t, http.StatusNotFound, env.get("/nope").Code)
}

func TestReadyWithoutReports(t *testing.T) {
	srv := NewServer(Options{Logger: log.New(log.Config{Output: io.Discard})})
	t.Cleanup(func() { srv.rateLimiter.Stop() })

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/report/abc", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestUploadRedirectsToReport(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())

	rr := env.get("/report/" + id)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, "Hasil RKM")
	assert.Contains(t, body, "Dinas A")
	assert.Contains(t, body, "/report/"+id+"/chart/channel.png")
	assert.Contains(t, body, "/report/"+id+"/export/all.xlsx")
	assert.NotContains(t, body, "/chart/rkm.png", "agency summary is table only")

	// Same bytes resolve to the same report.
	assert.Equal(t, id, env.upload(t, fullRows()))
}

func TestUploadHTMX(t *testing.T) {
	env := newTestEnv(t, 30)

	rr := env.do(uploadRequest(t, "rkm.xlsx", workbook(t, fullRows()), true))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Header().Get("HX-Push-Url"), "/report/"))

	trigger := rr.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, `"report:ready"`)
	assert.Contains(t, trigger, `"failed":0`)
	assert.Contains(t, trigger, `"type":"success"`)

	body := rr.Body.String()
	assert.NotContains(t, body, "<!doctype html>")
	assert.Contains(t, body, `class="report"`)
}

func TestUploadPartialSchema(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, [][]any{
		{"Instansi", "Topik", "Channel", "Status"},
		{"Dinas A", "Jalan", "Web", "Selesai"},
	})

	rr := env.get("/report/" + id)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Kolom wajib tidak ditemukan: Kecamatan")
	assert.Contains(t, body, "Kolom wajib tidak ditemukan: Kelurahan")
	assert.Contains(t, body, "7 tabel tidak dapat dihitung")

	rr = env.get("/report/" + id + "/chart/kelurahan.png")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = env.get("/report/" + id + "/export/kategori.xlsx")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Kategori")
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, 30)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantBody string
	}{
		{
			name:     "no usable columns",
			req:      uploadRequest(t, "rkm.xlsx", workbook(t, [][]any{{"Nama", "Alamat"}, {"x", "y"}}), false),
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "Instansi",
		},
		{
			name:     "not a workbook",
			req:      uploadRequest(t, "rkm.xlsx", []byte("hello"), false),
			wantCode: http.StatusInternalServerError,
			wantBody: "Terjadi kesalahan",
		},
		{
			name:     "wrong extension",
			req:      uploadRequest(t, "rkm.csv", []byte("a,b"), false),
			wantCode: http.StatusBadRequest,
			wantBody: ".xlsx",
		},
		{
			name:     "wrong method",
			req:      httptest.NewRequest(http.MethodGet, "/upload", nil),
			wantCode: http.StatusMethodNotAllowed,
		},
		{
			name:     "import not configured",
			req:      httptest.NewRequest(http.MethodPost, "/import", nil),
			wantCode: http.StatusNotFound,
			wantBody: "Google Sheets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(tt.req)
			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}

func TestUploadErrorHTMXNotification(t *testing.T) {
	env := newTestEnv(t, 30)

	rr := env.do(uploadRequest(t, "rkm.xlsx", workbook(t, [][]any{{"Nama"}, {"x"}}), true))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"type":"error"`)
}

func TestReportNotFound(t *testing.T) {
	env := newTestEnv(t, 30)

	for _, path := range []string{
		"/report/unknown",
		"/report/unknown/data",
		"/report/unknown/chart/channel.png",
		"/report/unknown/export/all.xlsx",
		"/report/unknown/topics?agency=Dinas+A",
	} {
		rr := env.get(path)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "tidak ditemukan", path)
	}
}

func TestReportData(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())

	rr := env.get("/report/" + id + "/data")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var data reportData
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	assert.Equal(t, id, data.ID)
	assert.Equal(t, services.SourceUpload, data.Source)
	assert.Equal(t, "rkm.xlsx", data.FileName)
	assert.Equal(t, 4, data.Rows)
	assert.Equal(t, 3, data.Completed)
	require.Len(t, data.Sections, len(aggregator.SectionIDs()))

	var channel sectionData
	for _, s := range data.Sections {
		assert.Empty(t, s.Error, s.ID)
		if s.ID == aggregator.SectionChannel {
			channel = s
		}
	}
	assert.Equal(t, []string{"Web", "Phone"}, channel.Labels)
	assert.Equal(t, []float64{2, 1}, channel.Values)
	assert.Equal(t, []string{core.HeaderChannel, core.HeaderCount}, channel.Headers)
}

func TestTopics(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())

	q := url.Values{"agency": {"Dinas A"}, "category": {core.CategoryComplaint}}
	rr := env.get("/report/" + id + "/topics?" + q.Encode())
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Jalan")
	assert.NotContains(t, body, "Air")

	q = url.Values{"agency": {"Dinas A"}}
	rr = env.get("/report/" + id + "/topics?" + q.Encode())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Air")

	rr = env.get("/report/" + id + "/topics")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Agency rows of the summary link to their breakdown.
	page := env.get("/report/" + id).Body.String()
	assert.Contains(t, page, "/report/"+id+"/topics?agency=Dinas+A")
}

func TestTopicsAgencyWithSurroundingSpaces(t *testing.T) {
	env := newTestEnv(t, 30)
	rows := fullRows()
	rows[1][0] = "Dinas A "
	rows[2][0] = "Dinas A "
	id := env.upload(t, rows)

	// The summary links the agency exactly as it appears in the workbook.
	page := env.get("/report/" + id).Body.String()
	assert.Contains(t, page, "/report/"+id+"/topics?agency=Dinas+A+")

	q := url.Values{"agency": {"Dinas A "}}
	rr := env.get("/report/" + id + "/topics?" + q.Encode())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Jalan")
	assert.Contains(t, rr.Body.String(), "Air")
}

func TestChart(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())

	rr := env.get("/report/" + id + "/chart/channel.png")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = env.get("/report/" + id + "/chart/tren-keluhan.png")
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, http.StatusNotFound, env.get("/report/"+id+"/chart/rkm.png").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/report/"+id+"/chart/unknown.png").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/report/"+id+"/chart/channel.svg").Code)
}

func TestChartNoData(t *testing.T) {
	env := newTestEnv(t, 30)
	rows := fullRows()
	for _, r := range rows[1:] {
		r[3] = "Proses"
	}
	id := env.upload(t, rows)

	rr := env.get("/report/" + id + "/chart/channel.png")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())

	rr := env.get("/report/" + id + "/export/kategori.xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsx.ContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "autorkm-kategori.xlsx")

	table, err := xlsx.ReadTable(bytes.NewReader(rr.Body.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, []string{core.HeaderCategory, core.HeaderCount, core.HeaderPercentage}, table.Headers)
	assert.Equal(t, [][]any{{"Keluhan", "2", "66.7"}, {"Permohonan Informasi", "1", "33.3"}}, table.Rows)

	rr = env.get("/report/" + id + "/export/all.xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, aggregator.SectionIDs(), f.GetSheetList())

	assert.Equal(t, http.StatusNotFound, env.get("/report/"+id+"/export/unknown.xlsx").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/report/"+id+"/export/kategori.csv").Code)
}

func TestRateLimitOnPost(t *testing.T) {
	env := newTestEnv(t, 1)
	content := workbook(t, fullRows())

	rr := env.do(uploadRequest(t, "rkm.xlsx", content, false))
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	rr = env.do(uploadRequest(t, "rkm.xlsx", content, false))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, env.get("/").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())
	env.get("/report/" + id + "/export/all.xlsx")

	rr := env.get("/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `autorkm_datasets_loaded_total{outcome="ok",source="upload"} 1`)
	assert.Contains(t, body, `autorkm_exports_total{section="all"} 1`)
	assert.Contains(t, body, `autorkm_http_request_duration_seconds_count{code="303",method="post",route="upload"} 1`)
}

func TestSuspiciousRequestsAreCounted(t *testing.T) {
	env := newTestEnv(t, 30)
	id := env.upload(t, fullRows())

	q := url.Values{"agency": {"<script>alert(1)</script>"}}
	rr := env.get("/report/" + id + "/topics?" + q.Encode())
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "<script>")

	rr = env.do(uploadRequest(t, "laporan.php.xlsx", workbook(t, fullRows()), false))
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	body := env.get("/metrics").Body.String()
	assert.Contains(t, body, `autorkm_suspicious_requests_total{reason="query"} 1`)
	assert.Contains(t, body, `autorkm_suspicious_requests_total{reason="file_name"} 1`)
}
