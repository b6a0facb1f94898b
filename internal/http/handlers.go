package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"autorkm/internal/aggregator"
	"autorkm/internal/chart"
	"autorkm/internal/core"
	"autorkm/internal/log"
	"autorkm/internal/services"
	"autorkm/internal/sheets/xlsx"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady reports whether templates and the report service are wired.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.reports == nil {
		checks["reports"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["reports"] = "ok"
		if s.reports.SheetsEnabled() {
			checks["sheets"] = "configured"
		} else {
			checks["sheets"] = "disabled"
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, nil)
}

// handleUpload ingests a workbook and answers with the report: a partial
// for htmx, a redirect to the report page otherwise.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if !s.ready(w) {
		return
	}

	file, resp := ParseUpload(w, r, s.maxUpload)
	if resp != nil {
		resp.Write(w)
		return
	}

	s.securityDetector.CheckUpload(r, file.RawName)

	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentIngest)
	logger.InfoContext(ctx, "Workbook received",
		log.FieldOperation, log.OpUpload,
		log.FieldFileName, file.Name,
		log.FieldFileSize, len(file.Content))

	entry, err := s.reports.Upload(ctx, file.Name, file.Content)
	if err != nil {
		s.writeServiceError(w, r, log.OpUpload, err)
		return
	}
	s.respondReport(w, r, entry)
}

// handleImport reads the configured Google Sheet.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if !s.ready(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	entry, err := s.reports.Import(ctx)
	if err != nil {
		s.writeServiceError(w, r, log.OpImport, err)
		return
	}
	s.respondReport(w, r, entry)
}

func (s *Server) respondReport(w http.ResponseWriter, r *http.Request, entry *services.Entry) {
	if !isHTMX(r) {
		http.Redirect(w, r, reportURL(entry.ID), http.StatusSeeOther)
		return
	}

	view := newReportView(entry)
	var buf bytes.Buffer
	if err := s.executeTemplate(&buf, "report.html", view); err != nil {
		s.logTemplateError(r, "report.html", err)
		InternalServerError("Gagal menampilkan laporan").Write(w)
		return
	}

	resp := NewHTMXResponse().
		PushURL(reportURL(entry.ID)).
		TriggerReportReady(entry.ID, view.Failed).
		TriggerFormReset()
	if view.Failed > 0 {
		resp.TriggerWarningNotification("Sebagian tabel tidak dapat dihitung karena kolom tidak lengkap")
	} else {
		resp.TriggerSuccessNotification("Laporan berhasil dibuat")
	}
	resp.BodyHTML(buf.String()).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}
	view := newReportView(entry)
	if isHTMX(r) {
		s.renderPartial(w, r, "report.html", view)
		return
	}
	s.renderPage(w, r, view)
}

func (s *Server) handleReportData(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newReportData(entry)); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Report JSON encoding failed", log.FieldError, err)
	}
}

// handleTopics renders one agency's topic breakdown partial.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	params, resp := ParseTopicParams(r.URL.Query())
	if resp != nil {
		resp.Write(w)
		return
	}
	rows, err := s.reports.Topics(r.PathValue("id"), params.Agency, params.Category)
	if errors.Is(err, services.ErrNotFound) {
		NotFoundError(describeError(err)).Write(w)
		return
	}
	s.renderPartial(w, r, "topics.html", newTopicsView(params, rows, err))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	section, ok := s.section(w, r, ".png")
	if !ok {
		return
	}
	if section.Chart == aggregator.ChartNone {
		NotFoundError("Bagian ini tidak memiliki grafik").Write(w)
		return
	}

	var buf bytes.Buffer
	err := chart.Render(&buf, chart.FromSection(section), 0, 0)
	switch {
	case errors.Is(err, chart.ErrNoData):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		log.FromContext(r.Context()).WithComponent(log.ComponentChart).ErrorContext(r.Context(), "Chart rendering failed",
			log.FieldOperation, log.OpRender,
			log.FieldSection, section.ID,
			log.FieldError, err)
		InternalServerError("Gagal membuat grafik").Write(w)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}

// handleExport downloads one section, or every derived section as
// "all.xlsx", as an XLSX workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}
	name, ok := trimExt(r.PathValue("file"), ".xlsx")
	if !ok {
		NotFoundError("Berkas tidak ditemukan").Write(w)
		return
	}

	var tables []core.Table
	if name == "all" {
		for _, sec := range entry.Report.Sections {
			if sec.OK() {
				tables = append(tables, sec.Table)
			}
		}
	} else {
		sec, found := entry.Report.Section(name)
		if !found {
			NotFoundError("Bagian laporan tidak dikenal").Write(w)
			return
		}
		if !sec.OK() {
			UnprocessableEntityError(describeError(sec.Err)).Write(w)
			return
		}
		tables = append(tables, sec.Table)
	}

	var buf bytes.Buffer
	if err := xlsx.WriteWorkbook(&buf, tables...); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentExport).ErrorContext(r.Context(), "Workbook export failed",
			log.FieldOperation, log.OpExport,
			log.FieldSection, name,
			log.FieldError, err)
		InternalServerError("Gagal membuat berkas unduhan").Write(w)
		return
	}
	s.metrics.RecordExport(name)

	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="autorkm-`+name+`.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

// entry resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) (*services.Entry, bool) {
	if !s.ready(w) {
		return nil, false
	}
	e, err := s.reports.Get(r.PathValue("id"))
	if err != nil {
		ErrorResponse(statusFor(err), describeError(err)).Write(w)
		return nil, false
	}
	return e, true
}

// section resolves {id} and a {file} named "<section><ext>" to a derived
// section. Failed sections answer 422.
func (s *Server) section(w http.ResponseWriter, r *http.Request, ext string) (aggregator.Section, bool) {
	e, ok := s.entry(w, r)
	if !ok {
		return aggregator.Section{}, false
	}
	id, ok := trimExt(r.PathValue("file"), ext)
	if !ok {
		NotFoundError("Berkas tidak ditemukan").Write(w)
		return aggregator.Section{}, false
	}
	sec, found := e.Report.Section(id)
	if !found {
		NotFoundError("Bagian laporan tidak dikenal").Write(w)
		return aggregator.Section{}, false
	}
	if !sec.OK() {
		UnprocessableEntityError(describeError(sec.Err)).Write(w)
		return aggregator.Section{}, false
	}
	return sec, true
}

func (s *Server) ready(w http.ResponseWriter) bool {
	if s.reports == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Layanan laporan belum siap").Write(w)
		return false
	}
	return true
}

// writeServiceError logs an ingest failure and answers with the status and
// message matching its kind.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentIngest)
	code := statusFor(err)

	var se *core.SchemaError
	switch {
	case errors.As(err, &se):
		logger.WarnContext(ctx, "Dataset rejected",
			log.FieldOperation, op,
			log.FieldMissingColumns, se.Missing,
			"error_type", log.ErrorTypeSchema)
	case code == http.StatusInternalServerError:
		log.NewStructuredLogger(logger).LogError(ctx, "Dataset ingest failed", err, log.ComponentIngest, op, log.NewFields())
	default:
		logger.InfoContext(ctx, "Dataset request refused", log.FieldOperation, op, log.FieldError, err)
	}

	resp := ErrorResponse(code, describeError(err))
	if isHTMX(r) {
		resp.TriggerErrorNotification(describeError(err))
	}
	resp.Write(w)
}
