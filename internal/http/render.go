package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"autorkm/internal/log"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

func (s *Server) executeTemplate(w io.Writer, name string, data any) error {
	if s.templates == nil {
		return errTemplatesNotLoaded
	}
	return s.templates.ExecuteTemplate(w, name, data)
}

// renderPage renders the full page, with the report embedded when given.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, report *reportView) {
	data := pageView{
		SheetsEnabled: s.reports != nil && s.reports.SheetsEnabled(),
		MaxUploadMB:   s.maxUpload >> 20,
		Report:        report,
	}
	s.renderPartial(w, r, "index.html", data)
}

// renderPartial buffers the template so a failure still yields a clean 500.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.executeTemplate(&buf, name, data); err != nil {
		s.logTemplateError(r, name, err)
		InternalServerError("Gagal menampilkan halaman").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) logTemplateError(r *http.Request, name string, err error) {
	log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(),
		"Template execution failed",
		"template", name,
		log.FieldPath, r.URL.Path,
		log.FieldError, err)
}
