package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"autorkm/internal/core"
	"autorkm/internal/services"
)

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// reportURL is the canonical page of a report.
func reportURL(id string) string {
	return "/report/" + id
}

// trimExt strips ext from a path segment such as "kategori.png".
func trimExt(segment, ext string) (string, bool) {
	name, ok := strings.CutSuffix(segment, ext)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// formatCount renders n with "." as the thousands separator.
func formatCount(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// formatCell renders one table cell for display.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return formatCount(val)
	default:
		return fmt.Sprint(val)
	}
}

// describeError turns a derivation or ingest error into a message for the
// user. Schema errors name the missing columns.
func describeError(err error) string {
	var (
		se *core.SchemaError
		ue *core.UnexpectedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		names := make([]string, len(se.Missing))
		for i, c := range se.Missing {
			names[i] = string(c)
		}
		return "Kolom wajib tidak ditemukan: " + strings.Join(names, ", ")
	case errors.Is(err, services.ErrNotFound):
		return "Laporan tidak ditemukan atau sudah kedaluwarsa. Silakan unggah ulang berkas."
	case errors.Is(err, services.ErrSheetsDisabled):
		return "Impor Google Sheets belum dikonfigurasi"
	case errors.As(err, &ue):
		return "Terjadi kesalahan saat memproses data: " + ue.Error()
	default:
		return "Terjadi kesalahan saat memproses data"
	}
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case core.IsSchemaError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSheetsDisabled):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return stripControl(strings.TrimSpace(s))
}

// stripControl removes control characters other than tab, newline and
// carriage return. Surrounding spaces are kept: dataset values match
// exactly, including spaces left in the workbook.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
