// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// the multipart workbook upload and the drill-down query parameters.

package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"autorkm/internal/core"
)

// uploadField is the multipart field carrying the workbook.
const uploadField = "file"

// UploadedFile is a workbook received through the upload form.
type UploadedFile struct {
	Name string
	// RawName is the file name as sent by the client.
	RawName string
	Content []byte
}

// ParseUpload reads the workbook from a multipart request, enforcing
// maxBytes on the whole body. On failure it returns the response to send.
func ParseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (UploadedFile, *HTMXResponseBuilder) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return UploadedFile{}, RequestTooLargeError(fmt.Sprintf("Berkas terlalu besar (maksimal %d MB)", maxBytes>>20))
		}
		return UploadedFile{}, BadRequestError("Formulir unggahan tidak valid")
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return UploadedFile{}, BadRequestError("Pilih berkas XLSX terlebih dahulu")
		}
		return UploadedFile{}, BadRequestError("Formulir unggahan tidak valid")
	}
	defer file.Close()

	name := sanitizeInput(filepath.Base(header.Filename))
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return UploadedFile{}, BadRequestError("Hanya berkas .xlsx yang didukung")
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return UploadedFile{}, BadRequestError("Gagal membaca berkas")
	}
	if len(content) == 0 {
		return UploadedFile{}, BadRequestError("Berkas kosong")
	}
	return UploadedFile{Name: name, RawName: header.Filename, Content: content}, nil
}

// TopicParams selects one agency's topic breakdown.
type TopicParams struct {
	Agency   string
	Category string
}

// ParseTopicParams extracts the drill-down parameters. Agency is required;
// an empty category covers every category.
func ParseTopicParams(query url.Values) (TopicParams, *HTMXResponseBuilder) {
	p := TopicParams{
		Agency:   stripControl(query.Get("agency")),
		Category: stripControl(query.Get("category")),
	}
	if strings.TrimSpace(p.Agency) == "" {
		return p, BadRequestError("Parameter instansi wajib diisi")
	}
	switch p.Category {
	case "", core.CategoryComplaint, core.CategoryInformationRequest:
	default:
		return p, BadRequestError("Kategori tidak dikenal")
	}
	return p, nil
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}
