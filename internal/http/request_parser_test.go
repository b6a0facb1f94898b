package http

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func multipartRequest(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	} else if err := mw.WriteField("other", "x"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestParseUpload(t *testing.T) {
	req := multipartRequest(t, "file", "../laporan mei.xlsx", []byte("PK-bytes"))
	got, fail := ParseUpload(httptest.NewRecorder(), req, 1<<20)
	if fail != nil {
		t.Fatal("expected upload to parse")
	}
	if got.Name != "laporan mei.xlsx" {
		t.Errorf("Name = %q, want %q", got.Name, "laporan mei.xlsx")
	}
	if string(got.Content) != "PK-bytes" {
		t.Errorf("Content = %q", got.Content)
	}
}

func TestParseUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		max      int64
		wantCode int
	}{
		{
			name:     "missing file",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "", "", nil) },
			max:      1 << 20,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "wrong extension",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "data.csv", []byte("a,b")) },
			max:      1 << 20,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty file",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "data.xlsx", nil) },
			max:      1 << 20,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "file", "data.xlsx", bytes.Repeat([]byte("x"), 4096))
			},
			max:      1024,
			wantCode: http.StatusRequestEntityTooLarge,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("file=x"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			max:      1 << 20,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fail := ParseUpload(httptest.NewRecorder(), tt.req(t), tt.max)
			if fail == nil {
				t.Fatal("expected an error response")
			}
			w := httptest.NewRecorder()
			fail.Write(w)
			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestParseTopicParams(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    TopicParams
		wantErr bool
	}{
		{"agency only", url.Values{"agency": {"Dinas A"}}, TopicParams{Agency: "Dinas A"}, false},
		{"surrounding spaces kept", url.Values{"agency": {" Dinas A "}}, TopicParams{Agency: " Dinas A "}, false},
		{"control characters dropped", url.Values{"agency": {"Dinas\x00 A\x1b"}}, TopicParams{Agency: "Dinas A"}, false},
		{"blank agency", url.Values{"agency": {"   "}}, TopicParams{}, true},
		{"with category", url.Values{"agency": {"Dinas A"}, "category": {"Keluhan"}}, TopicParams{Agency: "Dinas A", Category: "Keluhan"}, false},
		{"information requests", url.Values{"agency": {"Dinas A"}, "category": {"Permohonan Informasi"}}, TopicParams{Agency: "Dinas A", Category: "Permohonan Informasi"}, false},
		{"missing agency", url.Values{"category": {"Keluhan"}}, TopicParams{}, true},
		{"unknown category", url.Values{"agency": {"Dinas A"}, "category": {"keluhan"}}, TopicParams{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fail := ParseTopicParams(tt.query)
			if tt.wantErr {
				if fail == nil {
					t.Fatal("expected an error response")
				}
				return
			}
			if fail != nil {
				t.Fatal("unexpected error response")
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"GET allowed with multiple", http.MethodGet, []string{http.MethodGet, http.MethodPost}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequirePOST(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/test", nil)
	if result := RequirePOST(postReq); result != nil {
		t.Error("RequirePOST should allow POST requests")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/test", nil)
	if result := RequirePOST(getReq); result == nil {
		t.Error("RequirePOST should reject GET requests")
	}
}
