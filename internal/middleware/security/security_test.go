package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "https://unpkg.com")
	assert.Empty(t, rec.Header().Get("Cross-Origin-Embedder-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains; preload", rec.Header().Get("Strict-Transport-Security"))
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(3600)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, "public, max-age=3600, immutable", rec.Header().Get("Cache-Control"))
}

type countingRecorder map[string]int

func (c countingRecorder) RecordSuspicious(reason string) { c[reason]++ }

func TestInspect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   string
	}{
		{"report page", http.MethodGet, "/report/abc", "Mozilla/5.0", ""},
		{"drill-down", http.MethodGet, "/report/abc/topics?agency=Dinas+A&category=Keluhan", "Mozilla/5.0", ""},
		{"chart", http.MethodGet, "/report/abc/chart/channel.png", "Mozilla/5.0", ""},
		{"cli export", http.MethodGet, "/report/abc/export/all.xlsx", "curl/8.5.0", ""},
		{"dotfile", http.MethodGet, "/.env", "Mozilla/5.0", ReasonPath},
		{"git", http.MethodGet, "/.git/config", "Mozilla/5.0", ReasonPath},
		{"php probe", http.MethodGet, "/admin.php", "Mozilla/5.0", ReasonPath},
		{"markup in agency", http.MethodGet, "/report/abc/topics?agency=%3Cscript%3E", "Mozilla/5.0", ReasonQuery},
		{"sql in category", http.MethodGet, "/report/abc/topics?agency=x&category=1+UNION+SELECT+1", "Mozilla/5.0", ReasonQuery},
		{"scanner", http.MethodGet, "/", "sqlmap/1.7", ReasonUserAgent},
		{"trace", "TRACE", "/", "Mozilla/5.0", ReasonMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", tt.agent)
			assert.Equal(t, tt.want, d.Inspect(req))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/report/abc/topics?agency="+strings.Repeat("a", maxParamLength+1), nil)
	assert.Equal(t, ReasonQuery, d.Inspect(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2, 3.3.3.3, 4.4.4.4, 5.5.5.5, 6.6.6.6, 7.7.7.7")
	assert.Equal(t, ReasonForwarded, d.Inspect(req))
}

func TestSuspiciousFileName(t *testing.T) {
	for name, want := range map[string]bool{
		"rekap-mei.xlsx":        false,
		"RKM 2024.05.xlsx":      false,
		"laporan.php.xlsx":      true,
		"data.HTML.xlsx":        true,
		"../../etc/passwd.xlsx": true,
		"a\\b.xlsx":             true,
		"nul\x00.xlsx":          true,
	} {
		assert.Equal(t, want, SuspiciousFileName(name), name)
	}
	assert.True(t, SuspiciousFileName(strings.Repeat("a", 300)+".xlsx"))
}

func TestCheckUploadRecords(t *testing.T) {
	rec := countingRecorder{}
	d := NewDetector(WithRecorder(rec))
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)

	assert.False(t, d.CheckUpload(req, "rekap.xlsx"))
	assert.True(t, d.CheckUpload(req, "rekap.exe.xlsx"))
	assert.Equal(t, 1, rec[ReasonFileName])
}

func TestExtractClientIP(t *testing.T) {
	rec := countingRecorder{}
	d := NewDetector(WithRecorder(rec))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")

	// Private peers are not trusted until configured.
	req.RemoteAddr = "10.0.0.5:1234"
	assert.Equal(t, "10.0.0.5", d.ExtractClientIP(req))

	require.NoError(t, d.AddTrustedProxy("10.0.0.0/8"))
	assert.Equal(t, "203.0.113.7", d.ExtractClientIP(req))

	req.RemoteAddr = "198.51.100.1:1234"
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(req))

	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(req))
	assert.Equal(t, 1, rec[ReasonForwarded])

	req.RemoteAddr = "[::1]:1234"
	req.Header.Del("X-Real-IP")
	req.Header.Set("X-Forwarded-For", "2001:db8::1")
	assert.Equal(t, "2001:db8::1", d.ExtractClientIP(req))

	assert.Error(t, d.AddTrustedProxy("nope"))
}

func TestDetectorMiddlewarePassesThrough(t *testing.T) {
	rec := countingRecorder{}
	d := NewDetector(WithRecorder(rec))
	called := false
	h := d.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	assert.True(t, called)
	assert.Equal(t, 1, rec[ReasonPath])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/report/abc", nil))
	assert.Equal(t, 1, rec[ReasonPath])
}
