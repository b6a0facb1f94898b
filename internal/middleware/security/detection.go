package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	applog "autorkm/internal/log"
)

// Reasons a request is flagged. They are used as metric labels.
const (
	ReasonPath      = "path"
	ReasonQuery     = "query"
	ReasonUserAgent = "user_agent"
	ReasonMethod    = "method"
	ReasonForwarded = "forwarded"
	ReasonFileName  = "file_name"
)

const (
	maxQueryLength = 2048
	maxParamLength = 256
	maxFileName    = 255
	maxProxyHops   = 5
)

// Recorder counts flagged requests by reason.
type Recorder interface {
	RecordSuspicious(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSuspicious(string) {}

// probePaths are fragments of paths scanners try. The dashboard serves
// none of them.
var probePaths = []string{
	"..", "/.", "\\", "wp-", "phpmyadmin", "cgi-bin", "etc/passwd", "cmd.exe",
}

// probeExtensions end paths the dashboard never serves.
var probeExtensions = []string{".php", ".asp", ".aspx", ".jsp", ".cgi", ".env", ".bak", ".sql"}

// markup appears in drill-down parameters only when someone tries to inject
// it into the topics partial.
var markup = []string{"<", ">", "javascript:", "union select", "\x00"}

var scannerAgents = []string{"sqlmap", "nikto", "nmap", "gobuster", "dirbuster", "masscan", "zgrab"}

// executableParts are inner extensions of disguised uploads such as
// "laporan.php.xlsx".
var executableParts = map[string]bool{
	"php": true, "exe": true, "js": true, "sh": true, "bat": true,
	"html": true, "htm": true, "svg": true, "jsp": true,
}

// Detector flags requests that do not look like dashboard traffic and
// resolves client IPs behind trusted proxies. It never blocks.
type Detector struct {
	recorder       Recorder
	trustedProxies []*net.IPNet
}

// Option configures a Detector.
type Option func(*Detector)

// WithRecorder reports flagged requests to r.
func WithRecorder(r Recorder) Option {
	return func(d *Detector) {
		if r != nil {
			d.recorder = r
		}
	}
}

// NewDetector trusts forwarding headers from loopback only; other proxies
// are added with AddTrustedProxy.
func NewDetector(opts ...Option) *Detector {
	_, loopback4, _ := net.ParseCIDR("127.0.0.0/8")
	_, loopback6, _ := net.ParseCIDR("::1/128")
	d := &Detector{
		recorder:       nopRecorder{},
		trustedProxies: []*net.IPNet{loopback4, loopback6},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// AddTrustedProxy trusts X-Forwarded-For and X-Real-IP from cidr.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Inspect returns the reason r looks suspicious, or "" when it does not.
func (d *Detector) Inspect(r *http.Request) string {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", http.MethodConnect:
		return ReasonMethod
	}

	path := strings.ToLower(r.URL.Path)
	for _, p := range probePaths {
		if strings.Contains(path, p) {
			return ReasonPath
		}
	}
	for _, ext := range probeExtensions {
		if strings.HasSuffix(path, ext) {
			return ReasonPath
		}
	}

	if len(r.URL.RawQuery) > maxQueryLength {
		return ReasonQuery
	}
	query := r.URL.Query()
	for _, key := range []string{"agency", "category"} {
		for _, v := range query[key] {
			if suspiciousValue(v) {
				return ReasonQuery
			}
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return ReasonUserAgent
		}
	}

	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxProxyHops {
		return ReasonForwarded
	}
	return ""
}

func suspiciousValue(v string) bool {
	if len(v) > maxParamLength {
		return true
	}
	lower := strings.ToLower(v)
	for _, m := range markup {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// SuspiciousFileName reports whether an uploaded file name carries a path,
// control characters or a disguised executable extension.
func SuspiciousFileName(name string) bool {
	if len(name) > maxFileName || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return true
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return true
		}
	}
	parts := strings.Split(strings.ToLower(name), ".")
	for i := 1; i < len(parts)-1; i++ {
		if executableParts[parts[i]] {
			return true
		}
	}
	return false
}

// CheckUpload records and logs a suspicious upload file name. The upload
// itself proceeds; the workbook parser rejects anything that is not XLSX.
func (d *Detector) CheckUpload(r *http.Request, fileName string) bool {
	if !SuspiciousFileName(fileName) {
		return false
	}
	d.recorder.RecordSuspicious(ReasonFileName)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
		"Suspicious upload file name",
		applog.FieldClientIP, d.ExtractClientIP(r),
		applog.FieldFileName, fileName)
	return true
}

// ExtractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		d.recorder.RecordSuspicious(ReasonForwarded)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware logs and counts suspicious requests without blocking them.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Inspect(r); reason != "" {
			d.recorder.RecordSuspicious(reason)
			applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request detected",
				"reason", reason,
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
