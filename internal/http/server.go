package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"autorkm/internal/log"
	"autorkm/internal/metrics"
	"autorkm/internal/middleware/ratelimit"
	"autorkm/internal/middleware/security"
	"autorkm/internal/middleware/trace"
	"autorkm/internal/services"
	appweb "autorkm/web"
)

// DefaultMaxUploadBytes applies when Options leaves the limit unset.
const DefaultMaxUploadBytes int64 = 20 << 20

// Options wires a Server.
type Options struct {
	Addr               string
	Reports            *services.ReportService
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	MaxUploadBytes     int64
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	templates *template.Template
	reports   *services.ReportService
	metrics   *metrics.Metrics
	logger    *log.Logger
	maxUpload int64
	startedAt time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	securityHeaders  *security.HeadersMiddleware
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, templates and middleware, returning a
// ready-to-run http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	detector := security.NewDetector(security.WithRecorder(m))
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", log.FieldError, err, "cidr", cidr)
		}
	}

	s := &Server{
		reports:          opts.Reports,
		metrics:          m,
		logger:           logger.WithComponent(log.ComponentHTTP),
		maxUpload:        maxUpload,
		startedAt:        time.Now(),
		securityDetector: detector,
		securityHeaders:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Methods:           []string{http.MethodPost},
		}),
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	s.route(mux, "GET /{$}", "index", s.handleIndex)
	s.route(mux, "/upload", "upload", s.handleUpload)
	s.route(mux, "/import", "import", s.handleImport)
	s.route(mux, "GET /report/{id}", "report", s.handleReport)
	s.route(mux, "GET /report/{id}/data", "report_data", s.handleReportData)
	s.route(mux, "GET /report/{id}/topics", "topics", s.handleTopics)
	s.route(mux, "GET /report/{id}/chart/{file}", "chart", s.handleChart)
	s.route(mux, "GET /report/{id}/export/{file}", "export", s.handleExport)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", m.Handler())

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(h)
	h = detector.Middleware(h)
	h = s.securityHeaders.Middleware(h)
	h = s.traceMiddleware.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// route registers an instrumented handler under a fixed metrics label.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Instrument(name, h))
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Terlalu banyak permintaan. Coba lagi sebentar lagi.").Write(w)
}

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}
