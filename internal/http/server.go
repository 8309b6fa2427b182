package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"tagihanair/internal/cache"
	"tagihanair/internal/log"
	"tagihanair/internal/middleware/ratelimit"
	"tagihanair/internal/middleware/security"
	"tagihanair/internal/middleware/trace"
	"tagihanair/internal/services"
	appweb "tagihanair/web"
)

// Deps are the collaborators the server renders and mutates through.
type Deps struct {
	Billing *services.BillingService
	History *services.HistoryService // nil when no history store is configured
	Caches  *cache.Manager           // optional; swept entries show up in /metrics
	Logger  *log.Logger

	// Location formats timestamps for display.
	Location *time.Location
	// RateLimitPerMinute bounds POSTs per client; 0 disables limiting.
	RateLimitPerMinute int
	// TrustedProxies are extra CIDRs whose forwarding headers are believed.
	TrustedProxies []string
}

type Server struct {
	http.Server
	templates *template.Template
	billing   *services.BillingService
	history   *services.HistoryService
	caches    *cache.Manager
	logger    *log.Logger
	loc       *time.Location

	rateLimiter     *ratelimit.Limiter
	traceMiddleware *trace.Middleware
	clientIP        *security.ClientIPResolver
	appMetrics      *appMetrics

	shutdownOnce sync.Once
}

// appMetrics counts completed operations since startup.
type appMetrics struct {
	uptime           time.Time
	billingUpdates   int64
	registrations    int64
	priceChanges     int64
	writeFailures    int64
	rejectedRequests int64
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		billing:    deps.Billing,
		history:    deps.History,
		caches:     deps.Caches,
		logger:     logger.WithComponent(log.ComponentHTTP),
		loc:        loc,
		appMetrics: &appMetrics{uptime: time.Now()},
	}

	resolver, err := security.NewClientIPResolver(deps.TrustedProxies...)
	if err != nil {
		s.logger.Warn("Ignoring invalid trusted proxy list", log.FieldError, err)
		resolver, _ = security.NewClientIPResolver()
	}
	s.clientIP = resolver
	s.traceMiddleware = trace.NewMiddleware(logger, resolver.ClientIP)

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs(loc)).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
	} else {
		s.templates = t
	}

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	// UI partials
	mux.Handle("/ui/dashboard", security.NoStore(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("/ui/customers", security.NoStore(http.HandlerFunc(s.handleCustomerPicker)))
	mux.Handle("/ui/customer", security.NoStore(http.HandlerFunc(s.handleCustomerReference)))
	mux.Handle("/ui/history", security.NoStore(http.HandlerFunc(s.handleHistory)))
	mux.Handle("/ui/price", security.NoStore(http.HandlerFunc(s.handlePriceForm)))
	mux.Handle("/ui/refresh", security.NoStore(http.HandlerFunc(s.handleRefresh)))

	// Writes
	mux.Handle("/billing", security.NoStore(http.HandlerFunc(s.handleUpdateBilling)))
	mux.Handle("/customers", security.NoStore(http.HandlerFunc(s.handleRegisterCustomer)))
	mux.Handle("/settings/price", security.NoStore(http.HandlerFunc(s.handleUpdatePrice)))

	var handler http.Handler = mux
	if deps.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute})
		handler = s.rateLimiter.Middleware(resolver.ClientIP, s.handleRateLimited)(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(logger)(handler)
	s.Handler = s.traceMiddleware.Middleware(handler)

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.ClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
	TooManyRequestsError(msgRateLimited).Write(w)
}
