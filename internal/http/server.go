// Package http exposes the ledger, dashboard, forecast and rule operations
// as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"financeos/internal/core"
	"financeos/internal/log"
	"financeos/internal/metrics"
	"financeos/internal/middleware/ratelimit"
	"financeos/internal/middleware/security"
	"financeos/internal/middleware/trace"
	"financeos/internal/services"
)

type (
	// Importer runs CSV imports.
	Importer interface {
		Import(ctx context.Context, req services.ImportRequest) (services.ImportOutcome, error)
	}

	// DashboardReader serves the read models.
	DashboardReader interface {
		Dashboard(ctx context.Context, q services.DashboardQuery) (metrics.Dashboard, error)
		Forecast(ctx context.Context, accountID string, asOf core.Date, horizonDays int) ([]core.Transaction, error)
	}

	// RuleManager lists and creates recurring rules.
	RuleManager interface {
		List(ctx context.Context, accountID string, activeOnly bool) ([]core.RecurringRule, error)
		Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	}
)

// Deps are the services behind the handlers. Ready may be nil.
type Deps struct {
	Imports    Importer
	Dashboards DashboardReader
	Rules      RuleManager
	Ready      func(ctx context.Context) error
}

type Options struct {
	ImportMaxBytes    int64
	ChartDays         int
	HorizonDays       int
	RequestsPerMinute int
	// DefaultAccountID backs the /api/... shortcuts without an account segment.
	DefaultAccountID string
	Logger           *log.Logger
}

type Server struct {
	http.Server
	deps        Deps
	opts        Options
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.ImportMaxBytes <= 0 {
		opts.ImportMaxBytes = 10 << 20
	}
	if opts.ChartDays <= 0 {
		opts.ChartDays = metrics.DefaultChartDays
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 90
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	s := &Server{
		deps:        deps,
		opts:        opts,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector:    security.NewDetector(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /api/accounts/{account}/imports", s.handleImport)
	mux.HandleFunc("GET /api/accounts/{account}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/accounts/{account}/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/accounts/{account}/rules", s.handleListRules)
	mux.HandleFunc("POST /api/accounts/{account}/rules", s.handleCreateRule)
	if opts.DefaultAccountID != "" {
		mux.HandleFunc("POST /api/imports", s.handleImport)
		mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
		mux.HandleFunc("GET /api/forecast", s.handleForecast)
	}

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
	})

	// Outermost first.
	chain := []func(http.Handler) http.Handler{
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		trace.Middleware,
		log.Middleware(opts.Logger),
		log.RequestIDMiddleware(trace.FromRequest),
		log.AccessLog(s.detector.ExtractClientIP),
		s.detector.Middleware,
		limited,
	}
	var handler http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// accountID returns the account named in the path, or the default account
// on the shortcut routes.
func (s *Server) accountID(r *http.Request) string {
	if id := r.PathValue("account"); id != "" {
		return id
	}
	return s.opts.DefaultAccountID
}
