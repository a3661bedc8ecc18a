package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"budgetly/internal/core"
	applog "budgetly/internal/log"
	"budgetly/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// BudgetAPI is the part of services.BudgetService the HTTP layer calls.
type BudgetAPI interface {
	GetPeriodSummary(ctx context.Context, ownerID int64, month, year int) (core.PeriodSummary, error)
	CopyBudgetsForward(ctx context.Context, ownerID int64, targetMonth, targetYear int) (services.RolloverResult, error)
	SetBudget(ctx context.Context, ownerID, categoryID int64, month, year int, amount decimal.Decimal) (int64, error)
	SetBudgets(ctx context.Context, ownerID int64, p core.Period, entries []services.BudgetEntry) (services.BatchResult, error)
	DeleteCategory(ctx context.Context, ownerID, categoryID int64) (services.DeleteResult, error)
	ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (int64, error)
	AddTransaction(ctx context.Context, t core.Transaction) (int64, error)
}

// Options tunes a Server. The zero value is usable.
type Options struct {
	// RateLimit is write requests per client per minute (default 60).
	RateLimit int
	// RequestTimeout bounds each request (default 30s).
	RequestTimeout time.Duration
	// Now supplies the clock for requests that omit the period.
	Now func() time.Time
}

type Server struct {
	http.Server
	api         BudgetAPI
	logger      *applog.Logger
	httpLog     *applog.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, api BudgetAPI, logger *applog.Logger, opts Options) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		api:         api,
		logger:      logger,
		httpLog:     applog.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(opts.RateLimit),
		metrics:     &securityMetrics{},
		now:         opts.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(applog.Middleware(logger))
	r.Use(s.withRequestContext)
	r.Use(applog.RequestIDMiddleware(requestIDFromContext))
	r.Use(s.withSecurity)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleCurrentSummary)
		r.Get("/security/stats", s.handleSecurityStats)

		r.Route("/periods/{year}/{month}", func(r chi.Router) {
			r.Get("/summary", s.handlePeriodSummary)
			r.Post("/budgets", s.handleSetBudgets)
			r.Post("/rollover", s.handleRollover)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
			r.Put("/{id}/budgets/{year}/{month}", s.handleSetBudget)
		})

		r.Post("/transactions", s.handleAddTransaction)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

type requestIDKey struct{}

func requestIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// withRequestContext assigns the request ID and logs request completion.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.observe(elapsed)
		logger := applog.FromContext(r.Context()).With(applog.FieldRequestID, requestID)
		applog.NewStructuredLogger(logger).
			LogHTTPEnd(r.Context(), r, status, elapsed.Milliseconds(), extractClientIP(r))
	})
}

// withSecurity sets response headers, flags suspicious requests and rate
// limits writes per client IP.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applySecurityHeaders(w, r)
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r, s.metrics) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead && !s.rateLimiter.allow(clientIP, s.metrics) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.metrics.snapshot()).Write(w)
}

// writeError renders err and logs it when it is not a client error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp, clientFault := errorFromDomain(err)
	if !clientFault {
		s.httpLog.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, nil)
	} else {
		slog.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
	resp.Write(w)
}
