package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"scadenzario/internal/log"
	"scadenzario/internal/middleware/ratelimit"
	"scadenzario/internal/middleware/security"
	"scadenzario/internal/middleware/trace"
	"scadenzario/internal/records"
	"scadenzario/internal/services"
)

// Options tunes the server's middleware.
type Options struct {
	RateLimitPerMinute int
	Logger             *log.Logger
}

// Server serves the installment API.
type Server struct {
	http.Server
	series *services.SeriesService
	refs   *services.ReferenceService
	pinger records.Pinger
	logger *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// pinger may be nil when the backend has nothing to probe.
func NewServer(addr string, series *services.SeriesService, refs *services.ReferenceService, pinger records.Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		series:           series,
		refs:             refs,
		pinger:           pinger,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityDetector: security.NewDetector(),
		started:          time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /transactions/{id}/settle", s.handleSettleTransaction)
	mux.HandleFunc("POST /transactions/{id}/cancel", s.handleCancelTransaction)
	mux.HandleFunc("GET /series/{seriesId}", s.handleGetSeries)

	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("GET /payment-methods", s.handleListPaymentMethods)
	mux.HandleFunc("POST /payment-methods", s.handleCreatePaymentMethod)
	mux.HandleFunc("PUT /payment-methods/{id}", s.handleUpdatePaymentMethod)

	headers := security.NewHeadersMiddleware(security.APIHeadersConfig())

	var handler http.Handler = mux
	handler = s.withRateLimit(handler)
	handler = s.withSuspiciousRequestLogging(handler)
	handler = headers.Middleware(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// withRateLimit limits mutating requests per client IP. Reads are not limited.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").
			Header("Retry-After", strconv.Itoa(60)).
			Write(w)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

func (s *Server) withSuspiciousRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldRequestID, trace.GetRequestID(r.Context()),
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
