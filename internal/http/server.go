package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/log"
	"splitledger/internal/middleware/ratelimit"
	"splitledger/internal/middleware/security"
	"splitledger/internal/price"
	"splitledger/internal/services"
	"splitledger/internal/storage"
)

// Store is the snapshot the API serves from.
type Store interface {
	Ping(ctx context.Context) error
	SnapshotInfo(ctx context.Context) (storage.SnapshotMeta, error)
	ListPeople(ctx context.Context) ([]core.Person, error)
	ListExpenses(ctx context.Context) ([]core.Expense, error)
	ListSettlementAttempts(ctx context.Context, limit int) ([]core.SettlementAttempt, error)
}

// Server is the worker's read-only JSON API.
type Server struct {
	http.Server

	store   Store
	overdue *services.BalanceAggregator
	oracle  price.Oracle
	fiat    string

	limiter      *ratelimit.Limiter
	ips          *security.IPExtractor
	metrics      http.Handler
	logger       *log.Logger
	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithOverdueReader enables /api/overdue/{address}, answered live from r.
func WithOverdueReader(r ledger.Reader) Option {
	return func(s *Server) { s.overdue = services.NewBalanceAggregator(r) }
}

// WithPriceOracle adds fiat values to the summary.
func WithPriceOracle(o price.Oracle, fiat string) Option {
	return func(s *Server) {
		s.oracle = o
		s.fiat = fiat
	}
}

// WithRateLimit replaces the default /api rate limit.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store Store, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		store:   store,
		ips:     security.NewIPExtractor(),
		metrics: promhttp.Handler(),
		logger:  logger.WithComponent(log.ComponentHTTP),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	api := func(h http.HandlerFunc) http.Handler {
		return s.limiter.Middleware(s.ips.ClientIP)(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics)
	mux.Handle("GET /api/summary", api(s.handleSummary))
	mux.Handle("GET /api/people", api(s.handlePeople))
	mux.Handle("GET /api/expenses", api(s.handleExpenses))
	mux.Handle("GET /api/settlements", api(s.handleSettlements))
	if s.overdue != nil {
		mux.Handle("GET /api/overdue/{address}", api(s.handleOverdue))
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(s.logger)(headers.Middleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
