// Package http serves the read-only transaction query API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"smsledger/internal/cache"
	"smsledger/internal/core"
	"smsledger/internal/log"
	"smsledger/internal/middleware/ratelimit"
	"smsledger/internal/middleware/security"
	"smsledger/internal/middleware/trace"
	"smsledger/internal/storage"
)

// TransactionQuerier is the read side of the store.
// *storage.SQLiteRepository satisfies it.
type TransactionQuerier interface {
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.TransactionRecord, error)
	GetTransaction(ctx context.Context, id int64) (core.TransactionRecord, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// versioner lets cached list responses follow inserts made by other
// processes, such as the worker.
type versioner interface {
	LatestID(ctx context.Context) (int64, error)
}

// ServerConfig holds the knobs of the API server.
type ServerConfig struct {
	Addr         string
	CacheTTL     time.Duration
	CacheSize    int
	RateLimitRPM int
	CORSOrigin   string
	Logger       *log.Logger
}

type Server struct {
	http.Server
	store  TransactionQuerier
	logger *log.Logger

	responses    *cache.LRUCache[[]byte]
	cacheEnabled bool
	cacheMgr     *cache.Manager
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	detector     *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg ServerConfig, store TransactionQuerier) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}

	s := &Server{
		store:        store,
		logger:       logger,
		responses:    cache.NewLRUCache[[]byte](cfg.CacheSize, cfg.CacheTTL),
		cacheEnabled: cfg.CacheTTL > 0,
		cacheMgr:     cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitRPM}),
		tracer:       trace.NewMiddleware(),
		detector:     security.NewDetector(logger),
	}
	s.cacheMgr.Register(s.responses)
	if s.cacheEnabled {
		s.cacheMgr.StartCleanup(cfg.CacheTTL)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /transactions", s.limited(http.HandlerFunc(s.handleListTransactions)))
	mux.Handle("GET /transactions/{id}", s.limited(http.HandlerFunc(s.handleGetTransaction)))
	mux.HandleFunc("/", s.handleNotFound)

	var handler http.Handler = mux
	handler = security.CORS(cfg.CORSOrigin)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = log.Middleware(logger, trace.FromRequest)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) limited(next http.Handler) http.Handler {
	return s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ClientIP(r),
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})(next)
}

// Metrics reports request and cache counters for diagnostics.
func (s *Server) Metrics() (trace.Metrics, cache.Stats) {
	return s.tracer.GetMetrics(), s.responses.Stats()
}

// Shutdown stops background goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
