// Package httpapi is the platform's inbound HTTP boundary: read-mostly
// handlers over the five core subsystems, wrapped in a single
// {success, data, error, meta} envelope. Grounded on
// internal/interfaces/http/server.go's mux.Router + middleware chain,
// generalized from a read-only candidate-scanner API to this platform's
// read/write surface (execute, close, validate, blacklist mutate).
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/capital"
	"github.com/sawpanic/nexus/internal/config"
	"github.com/sawpanic/nexus/internal/detector"
	"github.com/sawpanic/nexus/internal/execution"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/position"
	"github.com/sawpanic/nexus/internal/risk"
	"github.com/sawpanic/nexus/internal/store"
)

// Deps wires every subsystem the handlers read from or act on.
type Deps struct {
	Opportunities store.OpportunityStore
	Positions     store.PositionStore
	Blacklist     store.RiskStore
	Detector      *detector.Detector
	Execution     *execution.Engine
	PositionMgr   *position.Manager
	Allocator     *capital.Allocator
	Risk          *risk.Manager
	Cache         cache.Cache
	RuntimeConfig *config.RuntimeStore
}

// Config holds the server's bind parameters.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig binds to all interfaces on HTTP_PORT (set by the caller
// from config.Env), since this platform's API is meant to be reachable
// by its own frontend.
func DefaultConfig(port int) Config {
	return Config{
		Host: "0.0.0.0", Port: port,
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second,
	}
}

// Server is the platform's external HTTP interface.
type Server struct {
	router *mux.Router
	server *http.Server
	deps   Deps
	log    zerolog.Logger
}

// NewServer constructs a Server and wires every route.
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{router: mux.NewRouter(), deps: deps, log: logging.Component("httpapi")}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.jsonContentTypeMiddleware)

	s.router.HandleFunc("/health", s.Health).Methods(http.MethodGet)

	s.router.HandleFunc("/opportunities", s.ListOpportunities).Methods(http.MethodGet)
	s.router.HandleFunc("/opportunities/live", s.ListOpportunities).Methods(http.MethodGet)
	s.router.HandleFunc("/opportunities/top/{n}", s.TopOpportunities).Methods(http.MethodGet)
	s.router.HandleFunc("/opportunities/{id}", s.GetOpportunity).Methods(http.MethodGet)
	s.router.HandleFunc("/opportunities/{id}/execute", s.ExecuteOpportunity).Methods(http.MethodPost)

	s.router.HandleFunc("/positions", s.ListPositions).Methods(http.MethodGet)
	s.router.HandleFunc("/positions/active", s.ListPositions).Methods(http.MethodGet)
	s.router.HandleFunc("/positions/{id}", s.GetPosition).Methods(http.MethodGet)
	s.router.HandleFunc("/positions/{id}/close", s.ClosePosition).Methods(http.MethodPost)

	s.router.HandleFunc("/risk/state", s.RiskState).Methods(http.MethodGet)
	s.router.HandleFunc("/risk/limits", s.RiskLimits).Methods(http.MethodGet)
	s.router.HandleFunc("/risk/validate", s.RiskValidate).Methods(http.MethodPost)
	s.router.HandleFunc("/risk/circuit-breaker/activate", s.ActivateBreaker).Methods(http.MethodPost)
	s.router.HandleFunc("/risk/circuit-breaker/deactivate", s.DeactivateBreaker).Methods(http.MethodPost)

	s.router.HandleFunc("/blacklist", s.ListBlacklist).Methods(http.MethodGet)
	s.router.HandleFunc("/blacklist", s.AddBlacklist).Methods(http.MethodPost)
	s.router.HandleFunc("/blacklist/{symbol}", s.RemoveBlacklist).Methods(http.MethodDelete)

	s.router.HandleFunc("/funding/rates", s.FundingRates).Methods(http.MethodGet)
	s.router.HandleFunc("/funding/matrix", s.FundingMatrix).Methods(http.MethodGet)
	s.router.HandleFunc("/funding/history/{symbol}", s.FundingHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/funding/spreads", s.FundingSpreads).Methods(http.MethodGet)

	s.router.HandleFunc("/risk/alerts", s.RiskAlerts).Methods(http.MethodGet)

	s.router.HandleFunc("/analytics/daily", s.AnalyticsStub).Methods(http.MethodGet)
	s.router.HandleFunc("/analytics/summary", s.AnalyticsStub).Methods(http.MethodGet)
	s.router.HandleFunc("/analytics/attribution", s.AnalyticsStub).Methods(http.MethodGet)
	s.router.HandleFunc("/analytics/realtime", s.AnalyticsStub).Methods(http.MethodGet)
	s.router.HandleFunc("/analytics/trades", s.AnalyticsStub).Methods(http.MethodGet)

	s.router.HandleFunc("/config/strategy", s.GetStrategyConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/config/strategy", s.PutStrategyConfig).Methods(http.MethodPut)
	s.router.HandleFunc("/config/exchanges/{slug}", s.GetExchangeConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/config/exchanges/{slug}", s.PatchExchangeConfig).Methods(http.MethodPatch)
	s.router.HandleFunc("/config/settings/factory-reset", s.FactoryReset).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting http api")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", wrapped.status).Dur("duration", time.Since(start)).Msg("request")
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "no such route: "+r.URL.Path)
}
