package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/nexus/internal/aggregator"
	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/capital"
	"github.com/sawpanic/nexus/internal/config"
	"github.com/sawpanic/nexus/internal/detector"
	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/exchange"
	"github.com/sawpanic/nexus/internal/execution"
	"github.com/sawpanic/nexus/internal/httpapi"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/metrics"
	"github.com/sawpanic/nexus/internal/position"
	"github.com/sawpanic/nexus/internal/risk"
	"github.com/sawpanic/nexus/internal/store"
	"github.com/sawpanic/nexus/internal/store/postgres"
)

var (
	flagConfigDir string
	flagDebug     bool
)

func init() {
	serveCmd.Flags().StringVar(&flagConfigDir, "config-dir", "config", "directory holding strategy.yaml/capital.yaml/exchanges.yaml")
	serveCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the platform's background loops and HTTP API",
	RunE:  runServe,
}

// system bundles every constructed subsystem so serve and other
// subcommands (stress) can share the same wiring.
type system struct {
	db         *sqlx.DB
	cacheImpl  cache.Cache
	bus        events.Bus
	adapters   map[string]exchange.Adapter
	metrics    *metrics.Registry
	runtimeCfg *config.RuntimeStore

	oppStore      store.OpportunityStore
	posStore      store.PositionStore
	riskStore     store.RiskStore
	capitalStore  store.CapitalStore
	activityStore store.ActivityStore
	truthStore    store.ExchangeTruthStore

	aggregator *aggregator.Aggregator
	detector   *detector.Detector
	allocator  *capital.Allocator
	balances   *capital.BalanceMonitor
	riskMgr    *risk.Manager
	posMgr     *position.Manager
	execEngine *execution.Engine
	limits     *limitsCache
}

func buildSystem(ctx context.Context) (*system, error) {
	env := config.LoadEnv()
	if env.DatabaseURL == "" {
		return nil, configError{fmt.Errorf("DATABASE_URL is required")}
	}

	strategyCfg, err := config.LoadStrategyConfig(filepath.Join(flagConfigDir, "strategy.yaml"))
	if err != nil {
		return nil, configError{err}
	}
	capitalCfg, err := config.LoadCapitalConfig(filepath.Join(flagConfigDir, "capital.yaml"))
	if err != nil {
		return nil, configError{err}
	}
	exchangesCfg, err := config.LoadExchangesConfig(filepath.Join(flagConfigDir, "exchanges.yaml"))
	if err != nil {
		return nil, configError{err}
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", env.DatabaseURL)
	if err != nil {
		return nil, dbError{fmt.Errorf("connect database: %w", err)}
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(3)

	c := cache.New(env.RedisURL)
	var bus events.Bus
	if env.RedisURL != "" {
		bus = events.NewRedisBus(env.RedisURL)
	} else {
		bus = events.NewInMemoryBus()
	}

	exLog := logging.Component("exchange")
	adapters := make(map[string]exchange.Adapter)
	referenceAdapters := make(map[string]exchange.Adapter)
	for _, ex := range exchangesCfg.Exchanges {
		if !ex.Enabled {
			continue
		}
		adapter, err := exchange.New(ex.Slug, nil)
		if err != nil {
			exLog.Warn().Err(err).Str("exchange", ex.Slug).Msg("skipping unsupported exchange")
			continue
		}
		creds := exchange.Credentials{
			APIKey:    os.Getenv(ex.APIKeyEnv),
			APISecret: os.Getenv(ex.APISecretEnv),
		}
		if err := adapter.Initialize(ctx, creds); err != nil {
			exLog.Warn().Err(err).Str("exchange", ex.Slug).Msg("adapter initialize failed, continuing degraded")
		}
		if ex.IsReference() {
			referenceAdapters[ex.Slug] = adapter
			continue
		}
		adapters[ex.Slug] = adapter
	}

	s := &system{
		db: db, cacheImpl: c, bus: bus, adapters: adapters,
		metrics:    metrics.New(),
		runtimeCfg: config.NewRuntimeStore(strategyCfg, exchangesCfg),

		oppStore:      postgres.NewOpportunityStore(db, 5*time.Second),
		posStore:      postgres.NewPositionStore(db, 5*time.Second),
		riskStore:     postgres.NewRiskStore(db, 5*time.Second),
		capitalStore:  postgres.NewCapitalStore(db, 5*time.Second),
		activityStore: postgres.NewActivityStore(db, 5*time.Second),
		truthStore:    postgres.NewExchangeTruthStore(db, 5*time.Second),
	}

	symbols := make([]string, 0, len(exchangesCfg.Exchanges))
	for symbol := range strategySymbols(strategyCfg) {
		symbols = append(symbols, symbol)
	}
	s.aggregator = aggregator.New(aggregator.DefaultConfig(symbols), bus, c, adapters, referenceAdapters)

	s.allocator = capital.New(capitalCfg, s.capitalStore, bus)
	s.balances = capital.NewBalanceMonitor(capitalCfg, adapters, s.allocator, bus)
	s.riskMgr = risk.New(s.riskStore, bus)

	s.detector = detector.New(strategyCfg, bus, c, s.oppStore, s.riskStore, s.allocator)
	bus.Subscribe(events.TopicPositionOpened, s.detector.OnPositionOpened)

	credLoader := func(ctx context.Context, venue string) (exchange.Credentials, error) {
		for _, ex := range exchangesCfg.Exchanges {
			if ex.Slug == venue {
				return exchange.Credentials{APIKey: os.Getenv(ex.APIKeyEnv), APISecret: os.Getenv(ex.APISecretEnv)}, nil
			}
		}
		return exchange.Credentials{}, fmt.Errorf("no configured exchange %q", venue)
	}
	adapterFactory := func(ctx context.Context, venue string, creds exchange.Credentials) (exchange.Adapter, error) {
		if a, ok := adapters[venue]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("no adapter wired for venue %q", venue)
	}
	s.execEngine = execution.New(s.posStore, s.oppStore, s.activityStore, bus, credLoader, adapterFactory)

	limits := newLimitsCache(s.riskStore)
	if err := limits.refresh(ctx); err != nil {
		return nil, dbError{fmt.Errorf("load risk limits: %w", err)}
	}
	s.posMgr = position.New(s.posStore, s.truthStore, bus, c, adapters, limits.get)
	s.limits = limits

	return s, nil
}

// limitsCache serves position.Manager's synchronous limits() callback from
// a value refreshed on a timer, since RiskLimits lives behind the async
// store.RiskStore interface but the manager's exit-evaluation path needs it
// without blocking on a query every position tick.
type limitsCache struct {
	store store.RiskStore
	mu    sync.RWMutex
	val   domain.RiskLimits
}

func newLimitsCache(st store.RiskStore) *limitsCache {
	return &limitsCache{store: st}
}

func (c *limitsCache) refresh(ctx context.Context) error {
	limits, err := c.store.GetLimits(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.val = limits
	c.mu.Unlock()
	return nil
}

func (c *limitsCache) get() domain.RiskLimits {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *limitsCache) runRefresh(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = c.refresh(ctx)
		}
	}
}

// strategySymbols is a placeholder universe until a dedicated symbol-list
// config section is introduced; every configured exchange is assumed to
// quote the same cross-exchange perpetual universe.
func strategySymbols(cfg config.StrategyConfig) map[string]struct{} {
	return map[string]struct{}{
		"BTC": {}, "ETH": {}, "SOL": {}, "BNB": {}, "XRP": {},
	}
}

func (s *system) close() {
	if s.cacheImpl != nil {
		_ = s.cacheImpl.Close()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init(flagDebug)
	log := logging.Component("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys, err := buildSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.close()

	go runLoop(ctx, log, "aggregator", sys.aggregator.Run)
	go runLoop(ctx, log, "detector", sys.detector.Run)
	go runLoop(ctx, log, "balance_monitor", sys.balances.Run)
	go runLoop(ctx, log, "position_manager", sys.posMgr.Run)
	go func() { _ = sys.limits.runRefresh(ctx) }()

	env := config.LoadEnv()
	httpSrv := httpapi.NewServer(httpapi.DefaultConfig(env.HTTPPort), httpapi.Deps{
		Opportunities: sys.oppStore,
		Positions:     sys.posStore,
		Blacklist:     sys.riskStore,
		Detector:      sys.detector,
		Execution:     sys.execEngine,
		PositionMgr:   sys.posMgr,
		Allocator:     sys.allocator,
		Risk:          sys.riskMgr,
		Cache:         sys.cacheImpl,
		RuntimeConfig: sys.runtimeCfg,
	})

	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", env.HTTPPort+1), Handler: sys.metrics.Handler()}
	go func() {
		log.Info().Str("addr", metricsSrv.Addr).Msg("starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http api stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}

// runLoop runs a subsystem's blocking Run loop until ctx is canceled,
// logging a non-nil return as an unexpected stop rather than letting it
// vanish silently.
func runLoop(ctx context.Context, log zerolog.Logger, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("loop", name).Msg("background loop stopped unexpectedly")
	}
}
