// Package aggregator implements the Market Data Aggregator: it polls
// every configured exchange adapter for funding rates, reconciles
// primary vs. reference sources into a UnifiedFundingSnapshot, derives
// cross-exchange spreads, and publishes both onto the event bus and the
// shared cache so the Detector never talks to an exchange directly.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/exchange"
	"github.com/sawpanic/nexus/internal/logging"
)

// DiscrepancyThresholdPct is the relative disagreement between primary and
// reference sources that raises a ReconciliationConflict.
const DiscrepancyThresholdPct = 0.20

// Config bounds the aggregator's periodic work.
type Config struct {
	Symbols               []string
	ReconcileInterval      time.Duration
	SpreadHistoryInterval  time.Duration
	HealthCheckInterval    time.Duration
	CleanupInterval        time.Duration
	SpreadHistoryRetention time.Duration
}

// DefaultConfig sets the standard cadence: reconcile 30s, spread history
// capture 5m, source health 10s, cleanup 1m (spread-history size cap).
func DefaultConfig(symbols []string) Config {
	return Config{
		Symbols:                symbols,
		ReconcileInterval:      30 * time.Second,
		SpreadHistoryInterval:  5 * time.Minute,
		HealthCheckInterval:    10 * time.Second,
		CleanupInterval:        time.Minute,
		SpreadHistoryRetention: time.Hour,
	}
}

// sourceHealth tracks one feed's health and consecutive-error count, grounded on the
// original manager's consecutive-failure reconnect loop.
type sourceHealth struct {
	healthy           bool
	consecutiveErrors int
	lastSuccess       time.Time
}

// Aggregator owns the primary/reference rate maps, the reconciled
// snapshot, and the spread cache.
type Aggregator struct {
	cfg   Config
	bus   events.Bus
	cache cache.Cache
	log   zerolog.Logger

	primaries  map[string]exchange.Adapter // venue slug -> adapter, authoritative
	references map[string]exchange.Adapter // venue slug -> adapter, cross-check and gap-fill

	mu              sync.RWMutex
	primaryRates    map[string]map[string]domain.FundingRate // symbol -> exchange -> rate
	secondaryRates  map[string]map[string]domain.FundingRate
	unified         domain.UnifiedFundingSnapshot
	spreadHistory   []domain.Spread
	sourceHealth    map[string]*sourceHealth
}

// New constructs an Aggregator. primaries are the authoritative per-venue
// feeds; references flag reconciliation conflicts and fill keys that no
// primary feed reported.
func New(cfg Config, bus events.Bus, c cache.Cache, primaries, references map[string]exchange.Adapter) *Aggregator {
	health := make(map[string]*sourceHealth, len(primaries))
	for slug := range primaries {
		health[slug] = &sourceHealth{healthy: true}
	}
	return &Aggregator{
		cfg:            cfg,
		bus:            bus,
		cache:          c,
		log:            logging.Component("aggregator"),
		primaries:      primaries,
		references:     references,
		primaryRates:   make(map[string]map[string]domain.FundingRate),
		secondaryRates: make(map[string]map[string]domain.FundingRate),
		sourceHealth:   health,
	}
}

// Run blocks, driving the reconcile/spread-history/health/cleanup loops
// until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	a.log.Info().Msg("starting market data aggregator")

	reconcile := time.NewTicker(a.cfg.ReconcileInterval)
	spreadHist := time.NewTicker(a.cfg.SpreadHistoryInterval)
	health := time.NewTicker(a.cfg.HealthCheckInterval)
	cleanup := time.NewTicker(a.cfg.CleanupInterval)
	defer reconcile.Stop()
	defer spreadHist.Stop()
	defer health.Stop()
	defer cleanup.Stop()

	// Prime state once before entering the loop so the first consumer
	// read isn't empty.
	a.pollAndReconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconcile.C:
			a.pollAndReconcile(ctx)
		case <-spreadHist.C:
			a.captureSpreadHistory()
		case <-health.C:
			a.publishHealth(ctx)
		case <-cleanup.C:
			a.cleanup()
		}
	}
}

// pollAndReconcile fetches every primary/reference source, reconciles
// them into a UnifiedFundingSnapshot, computes spreads, caches and
// publishes both.
func (a *Aggregator) pollAndReconcile(ctx context.Context) {
	primary := a.pollSources(ctx, a.primaries, true)
	secondary := a.pollSources(ctx, a.references, false)

	a.mu.Lock()
	a.primaryRates = primary
	a.secondaryRates = secondary
	snapshot := a.reconcileLocked()
	a.unified = snapshot
	a.mu.Unlock()

	if snapshot.IsEmpty() {
		a.log.Warn().Msg("unified snapshot empty after reconciliation, skipping publish")
		return
	}

	if err := a.cache.Set(ctx, cache.KeyUnifiedSnapshot, snapshot, cache.SpreadCacheTTL); err != nil {
		a.log.Warn().Err(err).Msg("failed to cache unified snapshot")
	}
	if err := a.bus.Publish(ctx, events.TopicUnifiedSnapshot, "unified", snapshot); err != nil {
		a.log.Warn().Err(err).Msg("failed to publish unified snapshot")
	}

	spreads := a.calculateSpreads(snapshot)
	if err := a.cache.Set(ctx, cache.KeySpreadList, spreads, cache.SpreadCacheTTL); err != nil {
		a.log.Warn().Err(err).Msg("failed to cache spread list")
	}
	if err := a.bus.Publish(ctx, events.TopicSpreadCache, "spreads", spreads); err != nil {
		a.log.Warn().Err(err).Msg("failed to publish spread cache")
	}
}

// pollSources fetches funding rates from each adapter, recording
// consecutive-error and health state when isPrimary. Every adapter is
// polled on every call, whether or not it is currently healthy.
func (a *Aggregator) pollSources(ctx context.Context, adapters map[string]exchange.Adapter, isPrimary bool) map[string]map[string]domain.FundingRate {
	out := make(map[string]map[string]domain.FundingRate)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for slug, adapter := range adapters {
		wg.Add(1)
		go func(slug string, adapter exchange.Adapter) {
			defer wg.Done()
			rates, err := adapter.GetFundingRates(ctx, a.cfg.Symbols)
			if isPrimary {
				a.recordSourceHealth(slug, err)
			}
			if err != nil {
				a.log.Warn().Str("venue", slug).Err(err).Msg("funding rate poll failed")
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range rates {
				if !r.IsWithinBounds() {
					a.log.Warn().Str("venue", slug).Str("symbol", r.Symbol).Msg("funding rate outside hard bound, dropping")
					continue
				}
				if out[r.Symbol] == nil {
					out[r.Symbol] = make(map[string]domain.FundingRate)
				}
				out[r.Symbol][slug] = r
			}
		}(slug, adapter)
	}
	wg.Wait()
	return out
}

// recordSourceHealth updates a primary source's health after a poll: a
// success resets the consecutive-error count and marks it healthy; a
// failure marks it unhealthy once DegradedAfter has passed since the last
// success. There is no separate degraded state, and StaleAfter is not
// consulted.
func (a *Aggregator) recordSourceHealth(slug string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.sourceHealth[slug]
	if !ok {
		h = &sourceHealth{healthy: true}
		a.sourceHealth[slug] = h
	}
	if err == nil {
		h.consecutiveErrors = 0
		h.lastSuccess = time.Now()
		h.healthy = true
		return
	}
	h.consecutiveErrors++
	h.healthy = time.Since(h.lastSuccess) < domain.DegradedAfter
}

// reconcileLocked builds the UnifiedFundingSnapshot from the current
// primary/secondary maps; caller holds a.mu. Every (symbol, exchange) key
// present in either source resolves to a single best-source value: both
// present prefers primary and checks for a conflict, primary-only takes
// primary, and secondary-only gap-fills from the reference feed so a
// primary outage never empties the snapshot.
func (a *Aggregator) reconcileLocked() domain.UnifiedFundingSnapshot {
	snapshot := domain.UnifiedFundingSnapshot{
		Rates:            make(map[string]map[string]domain.FundingRate),
		FetchedAt:        time.Now(),
		ExchangesHealthy: make(map[string]bool),
	}
	for slug, h := range a.sourceHealth {
		snapshot.ExchangesHealthy[slug] = h.healthy
	}

	symbols := make(map[string]bool, len(a.primaryRates)+len(a.secondaryRates))
	for symbol := range a.primaryRates {
		symbols[symbol] = true
	}
	for symbol := range a.secondaryRates {
		symbols[symbol] = true
	}

	for symbol := range symbols {
		primaryByExch := a.primaryRates[symbol]
		secondaryByExch := a.secondaryRates[symbol]

		exchanges := make(map[string]bool, len(primaryByExch)+len(secondaryByExch))
		for exch := range primaryByExch {
			exchanges[exch] = true
		}
		for exch := range secondaryByExch {
			exchanges[exch] = true
		}

		rates := make(map[string]domain.FundingRate, len(exchanges))
		for exch := range exchanges {
			primaryRate, hasPrimary := primaryByExch[exch]
			secondaryRate, hasSecondary := secondaryByExch[exch]

			switch {
			case hasPrimary && hasSecondary:
				rates[exch] = primaryRate
				snapshot.PrimaryRateCount++
				snapshot.ReferenceRateCount++
				if conflict, found := compareRates(exch, symbol, primaryRate, secondaryRate); found {
					snapshot.Discrepancies = append(snapshot.Discrepancies, conflict)
				}
			case hasPrimary:
				rates[exch] = primaryRate
				snapshot.PrimaryRateCount++
			default:
				// only secondary available: gap-fill from the reference feed
				rates[exch] = secondaryRate
				snapshot.ReferenceRateCount++
			}
		}
		if len(rates) > 0 {
			snapshot.Rates[symbol] = rates
		}
	}
	return snapshot
}

// compareRates flags a ReconciliationConflict when primary and secondary
// disagree by more than DiscrepancyThresholdPct relative to the secondary
// (reference) reading.
func compareRates(exch, symbol string, primary, secondary domain.FundingRate) (domain.ReconciliationConflict, bool) {
	if secondary.Rate.IsZero() {
		return domain.ReconciliationConflict{}, false
	}
	diff := primary.Rate.Sub(secondary.Rate).Abs().Div(secondary.Rate.Abs())
	if diff.LessThanOrEqual(decimal.NewFromFloat(DiscrepancyThresholdPct)) {
		return domain.ReconciliationConflict{}, false
	}
	return domain.ReconciliationConflict{
		Exchange:       exch,
		Symbol:         symbol,
		PrimaryRate:    primary.Rate,
		SecondaryRate:  secondary.Rate,
		DiscrepancyPct: diff.Mul(decimal.NewFromInt(100)),
		Timestamp:      time.Now(),
	}, true
}

// calculateSpreads derives every cross-exchange Spread for each symbol in
// the snapshot, sorted by descending AnnualizedAPR, matching the detector's
// read order.
func (a *Aggregator) calculateSpreads(snapshot domain.UnifiedFundingSnapshot) []domain.Spread {
	var spreads []domain.Spread
	for symbol, byExchange := range snapshot.Rates {
		exchanges := make([]string, 0, len(byExchange))
		for exch := range byExchange {
			exchanges = append(exchanges, exch)
		}
		sort.Strings(exchanges)
		for i := 0; i < len(exchanges); i++ {
			for j := i + 1; j < len(exchanges); j++ {
				spreads = append(spreads, domain.NewSpread(symbol, byExchange[exchanges[i]], byExchange[exchanges[j]]))
			}
		}
	}
	sort.Slice(spreads, func(i, j int) bool {
		return spreads[i].AnnualizedAPR.GreaterThan(spreads[j].AnnualizedAPR)
	})
	return spreads
}

// captureSpreadHistory appends the current spread list to the in-memory
// spread history; the history is not written to any durable store.
func (a *Aggregator) captureSpreadHistory() {
	a.mu.RLock()
	snapshot := a.unified
	a.mu.RUnlock()
	if snapshot.IsEmpty() {
		return
	}
	spreads := a.calculateSpreads(snapshot)

	a.mu.Lock()
	a.spreadHistory = append(a.spreadHistory, spreads...)
	a.mu.Unlock()
}

// cleanup runs every CleanupInterval and trims spread history to its most
// recent 10000 entries. Entry age is not checked, and
// SpreadHistoryRetention is not consulted.
func (a *Aggregator) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.spreadHistory) > 10000 {
		a.spreadHistory = a.spreadHistory[len(a.spreadHistory)-10000:]
	}
}

// publishHealth emits the current per-source health map onto the bus so
// dashboards and the risk manager can observe degraded feeds.
func (a *Aggregator) publishHealth(ctx context.Context) {
	a.mu.RLock()
	snapshot := make(map[string]bool, len(a.sourceHealth))
	for slug, h := range a.sourceHealth {
		snapshot[slug] = h.healthy
	}
	a.mu.RUnlock()
	if err := a.bus.Publish(ctx, events.TopicAggregatorHealth, "health", snapshot); err != nil {
		a.log.Warn().Err(err).Msg("failed to publish aggregator health")
	}
}

// Snapshot returns the most recently reconciled view, used by callers
// (e.g. an HTTP handler) that want a synchronous read without waiting on
// the cache.
func (a *Aggregator) Snapshot() domain.UnifiedFundingSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unified
}

// TopSpreads returns up to n spreads from the last computed list, highest
// APR first.
func (a *Aggregator) TopSpreads(n int) []domain.Spread {
	a.mu.RLock()
	snapshot := a.unified
	a.mu.RUnlock()
	spreads := a.calculateSpreads(snapshot)
	if n > 0 && n < len(spreads) {
		spreads = spreads[:n]
	}
	return spreads
}
