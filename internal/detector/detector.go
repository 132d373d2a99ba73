// Package detector implements the Opportunity Detector & Scorer: it reads
// spreads off the Aggregator's cache, scores each candidate with the
// Unified Opportunity Score, maintains the Opportunity lifecycle, and
// optionally auto-executes high-confidence detections by publishing an
// execution_request.
package detector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/config"
	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/store"
)

// AllocationContext is what the Capital Allocator exposes for scoring:
// available capital and current concurrent-coin usage, refreshed every
// 30s and cached locally so a detection cycle never blocks on a live
// allocator call.
type AllocationContext struct {
	AvailableCapitalUSD decimal.Decimal
	ConcurrentCoins     int
	MaxConcurrentCoins  int
}

// AllocationContextProvider is satisfied by the capital package.
type AllocationContextProvider interface {
	AllocationContext(ctx context.Context) (AllocationContext, error)
}

// Detector owns the opportunity set and its identity index.
type Detector struct {
	cfg       config.StrategyConfig
	bus       events.Bus
	cache     cache.Cache
	store     store.OpportunityStore
	allocCtx  AllocationContextProvider
	blacklist store.BlacklistStore
	log       zerolog.Logger

	mu            sync.RWMutex
	opportunities map[string]*domain.Opportunity // ID -> opportunity
	byIdentity    map[string]string              // IdentityKey -> ID

	allocMu    sync.RWMutex
	allocCache AllocationContext
	allocAt    time.Time
}

// New constructs a Detector.
func New(cfg config.StrategyConfig, bus events.Bus, c cache.Cache, st store.OpportunityStore, blacklist store.BlacklistStore, allocCtx AllocationContextProvider) *Detector {
	return &Detector{
		cfg:           cfg,
		bus:           bus,
		cache:         c,
		store:         st,
		blacklist:     blacklist,
		allocCtx:      allocCtx,
		log:           logging.Component("detector"),
		opportunities: make(map[string]*domain.Opportunity),
		byIdentity:    make(map[string]string),
	}
}

// Run drives the detection cycle, lifecycle cleanup, and allocation
// context refresh loops until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.log.Info().Msg("starting opportunity detector")

	detect := time.NewTicker(d.cfg.DetectionInterval())
	cleanup := time.NewTicker(60 * time.Second)
	allocRefresh := time.NewTicker(30 * time.Second)
	defer detect.Stop()
	defer cleanup.Stop()
	defer allocRefresh.Stop()

	d.refreshAllocationContext(ctx)

	var lastCycle time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-detect.C:
			// debounce: skip a cycle that lands within 5s of the last one
			if time.Since(lastCycle) < 5*time.Second {
				continue
			}
			lastCycle = time.Now()
			d.detectCycle(ctx)
		case <-cleanup.C:
			d.expireStale()
		case <-allocRefresh.C:
			d.refreshAllocationContext(ctx)
		}
	}
}

func (d *Detector) refreshAllocationContext(ctx context.Context) {
	ac, err := d.allocCtx.AllocationContext(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to refresh allocation context")
		return
	}
	d.allocMu.Lock()
	d.allocCache = ac
	d.allocAt = time.Now()
	d.allocMu.Unlock()
}

func (d *Detector) currentAllocationContext() AllocationContext {
	d.allocMu.RLock()
	defer d.allocMu.RUnlock()
	return d.allocCache
}

// detectCycle reads the cached spread list, filters/scores each
// candidate, and upserts the result into the opportunity set, idempotent
// on (symbol, long_exchange, short_exchange).
func (d *Detector) detectCycle(ctx context.Context) {
	var spreads []domain.Spread
	found, err := d.cache.Get(ctx, cache.KeySpreadList, &spreads)
	if err != nil || !found {
		return
	}

	blacklisted, err := d.blacklist.ListSymbols(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to load blacklist")
		blacklisted = nil
	}
	blocked := make(map[string]bool, len(blacklisted))
	for _, s := range blacklisted {
		blocked[s] = true
	}

	allocCtx := d.currentAllocationContext()

	for _, spread := range spreads {
		if blocked[spread.Symbol] {
			continue
		}
		if spread.SpreadPct.LessThan(decimal.NewFromFloat(d.cfg.MinSpreadPct)) {
			continue
		}
		if spread.AnnualizedAPR.LessThan(decimal.NewFromFloat(d.cfg.MinNetAPRPct)) {
			continue
		}
		d.upsert(ctx, spread, allocCtx)
	}
}

// upsert scores a spread and either creates a new Opportunity or refreshes
// the expiry of an existing non-terminal one sharing the same identity.
func (d *Detector) upsert(ctx context.Context, spread domain.Spread, allocCtx AllocationContext) {
	identity := spread.Symbol + "|" + spread.LongExchange + "|" + spread.ShortExchange

	breakdown := Score(spread, allocCtx)
	total := breakdown.Total()

	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.byIdentity[identity]; ok {
		if opp, ok := d.opportunities[id]; ok && !opp.Status.IsTerminal() {
			opp.ExpiresAt = time.Now().Add(domain.DefaultOpportunityTTL)
			opp.UOSScore = total
			opp.UOSBreakdown = breakdown
			opp.FundingSpreadPct = spread.SpreadPct
			opp.EstimatedNetAPR = spread.AnnualizedAPR
			return
		}
	}

	now := time.Now()
	opp := &domain.Opportunity{
		ID:                 uuid.New().String(),
		Symbol:             spread.Symbol,
		LongExchange:       spread.LongExchange,
		ShortExchange:      spread.ShortExchange,
		FundingSpread:      spread.Spread,
		FundingSpreadPct:   spread.SpreadPct,
		EstimatedNetAPR:    spread.AnnualizedAPR,
		UOSScore:           total,
		UOSBreakdown:       breakdown,
		RecommendedSizeUSD: domain.RecommendedSize(total, decimal.NewFromFloat(d.cfg.DefaultCapitalUSD)),
		DetectedAt:         now,
		ExpiresAt:          now.Add(domain.DefaultOpportunityTTL),
		Status:             domain.OppDetected,
		DataSource:         domain.SourceExchangeAPI,
	}
	d.opportunities[opp.ID] = opp
	d.byIdentity[identity] = opp.ID

	if err := d.store.Upsert(ctx, opp); err != nil {
		d.log.Warn().Err(err).Str("opportunity_id", opp.ID).Msg("failed to persist opportunity")
	}
	if err := d.bus.Publish(ctx, events.TopicOpportunityDetected, opp.ID, opp); err != nil {
		d.log.Warn().Err(err).Msg("failed to publish opportunity_detected")
	}

	if d.cfg.AutoExecute && total >= d.cfg.MinUOSAutoExecute {
		d.requestExecution(ctx, opp)
	}
}

func (d *Detector) requestExecution(ctx context.Context, opp *domain.Opportunity) {
	opp.Status = domain.OppAllocated
	if err := d.bus.Publish(ctx, events.TopicExecutionRequest, opp.ID, opp); err != nil {
		d.log.Warn().Err(err).Msg("failed to publish execution_request")
	}
}

// expireStale sweeps the opportunity set for anything past ExpiresAt and
// not yet terminal, moving it to OppExpired.
func (d *Detector) expireStale() {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, opp := range d.opportunities {
		if opp.Status.IsTerminal() {
			continue
		}
		if opp.IsExpired(now) {
			opp.Status = domain.OppExpired
			opp.ExpireReason = "ttl_elapsed"
		}
	}
}

// Get returns the opportunity by ID.
func (d *Detector) Get(id string) (*domain.Opportunity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	opp, ok := d.opportunities[id]
	return opp, ok
}

// List returns a snapshot slice of all tracked opportunities.
func (d *Detector) List() []*domain.Opportunity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*domain.Opportunity, 0, len(d.opportunities))
	for _, opp := range d.opportunities {
		out = append(out, opp)
	}
	return out
}

// OnPositionOpened marks the source opportunity executed; subscribed to
// events.TopicPositionOpened.
func (d *Detector) OnPositionOpened(_ context.Context, msg events.Message) error {
	pos, err := events.Decode[domain.Position](msg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if opp, ok := d.opportunities[pos.OpportunityID]; ok {
		opp.Status = domain.OppExecuted
	}
	return nil
}
