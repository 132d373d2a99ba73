package capital

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/config"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/exchange"
	"github.com/sawpanic/nexus/internal/logging"
)

// BalanceSnapshot is one venue's cached balance, refreshed on the sync
// loop's cadence.
type BalanceSnapshot struct {
	Venue       string
	TotalUSD    decimal.Decimal
	UpdatedAt   time.Time
	Err         string
}

// BalanceMonitor periodically fetches account balances from every venue
// with live credentials, logs their total, reloads the allocator's
// persisted pool state, and publishes the per-venue snapshots; the fetched
// totals are not written into the allocator's pools. Grounded on the original allocator service's periodic
// sync-then-publish loop, adapted from its per-exchange async fan-out to
// a fixed-interval synchronous poll over the already-initialized
// exchange.Adapter set.
type BalanceMonitor struct {
	cfg      config.CapitalConfig
	adapters map[string]exchange.Adapter
	alloc    *Allocator
	bus      events.Bus
	log      zerolog.Logger

	mu       sync.RWMutex
	balances map[string]BalanceSnapshot
}

// NewBalanceMonitor constructs a BalanceMonitor over an already-credentialed
// adapter set.
func NewBalanceMonitor(cfg config.CapitalConfig, adapters map[string]exchange.Adapter, alloc *Allocator, bus events.Bus) *BalanceMonitor {
	return &BalanceMonitor{
		cfg: cfg, adapters: adapters, alloc: alloc, bus: bus,
		log: logging.Component("balance_monitor"), balances: make(map[string]BalanceSnapshot),
	}
}

// Run executes an initial sync after a short startup delay, then syncs on
// cfg.BalanceSyncSeconds thereafter.
func (m *BalanceMonitor) Run(ctx context.Context) error {
	m.log.Info().Msg("starting balance monitor")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
	}

	interval := time.Duration(m.cfg.BalanceSyncSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.syncAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.syncAll(ctx)
		}
	}
}

func (m *BalanceMonitor) syncAll(ctx context.Context) {
	total := decimal.Zero
	snapshots := make(map[string]BalanceSnapshot, len(m.adapters))

	for venue, adapter := range m.adapters {
		bal, err := adapter.GetBalance(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("exchange", venue).Msg("failed to sync balance")
			snapshots[venue] = BalanceSnapshot{Venue: venue, Err: err.Error(), UpdatedAt: time.Now()}
			continue
		}
		snapshots[venue] = BalanceSnapshot{Venue: venue, TotalUSD: bal.TotalUSD, UpdatedAt: time.Now()}
		total = total.Add(bal.TotalUSD)
	}
	m.mu.Lock()
	m.balances = snapshots
	m.mu.Unlock()

	m.log.Info().Str("total_usd", total.String()).Int("exchanges", len(snapshots)).Msg("balance sync complete")

	if err := m.alloc.Load(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to reload capital state after balance sync")
	}
	if err := m.bus.Publish(ctx, events.TopicCapitalBalanceUpdate, "balance_monitor", snapshots); err != nil {
		m.log.Warn().Err(err).Msg("failed to publish balance update")
	}
}

// Balances returns the last synced snapshot, keyed by venue slug.
func (m *BalanceMonitor) Balances() map[string]BalanceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]BalanceSnapshot, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out
}
