// Package capital implements the Capital Allocator: the four-pool capital
// ledger (reserve/active/pending/transit), reservation lifecycle for
// opportunities awaiting execution, concurrent-coin cap enforcement with
// weakness-ranked auto-unwind, and the venue balance sync loop.
package capital

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/config"
	"github.com/sawpanic/nexus/internal/detector"
	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/store"
)

// ErrConcurrentCoinCapReached is returned by Reserve when the number of
// distinct symbols already holding an active allocation or position would
// exceed cfg.MaxConcurrentCoins.
type ErrConcurrentCoinCapReached struct {
	Symbol string
	Cap    int
}

func (e ErrConcurrentCoinCapReached) Error() string {
	return fmt.Sprintf("concurrent coin cap (%d) reached, cannot reserve capital for new symbol %s", e.Cap, e.Symbol)
}

// PositionWeakness is a candidate for auto-unwind ranking: the weaker
// (lower) the score, the sooner it is chosen to be released when the
// concurrent-coin cap forces a swap.
type PositionWeakness struct {
	PositionID string
	Symbol     string
	Score      float64 // e.g. current UOS-equivalent or funding-rate health
}

// Allocator owns the four capital pools and every Allocation's lifecycle.
type Allocator struct {
	cfg     config.CapitalConfig
	store   store.CapitalStore
	bus     events.Bus
	log     zerolog.Logger

	mu       sync.RWMutex
	state    domain.CapitalState
	loadedAt time.Time
}

// New constructs an Allocator and primes it from the persisted state.
func New(cfg config.CapitalConfig, st store.CapitalStore, bus events.Bus) *Allocator {
	return &Allocator{cfg: cfg, store: st, bus: bus, log: logging.Component("capital_allocator")}
}

// Load reads the current CapitalState from storage into memory. Call this
// at startup and whenever an external process (the balance monitor) has
// written new pool totals.
func (a *Allocator) Load(ctx context.Context) error {
	state, err := a.store.GetState(ctx)
	if err != nil {
		return fmt.Errorf("load capital state: %w", err)
	}
	a.mu.Lock()
	a.state = state
	a.loadedAt = time.Now()
	a.mu.Unlock()
	return nil
}

// AllocationContext implements detector.AllocationContextProvider, giving
// the scorer a read of current capital slack without coupling it to the
// allocator's internals.
func (a *Allocator) AllocationContext(ctx context.Context) (detector.AllocationContext, error) {
	active, err := a.activeAllocations(ctx)
	if err != nil {
		return detector.AllocationContext{}, err
	}
	occupied := make(map[string]bool)
	for _, al := range active {
		occupied[al.Symbol] = true
	}

	a.mu.RLock()
	available := a.state.Reserve.TotalValueUSD
	a.mu.RUnlock()

	return detector.AllocationContext{
		AvailableCapitalUSD: available,
		ConcurrentCoins:     len(occupied),
		MaxConcurrentCoins:  a.cfg.MaxConcurrentCoins,
	}, nil
}

// activeAllocations returns every non-released allocation, used both for
// the concurrent-coin cap and for weakness ranking during auto-unwind.
func (a *Allocator) activeAllocations(ctx context.Context) ([]domain.Allocation, error) {
	all, err := a.store.ListActiveAllocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active allocations: %w", err)
	}
	return all, nil
}

// Reserve reserves amountUSD against symbol ahead of execution, enforcing
// the concurrent-coin cap. If the cap is already at its limit and symbol
// is not among the occupying symbols, Reserve returns
// ErrConcurrentCoinCapReached; callers may then invoke AutoUnwindWeakest to
// free a slot before retrying.
func (a *Allocator) Reserve(ctx context.Context, opportunityID, symbol, venue string, amountUSD decimal.Decimal) (domain.Allocation, error) {
	active, err := a.activeAllocations(ctx)
	if err != nil {
		return domain.Allocation{}, err
	}

	occupied := make(map[string]bool)
	for _, al := range active {
		occupied[al.Symbol] = true
	}
	if a.cfg.MaxConcurrentCoins > 0 && !occupied[symbol] && len(occupied) >= a.cfg.MaxConcurrentCoins {
		return domain.Allocation{}, ErrConcurrentCoinCapReached{Symbol: symbol, Cap: a.cfg.MaxConcurrentCoins}
	}

	a.mu.RLock()
	available := a.state.Reserve.TotalValueUSD
	a.mu.RUnlock()
	if amountUSD.GreaterThan(available) {
		return domain.Allocation{}, fmt.Errorf("insufficient reserve capital: requested %s, available %s", amountUSD.String(), available.String())
	}

	now := time.Now()
	expiry := now.Add(domain.DefaultReservationTTL)
	alloc := domain.Allocation{
		ID: uuid.New().String(), OpportunityID: &opportunityID, Symbol: symbol, Venue: venue,
		AmountUSD: amountUSD, Status: domain.AllocReserved, AllocatedAt: now, Expiry: &expiry,
	}
	if err := a.store.CreateAllocation(ctx, alloc); err != nil {
		return domain.Allocation{}, fmt.Errorf("create allocation: %w", err)
	}

	a.mu.Lock()
	a.state.Reserve.TotalValueUSD = a.state.Reserve.TotalValueUSD.Sub(amountUSD)
	a.state.Pending.TotalValueUSD = a.state.Pending.TotalValueUSD.Add(amountUSD)
	snapshot := a.state
	a.mu.Unlock()

	if err := a.store.SaveState(ctx, snapshot); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist capital state after reserve")
	}
	return alloc, nil
}

// Confirm moves a reserved allocation's capital from pending into active
// once a Position has been opened against it.
func (a *Allocator) Confirm(ctx context.Context, alloc domain.Allocation, positionID string) error {
	now := time.Now()
	alloc.Status = domain.AllocDeployed
	alloc.PositionID = &positionID
	alloc.DeployedAt = &now
	if err := a.store.UpdateAllocation(ctx, alloc); err != nil {
		return fmt.Errorf("confirm allocation: %w", err)
	}

	a.mu.Lock()
	a.state.Pending.TotalValueUSD = a.state.Pending.TotalValueUSD.Sub(alloc.AmountUSD)
	a.state.Active.TotalValueUSD = a.state.Active.TotalValueUSD.Add(alloc.AmountUSD)
	snapshot := a.state
	a.mu.Unlock()

	return a.store.SaveState(ctx, snapshot)
}

// Release returns a deployed or reserved allocation's capital back to
// reserve, used both on execution failure (release from pending) and on
// position close (release from active).
func (a *Allocator) Release(ctx context.Context, alloc domain.Allocation) error {
	now := time.Now()
	var fromPool *decimal.Decimal
	switch alloc.Status {
	case domain.AllocReserved:
		fromPool = &a.state.Pending.TotalValueUSD
	default:
		fromPool = &a.state.Active.TotalValueUSD
	}

	alloc.Status = domain.AllocReleased
	alloc.ReleasedAt = &now
	if err := a.store.UpdateAllocation(ctx, alloc); err != nil {
		return fmt.Errorf("release allocation: %w", err)
	}

	a.mu.Lock()
	*fromPool = fromPool.Sub(alloc.AmountUSD)
	a.state.Reserve.TotalValueUSD = a.state.Reserve.TotalValueUSD.Add(alloc.AmountUSD)
	snapshot := a.state
	a.mu.Unlock()

	return a.store.SaveState(ctx, snapshot)
}

// CleanupExpired releases every reserved allocation whose reservation
// window has passed without confirmation.
func (a *Allocator) CleanupExpired(ctx context.Context) (int, error) {
	active, err := a.activeAllocations(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	released := 0
	for _, al := range active {
		if al.IsExpired(now) {
			if err := a.Release(ctx, al); err != nil {
				a.log.Warn().Err(err).Str("allocation_id", al.ID).Msg("failed to release expired allocation")
				continue
			}
			released++
		}
	}
	return released, nil
}

// AutoUnwindWeakest picks the weakest-ranked occupying position (lowest
// Score) and returns it as the candidate for forced exit, freeing a
// concurrent-coin slot. The caller (position manager) performs the actual
// exit; this only ranks and selects.
func AutoUnwindWeakest(candidates []PositionWeakness) (PositionWeakness, bool) {
	if len(candidates) == 0 {
		return PositionWeakness{}, false
	}
	sorted := make([]PositionWeakness, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	return sorted[0], true
}

// State returns a read-only snapshot of the four pools.
func (a *Allocator) State() domain.CapitalState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}
