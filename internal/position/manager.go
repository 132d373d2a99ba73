package position

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/exchange"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/store"
)

// reconciliationReportTTL bounds how long the cached report backs the
// /risk/alerts read path before a fresh reconciliation pass is required.
const reconciliationReportTTL = 5 * time.Minute

// Manager owns the sync/reconciliation/health/exit loop over every open
// Position.
type Manager struct {
	positions store.PositionStore
	truth     store.ExchangeTruthStore
	bus       events.Bus
	cache     cache.Cache
	adapters  map[string]exchange.Adapter // venue slug -> adapter
	limits    func() domain.RiskLimits
	log       zerolog.Logger
}

// New constructs a Manager. limits is a callback so the manager always
// reads the current risk configuration rather than a snapshot taken at
// startup.
func New(ps store.PositionStore, ts store.ExchangeTruthStore, bus events.Bus, c cache.Cache, adapters map[string]exchange.Adapter, limits func() domain.RiskLimits) *Manager {
	return &Manager{positions: ps, truth: ts, bus: bus, cache: c, adapters: adapters, limits: limits, log: logging.Component("position_manager")}
}

// Run drives the 30s sync loop (10s initial delay) plus a startup
// reconciliation pass.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info().Msg("starting position manager")

	m.reconcile(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.syncAll(ctx)
			m.reconcile(ctx)
		}
	}
}

// syncAll refreshes current prices/health/exit evaluation for every open
// position.
func (m *Manager) syncAll(ctx context.Context) {
	positions, err := m.positions.ListOpen(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to list open positions")
		return
	}
	limits := m.limits()
	exitCfg := ExitConfigFromLimits(limits)

	for _, pos := range positions {
		m.syncOne(ctx, pos, exitCfg)
	}
}

func (m *Manager) syncOne(ctx context.Context, pos domain.Position, exitCfg ExitConfig) {
	_, legs, err := m.positions.Get(ctx, pos.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("position_id", pos.ID).Msg("failed to load legs")
		return
	}

	for i := range legs {
		adapter, ok := m.adapters[legs[i].Exchange]
		if !ok {
			continue
		}
		ticker, err := adapter.GetTicker(ctx, legs[i].Symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("exchange", legs[i].Exchange).Msg("failed to refresh leg ticker")
			continue
		}
		legs[i].CurrentPrice = ticker.Last
		legs[i].UnrealizedPnL = legs[i].SignedQuantity().Mul(ticker.Last.Sub(legs[i].EntryPrice))
	}
	if err := m.positions.UpdateLegs(ctx, legs); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist refreshed legs")
	}

	health := EvaluateHealth(legs)
	pos.HealthStatus = health
	avgFunding := pos.AverageFundingPerPeriod()
	result := EvaluateExit(pos, legs, avgFunding, exitCfg, time.Now())

	m.appendInteraction(ctx, pos.ID, "health_check", fmt.Sprintf("health=%s delta_pct=%s", health, domain.NetDeltaPct(legs).String()))

	if result.ShouldExit {
		m.appendInteraction(ctx, pos.ID, "exit_trigger", result.TriggeredBy)
		if err := m.positions.UpdateStatus(ctx, pos.ID, domain.PosClosing, result.Reason); err != nil {
			m.log.Warn().Err(err).Msg("failed to mark position closing")
			return
		}
		m.closePosition(ctx, pos, legs, result.Reason)
		return
	}
}

// RequestClose closes an open position on demand (operator-initiated,
// via the HTTP API) rather than through the sync loop's exit evaluation.
func (m *Manager) RequestClose(ctx context.Context, positionID string, reason domain.ExitReason) error {
	pos, legs, err := m.positions.Get(ctx, positionID)
	if err != nil {
		return fmt.Errorf("load position %s: %w", positionID, err)
	}
	if pos.Status != domain.PosActive {
		return fmt.Errorf("position %s is not active (status=%s)", positionID, pos.Status)
	}
	if err := m.positions.UpdateStatus(ctx, positionID, domain.PosClosing, reason); err != nil {
		return fmt.Errorf("mark position closing: %w", err)
	}
	m.appendInteraction(ctx, positionID, "manual_close_request", "operator requested close: "+string(reason))
	m.closePosition(ctx, pos, legs, reason)
	return nil
}

// closePosition submits reduce-only closing orders on both legs and marks
// the position closed, publishing position_closed.
func (m *Manager) closePosition(ctx context.Context, pos domain.Position, legs []domain.Leg, reason domain.ExitReason) {
	for _, leg := range legs {
		adapter, ok := m.adapters[leg.Exchange]
		if !ok {
			continue
		}
		_, err := adapter.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: leg.Symbol, Side: leg.Side.Opposite(), Quantity: leg.Quantity, ReduceOnly: true,
		})
		if err != nil {
			m.log.Error().Err(err).Str("position_id", pos.ID).Str("exchange", leg.Exchange).Msg("failed to close leg, requires manual intervention")
		}
	}
	if err := m.positions.UpdateStatus(ctx, pos.ID, domain.PosClosed, reason); err != nil {
		m.log.Warn().Err(err).Msg("failed to mark position closed")
		return
	}
	pos.Status = domain.PosClosed
	pos.ExitReason = reason
	if err := m.bus.Publish(ctx, events.TopicPositionClosed, pos.ID, pos); err != nil {
		m.log.Warn().Err(err).Msg("failed to publish position_closed")
	}
}

func (m *Manager) appendInteraction(ctx context.Context, positionID, kind, narrative string) {
	entry := domain.InteractionLogEntry{
		ID: uuid.New().String(), PositionID: positionID, Timestamp: time.Now(),
		Type: kind, Worker: "position_manager", Decision: kind, Narrative: narrative,
	}
	if err := m.positions.AppendInteraction(ctx, entry); err != nil {
		m.log.Warn().Err(err).Msg("failed to append interaction log entry")
	}
}

// reconcile compares authoritative (Position+Leg) state against
// exchange-side truth pulled fresh from every adapter, classifying each
// difference. A non-critical size drift is counted as resolved, but the
// stored leg size is not changed.
func (m *Manager) reconcile(ctx context.Context) domain.ReconciliationReport {
	report := domain.ReconciliationReport{RunAt: time.Now()}

	positions, err := m.positions.ListOpen(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("reconciliation: failed to list open positions")
		return report
	}

	knownLegs := make(map[string]domain.Leg) // exchange|symbol -> leg
	for _, pos := range positions {
		_, legs, err := m.positions.Get(ctx, pos.ID)
		if err != nil {
			continue
		}
		for _, leg := range legs {
			knownLegs[leg.Exchange+"|"+leg.Symbol] = leg
		}
	}

	var orphans []domain.ExchangePosition
	for venue, adapter := range m.adapters {
		exchangePositions, err := adapter.GetPositions(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("exchange", venue).Msg("reconciliation: failed to fetch exchange positions")
			continue
		}
		for _, ep := range exchangePositions {
			report.Checked++
			key := ep.Exchange + "|" + ep.Symbol
			leg, known := knownLegs[key]
			if err := m.truth.UpsertPosition(ctx, ep); err != nil {
				m.log.Warn().Err(err).Msg("failed to upsert exchange truth")
			}
			if !known {
				report.Found++
				orphans = append(orphans, ep)
				continue
			}
			if diff, hasDiff := compareLegToExchange(leg, ep); hasDiff {
				report.Found++
				if diff.Critical {
					report.RequiresReview++
					report.Unresolved = append(report.Unresolved, diff)
				} else {
					report.Resolved++
					report.Actions = append(report.Actions, diff.Detail)
				}
			}
			delete(knownLegs, key)
		}
	}

	m.adoptUntracked(ctx, orphans, &report)

	for key := range knownLegs {
		report.Found++
		report.RequiresReview++
		report.Unresolved = append(report.Unresolved, domain.ReconciliationDiff{
			Kind: domain.DiffMissingOnExchange, Detail: "leg " + key + " has no matching exchange position", Critical: true, Action: "alerted",
		})
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, cache.KeyReconciliationReport, report, reconciliationReportTTL); err != nil {
			m.log.Warn().Err(err).Msg("failed to cache reconciliation report")
		}
	}
	if report.RequiresReview > 0 {
		if err := m.bus.Publish(ctx, events.TopicReconciliationAlert, "reconciliation", report); err != nil {
			m.log.Warn().Err(err).Msg("failed to publish reconciliation alert")
		}
	}
	return report
}

// adoptUntracked groups every orphaned exchange position by symbol and
// pairs longs with shorts FIFO (oldest UpdatedAt first) into synthetic
// active/attention Positions, matching the original service's
// adopt_untracked_positions pass. Legs left over after pairing become
// single-leg warning Positions rather than being dropped.
func (m *Manager) adoptUntracked(ctx context.Context, orphans []domain.ExchangePosition, report *domain.ReconciliationReport) {
	if len(orphans) == 0 {
		return
	}

	bySymbol := make(map[string][]domain.ExchangePosition)
	for _, ep := range orphans {
		bySymbol[ep.Symbol] = append(bySymbol[ep.Symbol], ep)
	}

	for symbol, group := range bySymbol {
		var longs, shorts []domain.ExchangePosition
		for _, ep := range group {
			if ep.Side == domain.SideShort {
				shorts = append(shorts, ep)
			} else {
				longs = append(longs, ep)
			}
		}
		sort.Slice(longs, func(i, j int) bool { return longs[i].UpdatedAt.Before(longs[j].UpdatedAt) })
		sort.Slice(shorts, func(i, j int) bool { return shorts[i].UpdatedAt.Before(shorts[j].UpdatedAt) })

		pairs := len(longs)
		if len(shorts) < pairs {
			pairs = len(shorts)
		}
		for i := 0; i < pairs; i++ {
			m.adoptPair(ctx, symbol, longs[i], shorts[i], report)
		}
		for _, ep := range longs[pairs:] {
			m.adoptSingleLeg(ctx, ep, report)
		}
		for _, ep := range shorts[pairs:] {
			m.adoptSingleLeg(ctx, ep, report)
		}
	}
}

// adoptPair creates a synthetic active/attention Position from two
// FIFO-paired orphan legs on opposite sides of the same symbol.
func (m *Manager) adoptPair(ctx context.Context, symbol string, long, short domain.ExchangePosition, report *domain.ReconciliationReport) {
	pos := domain.Position{
		ID:                   uuid.New().String(),
		Symbol:               symbol,
		Status:               domain.PosActive,
		HealthStatus:         domain.HealthAttention,
		TotalCapitalDeployed: long.NotionalUSD.Add(short.NotionalUSD),
		OpenedAt:             earlierOf(long.UpdatedAt, short.UpdatedAt),
	}
	legs := []domain.Leg{
		legFromExchangePosition(pos.ID, domain.LegPrimary, long),
		legFromExchangePosition(pos.ID, domain.LegHedge, short),
	}

	if err := m.positions.Create(ctx, &pos, legs); err != nil {
		m.log.Error().Err(err).Str("symbol", symbol).Msg("failed to adopt orphaned hedge pair")
		report.RequiresReview++
		report.Unresolved = append(report.Unresolved, domain.ReconciliationDiff{
			Kind: domain.DiffOrphanOnExchange, Symbol: symbol, Critical: true,
			Detail: "orphan pair found but adoption failed: " + err.Error(), Action: "alerted",
		})
		return
	}

	detail := fmt.Sprintf("adopted orphaned %s/%s hedge pair on %s into position %s", long.Exchange, short.Exchange, symbol, pos.ID)
	report.Resolved++
	report.Actions = append(report.Actions, detail)
	m.appendInteraction(ctx, pos.ID, "orphan_adopted", detail)
	if err := m.bus.Publish(ctx, events.TopicPositionOpened, pos.ID, pos); err != nil {
		m.log.Warn().Err(err).Msg("failed to publish position_opened for adopted pair")
	}
}

// adoptSingleLeg creates a warning-health, single_leg Position for an
// orphan leg that found no opposite-side partner on its symbol, leaving it
// flagged for manual hedge review rather than discarded.
func (m *Manager) adoptSingleLeg(ctx context.Context, ep domain.ExchangePosition, report *domain.ReconciliationReport) {
	pos := domain.Position{
		ID:                   uuid.New().String(),
		Symbol:               ep.Symbol,
		Status:               domain.PosActive,
		HealthStatus:         domain.HealthWarning,
		TotalCapitalDeployed: ep.NotionalUSD,
		OpenedAt:             ep.UpdatedAt,
		PositionType:         "single_leg",
	}
	legs := []domain.Leg{legFromExchangePosition(pos.ID, domain.LegPrimary, ep)}

	if err := m.positions.Create(ctx, &pos, legs); err != nil {
		m.log.Error().Err(err).Str("exchange", ep.Exchange).Str("symbol", ep.Symbol).Msg("failed to adopt orphaned single leg")
		report.RequiresReview++
		report.Unresolved = append(report.Unresolved, domain.ReconciliationDiff{
			Kind: domain.DiffOrphanOnExchange, Exchange: ep.Exchange, Symbol: ep.Symbol, Critical: true,
			Detail: "orphan leg found but adoption failed: " + err.Error(), Action: "alerted",
		})
		return
	}

	detail := fmt.Sprintf("adopted unhedged orphan leg on %s %s into single-leg position %s, requires manual hedge review", ep.Exchange, ep.Symbol, pos.ID)
	report.RequiresReview++
	report.Unresolved = append(report.Unresolved, domain.ReconciliationDiff{
		Kind: domain.DiffOrphanOnExchange, Exchange: ep.Exchange, Symbol: ep.Symbol, Critical: false,
		Detail: detail, Action: "adopted",
	})
	m.appendInteraction(ctx, pos.ID, "orphan_adopted_single_leg", detail)
	if err := m.bus.Publish(ctx, events.TopicPositionOpened, pos.ID, pos); err != nil {
		m.log.Warn().Err(err).Msg("failed to publish position_opened for adopted single leg")
	}
}

func legFromExchangePosition(positionID string, legType domain.LegType, ep domain.ExchangePosition) domain.Leg {
	return domain.Leg{
		ID:               uuid.New().String(),
		PositionID:       positionID,
		LegType:          legType,
		Exchange:         ep.Exchange,
		Symbol:           ep.Symbol,
		Side:             ep.Side,
		Quantity:         ep.Size,
		EntryPrice:       ep.EntryPrice,
		CurrentPrice:     ep.MarkPrice,
		NotionalUSD:      ep.NotionalUSD,
		Leverage:         ep.Leverage,
		UnrealizedPnL:    ep.UnrealizedPnL,
		LiquidationPrice: ep.LiquidationPrice,
	}
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func compareLegToExchange(leg domain.Leg, ep domain.ExchangePosition) (domain.ReconciliationDiff, bool) {
	sizeDiff := leg.Quantity.Sub(ep.Size).Abs()
	relSize := decimal.Zero
	if !leg.Quantity.IsZero() {
		relSize = sizeDiff.Div(leg.Quantity.Abs())
	}
	if relSize.GreaterThan(decimal.NewFromFloat(domain.SizeCriticalTolerance)) {
		return domain.ReconciliationDiff{
			Kind: domain.DiffSizeMismatch, Exchange: ep.Exchange, Symbol: ep.Symbol,
			Critical: true, Detail: fmt.Sprintf("size diverges %.1f%%, exceeds critical tolerance", f64(relSize.Mul(decimal.NewFromInt(100)))),
			Action: "alerted",
		}, true
	}
	if relSize.GreaterThan(decimal.NewFromFloat(domain.SizeTolerance)) {
		return domain.ReconciliationDiff{
			Kind: domain.DiffSizeMismatch, Exchange: ep.Exchange, Symbol: ep.Symbol,
			Critical: false, Detail: "minor size drift below critical tolerance, stored size unchanged", Action: "updated",
		}, true
	}
	return domain.ReconciliationDiff{}, false
}
