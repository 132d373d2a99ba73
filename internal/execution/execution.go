// Package execution implements the Execution Engine: given an allocated
// Opportunity, it submits the primary leg, then the hedge leg with
// rollback on failure, writes the resulting Position in one transaction,
// and publishes position_opened. Per-opportunity concurrency is bounded
// by locks, a sync.Map-backed key lock keyed on opportunity ID.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/exchange"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/store"
	"github.com/sawpanic/nexus/internal/xerrors"
)

// CredentialLoader resolves venue credentials on demand; the decrypt step
// itself lives behind the out-of-scope credential store boundary.
type CredentialLoader func(ctx context.Context, venue string) (exchange.Credentials, error)

// AdapterFactory constructs (or returns a cached) exchange.Adapter for a
// venue slug, already Initialize'd with credentials.
type AdapterFactory func(ctx context.Context, venue string, creds exchange.Credentials) (exchange.Adapter, error)

// Engine executes allocated opportunities into live hedged positions.
type Engine struct {
	store         store.PositionStore
	oppStore      store.OpportunityStore
	activityStore store.ActivityStore
	bus           events.Bus
	loadCreds     CredentialLoader
	adapters      AdapterFactory
	log           zerolog.Logger

	locks sync.Map // opportunity ID -> *sync.Mutex
}

// New constructs an Engine.
func New(ps store.PositionStore, os store.OpportunityStore, as store.ActivityStore, bus events.Bus, loadCreds CredentialLoader, adapters AdapterFactory) *Engine {
	return &Engine{
		store:         ps,
		oppStore:      os,
		activityStore: as,
		bus:           bus,
		loadCreds:     loadCreds,
		adapters:      adapters,
		log:           logging.Component("execution"),
	}
}

func (e *Engine) lockFor(opportunityID string) *sync.Mutex {
	l, _ := e.locks.LoadOrStore(opportunityID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// ExecuteOpportunity runs the full pre-flight and execution protocol:
// load/validate, map venues, determine capital, construct adapters,
// compute quantity from a live ticker, submit primary then hedge (rolling
// back the primary on hedge failure), persist, publish.
func (e *Engine) ExecuteOpportunity(ctx context.Context, opp domain.Opportunity, capitalUSD decimal.Decimal, leverage decimal.Decimal) error {
	lock := e.lockFor(opp.ID)
	lock.Lock()
	defer lock.Unlock()

	e.logStep(ctx, opp.ID, "preflight", "started", "")

	if !domain.CanTransition(opp.Status, domain.OppExecuting) && opp.Status != domain.OppAllocated {
		return xerrors.New(xerrors.KindInternal, fmt.Sprintf("opportunity %s not in an executable state (%s)", opp.ID, opp.Status), nil)
	}

	longAdapter, err := e.loadAdapter(ctx, opp.LongExchange)
	if err != nil {
		e.fail(ctx, opp.ID, "load_adapter_long", err)
		return err
	}
	shortAdapter, err := e.loadAdapter(ctx, opp.ShortExchange)
	if err != nil {
		e.fail(ctx, opp.ID, "load_adapter_short", err)
		return err
	}

	ticker, err := longAdapter.GetTicker(ctx, opp.Symbol)
	if err != nil {
		e.fail(ctx, opp.ID, "fetch_ticker", err)
		return err
	}
	if ticker.Last.IsZero() {
		err := xerrors.New(xerrors.KindDataValidation, "ticker price is zero", nil)
		e.fail(ctx, opp.ID, "fetch_ticker", err)
		return err
	}
	quantity := capitalUSD.Div(ticker.Last)

	if quantity.Mul(ticker.Last).LessThan(longAdapter.GetMinOrderSize(opp.Symbol)) {
		err := xerrors.New(xerrors.KindNotionalTooSmall, "computed notional below venue minimum", nil)
		e.fail(ctx, opp.ID, "size_check", err)
		return err
	}

	e.logStep(ctx, opp.ID, "submit_primary", "started", "")
	primaryResult, err := longAdapter.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: opp.Symbol, Side: domain.SideLong, Quantity: quantity, Leverage: leverage,
	})
	if err != nil {
		e.fail(ctx, opp.ID, "submit_primary", err)
		return err
	}

	e.logStep(ctx, opp.ID, "submit_hedge", "started", "")
	hedgeResult, err := shortAdapter.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: opp.Symbol, Side: domain.SideShort, Quantity: quantity, Leverage: leverage,
	})
	if err != nil {
		e.log.Error().Err(err).Str("opportunity_id", opp.ID).Msg("hedge leg failed, rolling back primary")
		e.rollbackPrimary(ctx, longAdapter, opp.Symbol, primaryResult, quantity)
		e.fail(ctx, opp.ID, "submit_hedge", err)
		return err
	}

	pos, legs := e.buildPosition(opp, capitalUSD, leverage, primaryResult, hedgeResult, quantity, ticker.Last)

	if err := e.store.Create(ctx, &pos, legs); err != nil {
		e.log.Error().Err(err).Str("opportunity_id", opp.ID).Msg("failed to persist position after both legs filled")
		e.fail(ctx, opp.ID, "persist", err)
		return fmt.Errorf("requires manual intervention: both legs filled but not persisted: %w",
			xerrors.New(xerrors.KindRequiresManualIntervention, "position persist failed post-fill", err))
	}

	if err := e.oppStore.UpdateStatus(ctx, opp.ID, domain.OppExecuted); err != nil {
		e.log.Warn().Err(err).Msg("failed to mark opportunity executed")
	}
	e.logStep(ctx, opp.ID, "persist", "success", pos.ID)

	if err := e.bus.Publish(ctx, events.TopicPositionOpened, pos.ID, pos); err != nil {
		e.log.Warn().Err(err).Msg("failed to publish position_opened")
	}
	return nil
}

func (e *Engine) loadAdapter(ctx context.Context, venue string) (exchange.Adapter, error) {
	creds, err := e.loadCreds(ctx, venue)
	if err != nil {
		return nil, xerrors.New(xerrors.KindMissingCredentials, "load credentials for "+venue, err)
	}
	adapter, err := e.adapters(ctx, venue, creds)
	if err != nil {
		return nil, xerrors.New(xerrors.KindConnectionFailed, "construct adapter for "+venue, err)
	}
	return adapter, nil
}

// rollbackPrimary attempts to flatten the primary leg after the hedge leg
// failed to fill; a failure here escalates to manual intervention rather
// than silently leaving a naked directional position.
func (e *Engine) rollbackPrimary(ctx context.Context, adapter exchange.Adapter, symbol string, filled exchange.OrderResult, quantity decimal.Decimal) {
	_, err := adapter.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: symbol, Side: domain.SideShort, Quantity: quantity, ReduceOnly: true,
	})
	if err != nil {
		e.log.Error().Err(err).Str("order_id", filled.OrderID).Msg("rollback of primary leg failed, requires manual intervention")
	}
}

func (e *Engine) buildPosition(opp domain.Opportunity, capitalUSD, leverage decimal.Decimal, primary, hedge exchange.OrderResult, quantity, price decimal.Decimal) (domain.Position, []domain.Leg) {
	positionID := uuid.New().String()
	now := time.Now()
	pos := domain.Position{
		ID:                   positionID,
		OpportunityID:        opp.ID,
		Symbol:               opp.Symbol,
		Status:               domain.PosActive,
		HealthStatus:         domain.HealthHealthy,
		TotalCapitalDeployed: capitalUSD,
		OpenedAt:             now,
	}
	legs := []domain.Leg{
		{
			ID: uuid.New().String(), PositionID: positionID, LegType: domain.LegPrimary,
			Exchange: opp.LongExchange, Symbol: opp.Symbol, Side: domain.SideLong,
			Quantity: primary.FilledQty, EntryPrice: primary.EntryPrice, CurrentPrice: price,
			NotionalUSD: primary.FilledQty.Mul(price), Leverage: leverage,
			EntryOrderIDs: []string{primary.OrderID},
		},
		{
			ID: uuid.New().String(), PositionID: positionID, LegType: domain.LegHedge,
			Exchange: opp.ShortExchange, Symbol: opp.Symbol, Side: domain.SideShort,
			Quantity: hedge.FilledQty, EntryPrice: hedge.EntryPrice, CurrentPrice: price,
			NotionalUSD: hedge.FilledQty.Mul(price), Leverage: leverage,
			EntryOrderIDs: []string{hedge.OrderID},
		},
	}
	return pos, legs
}

func (e *Engine) logStep(ctx context.Context, opportunityID, step, outcome, detail string) {
	if e.activityStore == nil {
		return
	}
	if err := e.activityStore.RecordExecutionLog(ctx, opportunityID, step, outcome, detail); err != nil {
		e.log.Warn().Err(err).Msg("failed to record execution log step")
	}
}

func (e *Engine) fail(ctx context.Context, opportunityID, step string, err error) {
	e.logStep(ctx, opportunityID, step, "failed", err.Error())
	if updateErr := e.oppStore.UpdateStatus(ctx, opportunityID, domain.OppRejected); updateErr != nil {
		e.log.Warn().Err(updateErr).Msg("failed to mark opportunity rejected after execution failure")
	}
}
