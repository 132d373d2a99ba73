package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/store"
)

type capitalStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCapitalStore constructs a Postgres-backed store.CapitalStore.
func NewCapitalStore(db *sqlx.DB, timeout time.Duration) store.CapitalStore {
	return &capitalStore{db: db, timeout: timeout}
}

func (s *capitalStore) GetState(ctx context.Context) (domain.CapitalState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var state domain.CapitalState
	query := `SELECT pool_type, total_value_usd FROM capital_pools`
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return domain.CapitalState{}, fmt.Errorf("get capital state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var poolType string
		var total float64
		if err := rows.Scan(&poolType, &total); err != nil {
			return domain.CapitalState{}, fmt.Errorf("scan capital pool: %w", err)
		}
		pool := domain.CapitalPool{PoolType: domain.CapitalPoolType(poolType), TotalValueUSD: decimalFromFloat(total)}
		switch domain.CapitalPoolType(poolType) {
		case domain.PoolReserve:
			state.Reserve = pool
		case domain.PoolActive:
			state.Active = pool
		case domain.PoolPending:
			state.Pending = pool
		case domain.PoolTransit:
			state.Transit = pool
		}
	}
	state.TotalCapital = state.Sum()
	state.UpdatedAt = time.Now()
	return state, nil
}

func (s *capitalStore) SaveState(ctx context.Context, st domain.CapitalState) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin capital tx: %w", err)
	}
	defer tx.Rollback()

	pools := map[domain.CapitalPoolType]domain.CapitalPool{
		domain.PoolReserve: st.Reserve,
		domain.PoolActive:  st.Active,
		domain.PoolPending: st.Pending,
		domain.PoolTransit: st.Transit,
	}
	for poolType, pool := range pools {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO capital_pools (pool_type, total_value_usd, updated_at) VALUES ($1,$2,now())
			ON CONFLICT (pool_type) DO UPDATE SET total_value_usd = EXCLUDED.total_value_usd, updated_at = now()`,
			poolType, pool.TotalValueUSD); err != nil {
			return fmt.Errorf("save capital pool %s: %w", poolType, err)
		}
	}
	return tx.Commit()
}

func (s *capitalStore) CreateAllocation(ctx context.Context, a domain.Allocation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allocations (id, opportunity_id, position_id, symbol, venue, amount_usd, status, allocated_at, expiry)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.OpportunityID, a.PositionID, a.Symbol, a.Venue, a.AmountUSD, a.Status, a.AllocatedAt, a.Expiry)
	if err != nil {
		return fmt.Errorf("create allocation: %w", classifyPQError(err))
	}
	return nil
}

func (s *capitalStore) UpdateAllocation(ctx context.Context, a domain.Allocation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		UPDATE allocations SET status = $2, deployed_at = $3, released_at = $4 WHERE id = $1`,
		a.ID, a.Status, a.DeployedAt, a.ReleasedAt)
	if err != nil {
		return fmt.Errorf("update allocation: %w", err)
	}
	return nil
}

func (s *capitalStore) ListActiveAllocations(ctx context.Context) ([]domain.Allocation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var allocations []domain.Allocation
	query := `SELECT * FROM allocations WHERE status IN ('reserved','deployed') ORDER BY allocated_at`
	if err := s.db.SelectContext(ctx, &allocations, query); err != nil {
		return nil, fmt.Errorf("list active allocations: %w", err)
	}
	return allocations, nil
}

type riskStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRiskStore constructs a Postgres-backed store.RiskStore.
func NewRiskStore(db *sqlx.DB, timeout time.Duration) store.RiskStore {
	return &riskStore{db: db, timeout: timeout}
}

func (s *riskStore) GetLimits(ctx context.Context) (domain.RiskLimits, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var limits domain.RiskLimits
	query := `SELECT * FROM risk_limits WHERE is_active = true ORDER BY id DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &limits, query); err != nil {
		return domain.DefaultRiskLimits(), fmt.Errorf("get risk limits: %w", err)
	}
	return limits, nil
}

func (s *riskStore) SaveLimits(ctx context.Context, l domain.RiskLimits) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_limits (
			id, max_position_size_usd, max_position_size_pct, max_leverage, max_venue_exposure_pct,
			max_asset_exposure_pct, max_gross_exposure_pct, max_drawdown_pct, max_var_pct,
			stop_loss_pct, take_profit_pct, target_funding_rate_min, max_hold_periods, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			max_position_size_usd = EXCLUDED.max_position_size_usd,
			max_leverage = EXCLUDED.max_leverage,
			is_active = EXCLUDED.is_active`,
		l.ID, l.MaxPositionSizeUSD, l.MaxPositionSizePct, l.MaxLeverage, l.MaxVenueExposurePct,
		l.MaxAssetExposurePct, l.MaxGrossExposurePct, l.MaxDrawdownPct, l.MaxVaRPct,
		l.StopLossPct, l.TakeProfitPct, l.TargetFundingRateMin, l.MaxHoldPeriods, l.IsActive)
	if err != nil {
		return fmt.Errorf("save risk limits: %w", classifyPQError(err))
	}
	return nil
}

func (s *riskStore) ListSymbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var symbols []string
	if err := s.db.SelectContext(ctx, &symbols, `SELECT symbol FROM symbol_blacklist`); err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	return symbols, nil
}

func (s *riskStore) Add(ctx context.Context, entry domain.BlacklistEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbol_blacklist (symbol, reason, blacklisted_by, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (symbol) DO UPDATE SET reason = EXCLUDED.reason`,
		entry.Symbol, entry.Reason, entry.BlacklistedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("add blacklist entry: %w", classifyPQError(err))
	}
	return nil
}

func (s *riskStore) Remove(ctx context.Context, symbol string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM symbol_blacklist WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("remove blacklist entry: %w", err)
	}
	return nil
}

type activityStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewActivityStore constructs a Postgres-backed store.ActivityStore.
func NewActivityStore(db *sqlx.DB, timeout time.Duration) store.ActivityStore {
	return &activityStore{db: db, timeout: timeout}
}

func (s *activityStore) RecordActivity(ctx context.Context, kind, message string, meta map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_events (kind, message, meta, created_at) VALUES ($1,$2,$3,now())`,
		kind, message, metaJSON(meta))
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (s *activityStore) RecordExecutionLog(ctx context.Context, opportunityID string, step, outcome, detail string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (opportunity_id, step, outcome, detail, created_at) VALUES ($1,$2,$3,$4,now())`,
		opportunityID, step, outcome, detail)
	if err != nil {
		return fmt.Errorf("record execution log: %w", err)
	}
	return nil
}

type exchangeTruthStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewExchangeTruthStore constructs a Postgres-backed store.ExchangeTruthStore.
func NewExchangeTruthStore(db *sqlx.DB, timeout time.Duration) store.ExchangeTruthStore {
	return &exchangeTruthStore{db: db, timeout: timeout}
}

func (s *exchangeTruthStore) UpsertPosition(ctx context.Context, p domain.ExchangePosition) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_positions (exchange, symbol, side, size, notional_usd, entry_price, mark_price, unrealized_pnl, leverage, liquidation_price, margin_mode, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (exchange, symbol) DO UPDATE SET
			side = EXCLUDED.side, size = EXCLUDED.size, notional_usd = EXCLUDED.notional_usd,
			mark_price = EXCLUDED.mark_price, unrealized_pnl = EXCLUDED.unrealized_pnl,
			liquidation_price = EXCLUDED.liquidation_price, updated_at = EXCLUDED.updated_at`,
		p.Exchange, p.Symbol, p.Side, p.Size, p.NotionalUSD, p.EntryPrice, p.MarkPrice,
		p.UnrealizedPnL, p.Leverage, p.LiquidationPrice, p.MarginMode, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert exchange position: %w", classifyPQError(err))
	}
	return nil
}

func (s *exchangeTruthStore) UpsertOrder(ctx context.Context, o domain.ExchangeOrder) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_orders (exchange, exchange_order_id, symbol, side, quantity, price, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (exchange, exchange_order_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		o.Exchange, o.ExchangeOrderID, o.Symbol, o.Side, o.Quantity, o.Price, o.Status, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert exchange order: %w", classifyPQError(err))
	}
	return nil
}

func (s *exchangeTruthStore) ListPositions(ctx context.Context, exchange string) ([]domain.ExchangePosition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var positions []domain.ExchangePosition
	if err := s.db.SelectContext(ctx, &positions, `SELECT * FROM exchange_positions WHERE exchange = $1`, exchange); err != nil {
		return nil, fmt.Errorf("list exchange positions: %w", err)
	}
	return positions, nil
}

func (s *exchangeTruthStore) ListOrders(ctx context.Context, exchange string) ([]domain.ExchangeOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var orders []domain.ExchangeOrder
	if err := s.db.SelectContext(ctx, &orders, `SELECT * FROM exchange_orders WHERE exchange = $1`, exchange); err != nil {
		return nil, fmt.Errorf("list exchange orders: %w", err)
	}
	return orders, nil
}
