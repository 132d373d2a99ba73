package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/store"
)

type positionStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPositionStore constructs a Postgres-backed store.PositionStore.
func NewPositionStore(db *sqlx.DB, timeout time.Duration) store.PositionStore {
	return &positionStore{db: db, timeout: timeout}
}

// Create writes a Position and its two Legs atomically, per the
// Execution Engine's single-transaction write requirement.
func (s *positionStore) Create(ctx context.Context, pos *domain.Position, legs []domain.Leg) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin position tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions (
			id, opportunity_id, symbol, status, health_status, total_capital_deployed,
			funding_received, funding_paid, entry_costs, exit_costs,
			realized_pnl_funding, realized_pnl_price, opened_at, position_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		pos.ID, pos.OpportunityID, pos.Symbol, pos.Status, pos.HealthStatus, pos.TotalCapitalDeployed,
		pos.FundingReceived, pos.FundingPaid, pos.EntryCosts, pos.ExitCosts,
		pos.RealizedPnLFunding, pos.RealizedPnLPrice, pos.OpenedAt, pos.PositionType)
	if err != nil {
		return fmt.Errorf("insert position: %w", classifyPQError(err))
	}

	for _, leg := range legs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO legs (
				id, position_id, leg_type, exchange, symbol, side, quantity,
				entry_price, current_price, notional_usd, leverage, unrealized_pnl,
				funding_pnl, liquidation_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			leg.ID, leg.PositionID, leg.LegType, leg.Exchange, leg.Symbol, leg.Side, leg.Quantity,
			leg.EntryPrice, leg.CurrentPrice, leg.NotionalUSD, leg.Leverage, leg.UnrealizedPnL,
			leg.FundingPnL, leg.LiquidationPrice); err != nil {
			return fmt.Errorf("insert leg: %w", classifyPQError(err))
		}
	}

	return tx.Commit()
}

func (s *positionStore) Get(ctx context.Context, id string) (domain.Position, []domain.Leg, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var pos domain.Position
	if err := s.db.GetContext(ctx, &pos, `SELECT * FROM positions WHERE id = $1`, id); err != nil {
		return domain.Position{}, nil, fmt.Errorf("get position: %w", err)
	}
	var legs []domain.Leg
	if err := s.db.SelectContext(ctx, &legs, `SELECT * FROM legs WHERE position_id = $1 ORDER BY leg_type`, id); err != nil {
		return domain.Position{}, nil, fmt.Errorf("get legs: %w", err)
	}
	return pos, legs, nil
}

func (s *positionStore) UpdateStatus(ctx context.Context, id string, status domain.PositionStatus, reason domain.ExitReason) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `UPDATE positions SET status = $2, exit_reason = $3 WHERE id = $1`, id, status, reason)
	if err != nil {
		return fmt.Errorf("update position status: %w", err)
	}
	return nil
}

func (s *positionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var positions []domain.Position
	query := `SELECT * FROM positions WHERE status IN ('pending','opening','active','closing') ORDER BY opened_at`
	if err := s.db.SelectContext(ctx, &positions, query); err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	return positions, nil
}

func (s *positionStore) UpdateLegs(ctx context.Context, legs []domain.Leg) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin legs tx: %w", err)
	}
	defer tx.Rollback()
	for _, leg := range legs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE legs SET current_price = $2, unrealized_pnl = $3, funding_pnl = $4, liquidation_price = $5
			WHERE id = $1`, leg.ID, leg.CurrentPrice, leg.UnrealizedPnL, leg.FundingPnL, leg.LiquidationPrice); err != nil {
			return fmt.Errorf("update leg: %w", err)
		}
	}
	return tx.Commit()
}

func (s *positionStore) RecordFundingPayment(ctx context.Context, p domain.FundingPayment) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO funding_payments (id, position_id, leg_id, exchange, symbol, funding_rate, payment_amount, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.PositionID, p.LegID, p.Exchange, p.Symbol, p.FundingRate, p.PaymentAmount, p.Timestamp)
	if err != nil {
		return fmt.Errorf("record funding payment: %w", classifyPQError(err))
	}
	return nil
}

func (s *positionStore) AppendInteraction(ctx context.Context, entry domain.InteractionLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_interaction_log (id, position_id, timestamp, type, worker, decision, narrative)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.PositionID, entry.Timestamp, entry.Type, entry.Worker, entry.Decision, entry.Narrative)
	if err != nil {
		return fmt.Errorf("append interaction log: %w", err)
	}
	return nil
}
