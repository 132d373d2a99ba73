// Package postgres implements store's interfaces against Postgres via
// sqlx/lib-pq: context-timeout wrapped queries, JSONB for nested structs,
// and pq.Error 23505 mapped to a duplicate-key error so callers can treat
// a race on insert as benign.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/store"
)

// ErrDuplicate is returned when an insert collides with a unique
// constraint (pq.Error code 23505).
var ErrDuplicate = errors.New("postgres: duplicate row")

func classifyPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

type opportunityStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOpportunityStore constructs a Postgres-backed store.OpportunityStore.
func NewOpportunityStore(db *sqlx.DB, timeout time.Duration) store.OpportunityStore {
	return &opportunityStore{db: db, timeout: timeout}
}

// Upsert inserts an Opportunity or refreshes its mutable fields on
// (symbol, long_exchange, short_exchange) conflict, matching the
// Detector's idempotent-by-identity-key upsert semantics.
func (s *opportunityStore) Upsert(ctx context.Context, opp *domain.Opportunity) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO opportunities (
			id, symbol, long_exchange, short_exchange, funding_spread, funding_spread_pct,
			estimated_net_apr, uos_score, return_score, risk_score, execution_score, timing_score,
			recommended_size_usd, detected_at, expires_at, status, data_source
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (symbol, long_exchange, short_exchange) WHERE status NOT IN ('closed','expired','rejected')
		DO UPDATE SET
			funding_spread = EXCLUDED.funding_spread,
			funding_spread_pct = EXCLUDED.funding_spread_pct,
			estimated_net_apr = EXCLUDED.estimated_net_apr,
			uos_score = EXCLUDED.uos_score,
			return_score = EXCLUDED.return_score,
			risk_score = EXCLUDED.risk_score,
			execution_score = EXCLUDED.execution_score,
			timing_score = EXCLUDED.timing_score,
			recommended_size_usd = EXCLUDED.recommended_size_usd,
			expires_at = EXCLUDED.expires_at`

	_, err := s.db.ExecContext(ctx, query,
		opp.ID, opp.Symbol, opp.LongExchange, opp.ShortExchange, opp.FundingSpread, opp.FundingSpreadPct,
		opp.EstimatedNetAPR, opp.UOSScore, opp.UOSBreakdown.ReturnScore, opp.UOSBreakdown.RiskScore,
		opp.UOSBreakdown.ExecutionScore, opp.UOSBreakdown.TimingScore, opp.RecommendedSizeUSD,
		opp.DetectedAt, opp.ExpiresAt, opp.Status, opp.DataSource)
	if err != nil {
		return fmt.Errorf("upsert opportunity: %w", classifyPQError(err))
	}
	return nil
}

func (s *opportunityStore) Get(ctx context.Context, id string) (domain.Opportunity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var opp domain.Opportunity
	query := `SELECT id, symbol, long_exchange, short_exchange, funding_spread, funding_spread_pct,
		estimated_net_apr, uos_score, recommended_size_usd, detected_at, expires_at, status, data_source
		FROM opportunities WHERE id = $1`
	if err := s.db.GetContext(ctx, &opp, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, err)
		}
		return domain.Opportunity{}, fmt.Errorf("get opportunity: %w", err)
	}
	return opp, nil
}

func (s *opportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `UPDATE opportunities SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update opportunity status: %w", err)
	}
	return nil
}

func (s *opportunityStore) ListActive(ctx context.Context) ([]domain.Opportunity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var opps []domain.Opportunity
	query := `SELECT id, symbol, long_exchange, short_exchange, funding_spread, funding_spread_pct,
		estimated_net_apr, uos_score, recommended_size_usd, detected_at, expires_at, status, data_source
		FROM opportunities WHERE status NOT IN ('closed','expired','rejected') ORDER BY uos_score DESC`
	if err := s.db.SelectContext(ctx, &opps, query); err != nil {
		return nil, fmt.Errorf("list active opportunities: %w", err)
	}
	return opps, nil
}
