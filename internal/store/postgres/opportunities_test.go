package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nexus/internal/domain"
)

func newMockOpportunityStore(t *testing.T) (*opportunityStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return &opportunityStore{db: sqlxDB, timeout: 5 * time.Second}, mock
}

func sampleOpportunity() *domain.Opportunity {
	return &domain.Opportunity{
		ID:                 "opp-1",
		Symbol:             "BTC",
		LongExchange:       "binance",
		ShortExchange:      "bybit",
		FundingSpread:      decimal.NewFromFloat(0.0002),
		FundingSpreadPct:   decimal.NewFromFloat(0.02),
		EstimatedNetAPR:    decimal.NewFromFloat(15.5),
		UOSScore:           72,
		RecommendedSizeUSD: decimal.NewFromInt(500),
		DetectedAt:         time.Now(),
		ExpiresAt:          time.Now().Add(30 * time.Minute),
		Status:             domain.OppDetected,
		DataSource:         domain.SourceExchangeAPI,
	}
}

func TestOpportunityStore_Upsert(t *testing.T) {
	store, mock := newMockOpportunityStore(t)
	opp := sampleOpportunity()

	mock.ExpectExec("INSERT INTO opportunities").
		WithArgs(opp.ID, opp.Symbol, opp.LongExchange, opp.ShortExchange, opp.FundingSpread, opp.FundingSpreadPct,
			opp.EstimatedNetAPR, opp.UOSScore, opp.UOSBreakdown.ReturnScore, opp.UOSBreakdown.RiskScore,
			opp.UOSBreakdown.ExecutionScore, opp.UOSBreakdown.TimingScore, opp.RecommendedSizeUSD,
			opp.DetectedAt, opp.ExpiresAt, opp.Status, opp.DataSource).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Upsert(context.Background(), opp)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityStore_Upsert_Duplicate(t *testing.T) {
	store, mock := newMockOpportunityStore(t)
	opp := sampleOpportunity()

	mock.ExpectExec("INSERT INTO opportunities").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := store.Upsert(context.Background(), opp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityStore_Get(t *testing.T) {
	store, mock := newMockOpportunityStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "symbol", "long_exchange", "short_exchange", "funding_spread", "funding_spread_pct",
		"estimated_net_apr", "uos_score", "recommended_size_usd", "detected_at", "expires_at", "status", "data_source",
	}).AddRow("opp-1", "BTC", "binance", "bybit", "0.0002", "0.02", "15.5", 72.0, "500", now, now.Add(30*time.Minute), domain.OppDetected, domain.SourceExchangeAPI)

	mock.ExpectQuery("SELECT (.+) FROM opportunities WHERE id = \\$1").
		WithArgs("opp-1").
		WillReturnRows(rows)

	opp, err := store.Get(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, "BTC", opp.Symbol)
	assert.Equal(t, domain.OppDetected, opp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityStore_Get_NotFound(t *testing.T) {
	store, mock := newMockOpportunityStore(t)

	mock.ExpectQuery("SELECT (.+) FROM opportunities WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityStore_ListActive(t *testing.T) {
	store, mock := newMockOpportunityStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "symbol", "long_exchange", "short_exchange", "funding_spread", "funding_spread_pct",
		"estimated_net_apr", "uos_score", "recommended_size_usd", "detected_at", "expires_at", "status", "data_source",
	}).
		AddRow("opp-1", "BTC", "binance", "bybit", "0.0002", "0.02", "15.5", 72.0, "500", now, now.Add(30*time.Minute), domain.OppScored, domain.SourceExchangeAPI).
		AddRow("opp-2", "ETH", "okx", "kraken", "0.0003", "0.03", "20.0", 65.0, "400", now, now.Add(30*time.Minute), domain.OppDetected, domain.SourceExchangeAPI)

	mock.ExpectQuery("SELECT (.+) FROM opportunities WHERE status NOT IN").
		WillReturnRows(rows)

	opps, err := store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, opps, 2)
	assert.Equal(t, "opp-1", opps[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityStore_UpdateStatus(t *testing.T) {
	store, mock := newMockOpportunityStore(t)

	mock.ExpectExec("UPDATE opportunities SET status").
		WithArgs("opp-1", domain.OppExecuted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateStatus(context.Background(), "opp-1", domain.OppExecuted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
