package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/nexus/internal/domain"
)

func testExitConfig() ExitConfig {
	return ExitConfig{
		StopLossPct:          decimal.NewFromFloat(0.05),
		TakeProfitPct:        decimal.NewFromFloat(0.15),
		TargetFundingRateMin: decimal.NewFromFloat(0.0001),
		MaxHoldPeriods:       21,
	}
}

func TestEvaluateExit_CriticalHealthWins(t *testing.T) {
	pos := domain.Position{HealthStatus: domain.HealthCritical}
	res := EvaluateExit(pos, nil, decimal.NewFromFloat(0.0005), testExitConfig(), time.Now())
	assert.True(t, res.ShouldExit)
	assert.Equal(t, domain.ExitCriticalHealth, res.Reason)
}

func TestEvaluateExit_StopLoss(t *testing.T) {
	pos := domain.Position{
		HealthStatus:         domain.HealthHealthy,
		TotalCapitalDeployed: decimal.NewFromInt(1000),
		RealizedPnLFunding:   decimal.NewFromInt(-60),
	}
	res := EvaluateExit(pos, nil, decimal.NewFromFloat(0.0005), testExitConfig(), time.Now())
	assert.True(t, res.ShouldExit)
	assert.Equal(t, domain.ExitStopLoss, res.Reason)
}

func TestEvaluateExit_FundingBelowThreshold(t *testing.T) {
	pos := domain.Position{
		HealthStatus:         domain.HealthHealthy,
		TotalCapitalDeployed: decimal.NewFromInt(1000),
	}
	res := EvaluateExit(pos, nil, decimal.NewFromFloat(0.00001), testExitConfig(), time.Now())
	assert.True(t, res.ShouldExit)
	assert.Equal(t, domain.ExitFundingBelowThreshold, res.Reason)
}

func TestEvaluateExit_TakeProfit(t *testing.T) {
	pos := domain.Position{
		HealthStatus:         domain.HealthHealthy,
		TotalCapitalDeployed: decimal.NewFromInt(1000),
		RealizedPnLFunding:   decimal.NewFromInt(200),
	}
	res := EvaluateExit(pos, nil, decimal.NewFromFloat(0.0005), testExitConfig(), time.Now())
	assert.True(t, res.ShouldExit)
	assert.Equal(t, domain.ExitTakeProfit, res.Reason)
}

func TestEvaluateExit_MaxHoldPeriods(t *testing.T) {
	pos := domain.Position{
		HealthStatus:            domain.HealthHealthy,
		TotalCapitalDeployed:    decimal.NewFromInt(1000),
		FundingPeriodsCollected: 25,
	}
	res := EvaluateExit(pos, nil, decimal.NewFromFloat(0.0005), testExitConfig(), time.Now())
	assert.True(t, res.ShouldExit)
	assert.Equal(t, domain.ExitMaxHoldTime, res.Reason)
}

func TestEvaluateExit_NoTrigger(t *testing.T) {
	pos := domain.Position{
		HealthStatus:            domain.HealthHealthy,
		TotalCapitalDeployed:    decimal.NewFromInt(1000),
		FundingPeriodsCollected: 3,
	}
	res := EvaluateExit(pos, nil, decimal.NewFromFloat(0.0005), testExitConfig(), time.Now())
	assert.False(t, res.ShouldExit)
}

func TestEvaluateHealth_Healthy(t *testing.T) {
	legs := []domain.Leg{
		{Side: domain.SideLong, Quantity: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(100), NotionalUSD: decimal.NewFromInt(100)},
		{Side: domain.SideShort, Quantity: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(100), NotionalUSD: decimal.NewFromInt(100)},
	}
	assert.Equal(t, domain.HealthHealthy, EvaluateHealth(legs))
}

func TestEvaluateHealth_CriticalOnDelta(t *testing.T) {
	legs := []domain.Leg{
		{Side: domain.SideLong, Quantity: decimal.NewFromInt(10), CurrentPrice: decimal.NewFromInt(100), NotionalUSD: decimal.NewFromInt(1000)},
		{Side: domain.SideShort, Quantity: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(100), NotionalUSD: decimal.NewFromInt(100)},
	}
	assert.Equal(t, domain.HealthCritical, EvaluateHealth(legs))
}

func TestEvaluateHealth_CriticalOnLiquidationDistance(t *testing.T) {
	liqPrice := decimal.NewFromInt(98)
	legs := []domain.Leg{
		{Side: domain.SideLong, Quantity: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(100), NotionalUSD: decimal.NewFromInt(100), LiquidationPrice: &liqPrice},
		{Side: domain.SideShort, Quantity: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(100), NotionalUSD: decimal.NewFromInt(100)},
	}
	assert.Equal(t, domain.HealthCritical, EvaluateHealth(legs))
}
