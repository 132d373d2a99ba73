package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPositions() []StressPosition {
	return []StressPosition{
		{PositionID: "p1", Symbol: "BTC", SizeUSD: decimal.NewFromInt(1000), LongExchange: "binance", ShortExchange: "bybit"},
		{PositionID: "p2", Symbol: "ETH", SizeUSD: decimal.NewFromInt(500), LongExchange: "okx", ShortExchange: "kraken"},
	}
}

func TestScenarios_CatalogHasTwelveEntries(t *testing.T) {
	assert.Len(t, Scenarios, 12)
}

func TestTester_RunScenario_UnknownKey(t *testing.T) {
	tester := NewTester(testPositions(), decimal.NewFromInt(10000), decimal.NewFromInt(1500))
	_, err := tester.RunScenario("does_not_exist")
	assert.Error(t, err)
}

func TestTester_RunScenario_FlashCrash(t *testing.T) {
	tester := NewTester(testPositions(), decimal.NewFromInt(10000), decimal.NewFromInt(1500))
	res, err := tester.RunScenario("flash_crash_severe")
	require.NoError(t, err)
	assert.Equal(t, 2, res.PositionsAffected)
	assert.True(t, res.ProjectedPnL.IsNegative())
	assert.Equal(t, 0, res.MarginCalls)
}

func TestTester_RunScenario_ExchangeOutage_TriggersMarginCalls(t *testing.T) {
	tester := NewTester(testPositions(), decimal.NewFromInt(10000), decimal.NewFromInt(1500))
	res, err := tester.RunScenario("exchange_outage_single")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MarginCalls)
}

func TestTester_RunAllScenarios_CoversEveryCatalogEntry(t *testing.T) {
	tester := NewTester(testPositions(), decimal.NewFromInt(10000), decimal.NewFromInt(1500))
	results := tester.RunAllScenarios()
	assert.Len(t, results, len(Scenarios))
}

func TestTester_RunCustomScenario_IgnoresZeroSizePositions(t *testing.T) {
	positions := []StressPosition{{PositionID: "p1", SizeUSD: decimal.Zero}}
	tester := NewTester(positions, decimal.NewFromInt(10000), decimal.Zero)
	scenario := Scenarios["flash_crash_mild"]
	res := tester.RunCustomScenario(scenario)
	assert.Equal(t, 0, res.PositionsAffected)
	assert.True(t, res.ProjectedPnL.IsZero())
}

func TestWorstCase_PicksLowestPnL(t *testing.T) {
	results := []StressResult{
		{ScenarioKey: "a", ProjectedPnL: decimal.NewFromInt(-100)},
		{ScenarioKey: "b", ProjectedPnL: decimal.NewFromInt(-500)},
		{ScenarioKey: "c", ProjectedPnL: decimal.NewFromInt(10)},
	}
	worst, ok := WorstCase(results)
	assert.True(t, ok)
	assert.Equal(t, "b", worst.ScenarioKey)
}

func TestWorstCase_Empty(t *testing.T) {
	_, ok := WorstCase(nil)
	assert.False(t, ok)
}
