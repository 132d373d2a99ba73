package detector

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/nexus/internal/domain"
)

func spreadWithAPR(apr, spreadPct float64) domain.Spread {
	return domain.Spread{
		Symbol:        "BTC",
		LongRate:      decimal.NewFromFloat(0.0001),
		ShortRate:     decimal.NewFromFloat(0.0003),
		SpreadPct:     decimal.NewFromFloat(spreadPct),
		AnnualizedAPR: decimal.NewFromFloat(apr),
	}
}

func TestScore_ReturnScoreBands(t *testing.T) {
	cases := []struct {
		apr   float64
		want  float64
	}{
		{60, 30},
		{35, 24},
		{20, 18},
		{10, 12},
		{5, 6},
		{1, 0},
	}
	for _, c := range cases {
		got := Score(spreadWithAPR(c.apr, 0.1), AllocationContext{MaxConcurrentCoins: 5, ConcurrentCoins: 0})
		assert.Equal(t, c.want, got.ReturnScore, "apr=%v", c.apr)
	}
}

func TestScore_RiskScoreBands(t *testing.T) {
	cases := []struct {
		pct  float64
		want float64
	}{
		{0.02, 30},
		{0.1, 24},
		{0.2, 18},
		{0.5, 10},
		{1.0, 4},
	}
	for _, c := range cases {
		got := Score(spreadWithAPR(10, c.pct), AllocationContext{MaxConcurrentCoins: 5, ConcurrentCoins: 0})
		assert.Equal(t, c.want, got.RiskScore, "pct=%v", c.pct)
	}
}

func TestScore_ExecutionScore_NoAllocatorContext(t *testing.T) {
	got := Score(spreadWithAPR(10, 0.1), AllocationContext{})
	assert.Equal(t, 12.5, got.ExecutionScore)
}

func TestScore_ExecutionScore_FullSlack(t *testing.T) {
	got := Score(spreadWithAPR(10, 0.1), AllocationContext{MaxConcurrentCoins: 4, ConcurrentCoins: 0})
	assert.Equal(t, 25.0, got.ExecutionScore)
}

func TestScore_ExecutionScore_NoSlack(t *testing.T) {
	got := Score(spreadWithAPR(10, 0.1), AllocationContext{MaxConcurrentCoins: 4, ConcurrentCoins: 4})
	assert.Equal(t, 0.0, got.ExecutionScore)
}

func TestScore_TimingScore_SignAgreement(t *testing.T) {
	s := spreadWithAPR(10, 0.1)
	s.LongRate = decimal.NewFromFloat(0.0001)
	s.ShortRate = decimal.NewFromFloat(0.0003)
	got := Score(s, AllocationContext{MaxConcurrentCoins: 5})
	assert.Equal(t, 15.0, got.TimingScore)
}

func TestScore_TimingScore_SignFlip(t *testing.T) {
	s := spreadWithAPR(10, 0.1)
	s.LongRate = decimal.NewFromFloat(-0.0001)
	s.ShortRate = decimal.NewFromFloat(0.0003)
	got := Score(s, AllocationContext{MaxConcurrentCoins: 5})
	assert.Equal(t, 7.0, got.TimingScore)
}

func TestScore_TotalAndQualityLabel(t *testing.T) {
	breakdown := Score(spreadWithAPR(60, 0.02), AllocationContext{MaxConcurrentCoins: 4, ConcurrentCoins: 0})
	assert.InDelta(t, 30+30+25+15, breakdown.Total(), 0.001)
	assert.Equal(t, "exceptional", breakdown.QualityLabel())
}
