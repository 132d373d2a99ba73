package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ScenarioType categorizes a stress scenario.
type ScenarioType string

const (
	ScenarioFlashCrash        ScenarioType = "flash_crash"
	ScenarioFundingFlip       ScenarioType = "funding_flip"
	ScenarioExchangeOutage    ScenarioType = "exchange_outage"
	ScenarioLiquidityCrisis   ScenarioType = "liquidity_crisis"
	ScenarioCorrelationBreak  ScenarioType = "correlation_breakdown"
	ScenarioCombined          ScenarioType = "combined"
)

// ScenarioSeverity ranks how extreme a scenario is.
type ScenarioSeverity string

const (
	SeverityMild     ScenarioSeverity = "mild"
	SeverityModerate ScenarioSeverity = "moderate"
	SeveritySevere   ScenarioSeverity = "severe"
	SeverityExtreme  ScenarioSeverity = "extreme"
)

// StressScenario parameterizes one hypothetical market event.
type StressScenario struct {
	Key                 string
	Name                string
	Type                ScenarioType
	Severity            ScenarioSeverity
	Description         string
	PriceMovePct        float64 // negative = crash
	VolatilityMultiplier float64
	SpreadChangePct     float64 // negative = funding flip against the position
	OfflineExchanges    []string
	LiquidityDrainPct   float64 // fraction of depth removed
}

// Scenarios is the fixed stress-test catalog, matching the twelve named
// scenarios exercised by the risk manager's test surface.
var Scenarios = map[string]StressScenario{
	"flash_crash_mild": {
		Key: "flash_crash_mild", Name: "Mild Flash Crash", Type: ScenarioFlashCrash, Severity: SeverityMild,
		Description: "A brief 5% market-wide drop", PriceMovePct: -5, VolatilityMultiplier: 1.5,
	},
	"flash_crash_moderate": {
		Key: "flash_crash_moderate", Name: "Moderate Flash Crash", Type: ScenarioFlashCrash, Severity: SeverityModerate,
		Description: "A 10% market-wide drop", PriceMovePct: -10, VolatilityMultiplier: 2.0,
	},
	"flash_crash_severe": {
		Key: "flash_crash_severe", Name: "Severe Flash Crash", Type: ScenarioFlashCrash, Severity: SeveritySevere,
		Description: "A 20% market-wide drop", PriceMovePct: -20, VolatilityMultiplier: 3.0,
	},
	"flash_crash_extreme": {
		Key: "flash_crash_extreme", Name: "Extreme Flash Crash", Type: ScenarioFlashCrash, Severity: SeverityExtreme,
		Description: "A 2020-style 35% market-wide drop", PriceMovePct: -35, VolatilityMultiplier: 5.0,
	},
	"funding_flip_mild": {
		Key: "funding_flip_mild", Name: "Mild Funding Flip", Type: ScenarioFundingFlip, Severity: SeverityMild,
		Description: "Funding spread narrows and partially reverses", SpreadChangePct: -0.3,
	},
	"funding_flip_moderate": {
		Key: "funding_flip_moderate", Name: "Moderate Funding Flip", Type: ScenarioFundingFlip, Severity: SeverityModerate,
		Description: "Funding spread fully reverses sign", SpreadChangePct: -1.0,
	},
	"funding_flip_severe": {
		Key: "funding_flip_severe", Name: "Severe Funding Flip", Type: ScenarioFundingFlip, Severity: SeveritySevere,
		Description: "Funding spread reverses and widens against the position", SpreadChangePct: -2.0,
	},
	"exchange_outage_single": {
		Key: "exchange_outage_single", Name: "Single Exchange Outage", Type: ScenarioExchangeOutage, Severity: SeverityModerate,
		Description: "One leg's exchange goes offline, leaving a naked directional exposure",
		OfflineExchanges: []string{"binance"},
	},
	"exchange_outage_multiple": {
		Key: "exchange_outage_multiple", Name: "Multiple Exchange Outage", Type: ScenarioExchangeOutage, Severity: SeveritySevere,
		Description: "Two exchanges go offline simultaneously", OfflineExchanges: []string{"binance", "bybit"},
	},
	"liquidity_crisis": {
		Key: "liquidity_crisis", Name: "Liquidity Crisis", Type: ScenarioLiquidityCrisis, Severity: SeveritySevere,
		Description: "Order-book depth collapses, widening effective exit slippage",
		LiquidityDrainPct: 0.80, PriceMovePct: -8,
	},
	"correlation_breakdown": {
		Key: "correlation_breakdown", Name: "Correlation Breakdown", Type: ScenarioCorrelationBreak, Severity: SeverityModerate,
		Description: "Previously correlated legs decouple, breaking the delta-neutral hedge",
		PriceMovePct: -6, VolatilityMultiplier: 2.5,
	},
	"combined_crisis": {
		Key: "combined_crisis", Name: "Combined Crisis", Type: ScenarioCombined, Severity: SeverityExtreme,
		Description: "Flash crash, funding flip, and an exchange outage simultaneously",
		PriceMovePct: -25, VolatilityMultiplier: 4.0, SpreadChangePct: -1.5, OfflineExchanges: []string{"binance"},
	},
}

// StressPosition is the minimal per-position view the stress tester needs,
// decoupled from domain.Position so this package stays independent of the
// position-manager's storage concerns.
type StressPosition struct {
	PositionID    string
	Symbol        string
	SizeUSD       decimal.Decimal
	LongExchange  string
	ShortExchange string
	CurrentSpread decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// StressResult is the projected impact of one scenario on a position set.
type StressResult struct {
	ScenarioKey          string
	ScenarioName         string
	ScenarioType         ScenarioType
	Severity             ScenarioSeverity
	PositionsAffected    int
	ProjectedPnL         decimal.Decimal
	ProjectedPnLPct      decimal.Decimal
	MaxDrawdownPct       decimal.Decimal
	MarginCalls          int
	EstimatedRecoveryHours float64
	Recommendations      []string
}

// Tester runs stress scenarios against a fixed position set and capital
// baseline, grounded on the StressTester class's scenario-dispatch
// interface.
type Tester struct {
	positions       []StressPosition
	totalCapitalUSD decimal.Decimal
	currentExposure decimal.Decimal
}

// NewTester constructs a Tester.
func NewTester(positions []StressPosition, totalCapitalUSD, currentExposure decimal.Decimal) *Tester {
	return &Tester{positions: positions, totalCapitalUSD: totalCapitalUSD, currentExposure: currentExposure}
}

// RunScenario projects the named scenario's impact, or an error if key is
// not a known scenario.
func (t *Tester) RunScenario(key string) (StressResult, error) {
	scenario, ok := Scenarios[key]
	if !ok {
		return StressResult{}, fmt.Errorf("unknown scenario: %s", key)
	}
	return t.RunCustomScenario(scenario), nil
}

// RunAllScenarios projects every catalog scenario.
func (t *Tester) RunAllScenarios() []StressResult {
	results := make([]StressResult, 0, len(Scenarios))
	for _, s := range Scenarios {
		results = append(results, t.RunCustomScenario(s))
	}
	return results
}

// RunCustomScenario projects an arbitrary (possibly ad hoc) scenario.
func (t *Tester) RunCustomScenario(s StressScenario) StressResult {
	affected := 0
	pnl := decimal.Zero
	marginCalls := 0
	offline := make(map[string]bool, len(s.OfflineExchanges))
	for _, ex := range s.OfflineExchanges {
		offline[ex] = true
	}

	for _, pos := range t.positions {
		if pos.SizeUSD.IsZero() {
			continue
		}
		affected++

		move := decimal.NewFromFloat(s.PriceMovePct / 100)
		legPnL := pos.SizeUSD.Mul(move)
		pnl = pnl.Add(legPnL)

		if s.SpreadChangePct != 0 {
			spreadDelta := decimal.NewFromFloat(s.SpreadChangePct / 100)
			pnl = pnl.Add(pos.SizeUSD.Mul(spreadDelta))
		}

		if offline[pos.LongExchange] || offline[pos.ShortExchange] {
			// the surviving leg is now a naked directional bet at the
			// scenario's price move, doubling its contribution
			pnl = pnl.Add(pos.SizeUSD.Mul(move))
			marginCalls++
		}

		if s.LiquidityDrainPct > 0 {
			slippage := pos.SizeUSD.Mul(decimal.NewFromFloat(s.LiquidityDrainPct * 0.02))
			pnl = pnl.Sub(slippage)
		}
	}

	pnlPct := decimal.Zero
	if !t.totalCapitalUSD.IsZero() {
		pnlPct = pnl.Div(t.totalCapitalUSD).Mul(decimal.NewFromInt(100))
	}

	drawdown := pnlPct.Abs()

	return StressResult{
		ScenarioKey: s.Key, ScenarioName: s.Name, ScenarioType: s.Type, Severity: s.Severity,
		PositionsAffected: affected, ProjectedPnL: pnl, ProjectedPnLPct: pnlPct,
		MaxDrawdownPct: drawdown, MarginCalls: marginCalls,
		EstimatedRecoveryHours: recoveryHours(s.Severity),
		Recommendations:        recommendations(s, marginCalls),
	}
}

func recoveryHours(sev ScenarioSeverity) float64 {
	switch sev {
	case SeverityMild:
		return 4
	case SeverityModerate:
		return 24
	case SeveritySevere:
		return 96
	case SeverityExtreme:
		return 240
	default:
		return 0
	}
}

func recommendations(s StressScenario, marginCalls int) []string {
	var recs []string
	if s.Severity == SeverityExtreme {
		recs = append(recs, "reduce gross exposure ahead of extreme-severity scenarios")
	}
	if s.Type == ScenarioExchangeOutage {
		recs = append(recs, "diversify hedge legs away from "+strings.Join(s.OfflineExchanges, ", ")+" to limit single-venue outage exposure")
	}
	if s.Type == ScenarioLiquidityCrisis {
		recs = append(recs, "reduce position size or pre-stage an exit strategy ahead of thin-liquidity symbols")
	}
	if marginCalls > 0 {
		recs = append(recs, "maintain higher margin buffers to absorb naked-leg exposure during exchange outages")
	}
	if len(recs) == 0 {
		recs = append(recs, "no action required at current exposure levels")
	}
	return recs
}

// WorstCase finds the scenario with the lowest projected PnL among
// results, matching the run_stress_test convenience function's worst-case
// summary.
func WorstCase(results []StressResult) (StressResult, bool) {
	if len(results) == 0 {
		return StressResult{}, false
	}
	worst := results[0]
	for _, r := range results[1:] {
		if r.ProjectedPnL.LessThan(worst.ProjectedPnL) {
			worst = r
		}
	}
	return worst, true
}
