package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/risk"
)

var (
	flagStressScenario string
	flagStressAll      bool
)

func init() {
	stressCmd.Flags().StringVar(&flagStressScenario, "scenario", "", "scenario key to run (see risk.Scenarios); ignored if --all")
	stressCmd.Flags().BoolVar(&flagStressAll, "all", false, "run every catalog scenario against the live open book")
	rootCmd.AddCommand(stressCmd)
}

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Project stress-scenario impact against the currently open position book",
	RunE:  runStress,
}

func runStress(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys, err := buildSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.close()

	positions, err := sys.posStore.ListOpen(ctx)
	if err != nil {
		return dbError{fmt.Errorf("list open positions: %w", err)}
	}

	stressPositions := make([]risk.StressPosition, 0, len(positions))
	for _, pos := range positions {
		_, legs, err := sys.posStore.Get(ctx, pos.ID)
		if err != nil {
			return dbError{fmt.Errorf("load legs for %s: %w", pos.ID, err)}
		}
		sp := risk.StressPosition{
			PositionID:    pos.ID,
			Symbol:        pos.Symbol,
			SizeUSD:       pos.TotalCapitalDeployed,
			UnrealizedPnL: pos.NetFundingPnL().Add(pos.RealizedPnLPrice),
		}
		for _, leg := range legs {
			switch leg.Side {
			case domain.SideShort:
				sp.ShortExchange = leg.Exchange
			default:
				sp.LongExchange = leg.Exchange
			}
		}
		stressPositions = append(stressPositions, sp)
	}

	state := sys.allocator.State()
	tester := risk.NewTester(stressPositions, state.TotalCapital, state.Active.TotalValueUSD.Add(state.Pending.TotalValueUSD))

	var results []risk.StressResult
	switch {
	case flagStressAll || flagStressScenario == "":
		results = tester.RunAllScenarios()
	default:
		result, err := tester.RunScenario(flagStressScenario)
		if err != nil {
			return configError{err}
		}
		results = []risk.StressResult{result}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
