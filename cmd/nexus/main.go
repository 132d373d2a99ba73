package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "nexus"

// configError, dbError, and busError let every subcommand signal which
// exit code applies without main having to inspect error
// strings.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error  { return e.err }

type dbError struct{ err error }

func (e dbError) Error() string { return e.err.Error() }
func (e dbError) Unwrap() error  { return e.err }

type busError struct{ err error }

func (e busError) Error() string { return e.err.Error() }
func (e busError) Unwrap() error  { return e.err }

var rootCmd = &cobra.Command{
	Use:     appName,
	Short:   "Cross-exchange funding-rate arbitrage platform",
	Version: "0.1.0",
	Long: `nexus detects and trades delta-neutral funding-rate arbitrage across
perpetual futures exchanges: it aggregates funding rates, scores
cross-exchange spreads, executes hedged positions, and manages capital
and risk across the whole book.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var cfgErr configError
		var dErr dbError
		var bErr busError
		switch {
		case errors.As(err, &cfgErr):
			fmt.Fprintln(os.Stderr, "configuration error:", err)
			os.Exit(1)
		case errors.As(err, &dErr):
			fmt.Fprintln(os.Stderr, "database error:", err)
			os.Exit(2)
		case errors.As(err, &bErr):
			fmt.Fprintln(os.Stderr, "cache/bus error:", err)
			os.Exit(3)
		default:
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
}
