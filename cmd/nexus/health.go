package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/config"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe database and cache connectivity without starting the API",
	RunE:  runHealth,
}

type healthReport struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// runHealth is a standalone connectivity probe distinct from the HTTP
// /health endpoint: it never starts the server, so it can run as a
// container readiness check before serve is even attempted.
func runHealth(cmd *cobra.Command, args []string) error {
	env := config.LoadEnv()
	report := healthReport{Database: "ok", Cache: "ok"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if env.DatabaseURL == "" {
		report.Database = "not configured"
	} else {
		db, err := sqlx.ConnectContext(ctx, "postgres", env.DatabaseURL)
		if err != nil {
			report.Database = err.Error()
		} else {
			db.Close()
		}
	}

	c := cache.New(env.RedisURL)
	if err := c.Set(ctx, "nexus:health:probe", "ok", time.Second); err != nil {
		report.Cache = err.Error()
	}
	_ = c.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.Database != "ok" && report.Database != "not configured" {
		return dbError{fmt.Errorf("database: %s", report.Database)}
	}
	if report.Cache != "ok" {
		return busError{fmt.Errorf("cache: %s", report.Cache)}
	}
	return nil
}
