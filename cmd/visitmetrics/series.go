package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/labstack/gommon/log"

	"github.com/eringen/visitmetrics"
	"github.com/eringen/visitmetrics/analytics"
)

// SeriesCommand prints the daily visit series straight from the event store.
type SeriesCommand struct {
	Days int    `long:"days" description:"Number of days, clamped to 1..120" default:"30"`
	DB   string `long:"db" description:"Override the SQLite database path (ANALYTICS_DATABASE_PATH)"`

	globals *GlobalFlags
}

// Execute implements the go-flags Commander interface.
func (c *SeriesCommand) Execute(args []string) error {
	cfg := visitmetrics.ConfigFromEnv()
	ctx := context.Background()

	var (
		store analytics.EventStore
		err   error
	)
	switch {
	case c.DB != "":
		store, err = analytics.NewSQLiteStore(c.DB)
	case cfg.AnalyticsDriver == visitmetrics.DriverClickHouse:
		store, err = analytics.NewClickHouseStore(ctx, cfg.ClickHouse)
	default:
		store, err = analytics.NewSQLiteStore(visitmetrics.EnvOr("ANALYTICS_DATABASE_PATH", "data/analytics.db"))
	}
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()

	logger := log.New("series")
	if c.globals.Verbose {
		logger.SetLevel(log.DEBUG)
	}

	series := analytics.NewAggregator(store, logger).Series(ctx, c.Days)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(series)
}
