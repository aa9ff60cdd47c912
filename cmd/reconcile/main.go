// Command reconcile runs one maintenance pass against the configured stores
// and prints the reports as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"goreels/internal/di"
	"goreels/internal/logging"
)

func main() {
	sweep := flag.Bool("sweep", true, "validate every active item against the blob store")
	recount := flag.Bool("recount", false, "recompute category counters from active items")
	cleanup := flag.Bool("cleanup", false, "retry persisted cascade cleanups")
	cleanupLimit := flag.Int("cleanup-limit", 500, "maximum cleanup tasks to retry")
	flag.Parse()

	cfg := di.ProvideConfig()
	app, closeApp, err := di.InitializeApp(cfg)
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer closeApp()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	failed := false

	if *sweep {
		rep, err := app.Pipeline.Sweep(ctx)
		if err != nil {
			logging.Error().Err(err).Msg("sweep stopped early")
			failed = true
		}
		_ = out.Encode(map[string]any{"sweep": rep})
	}
	if *recount {
		rep, err := app.Ledger.Recount(ctx)
		if err != nil {
			logging.Error().Err(err).Msg("recount failed")
			failed = true
		}
		_ = out.Encode(map[string]any{"recount": rep})
	}
	if *cleanup {
		rep, err := app.Ledger.RetryCleanups(ctx, *cleanupLimit)
		if err != nil {
			logging.Error().Err(err).Msg("cleanup failed")
			failed = true
		}
		_ = out.Encode(map[string]any{"cleanup": rep})
	}

	if failed {
		closeApp()
		os.Exit(1)
	}
}
