package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/warebase/ferry/pkg/loader"
	"github.com/warebase/ferry/pkg/scheduler"
	"github.com/warebase/ferry/pkg/state"
	"github.com/warebase/ferry/pkg/sync"
)

// CLI runs the schedule daemon: it polls the warehouse schedule table
// and fires due syncs until stopped.
type CLI struct {
	Config       string        `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
	PollInterval time.Duration `default:"1m" help:"How often to check for due schedules."`
}

func (c *CLI) Run() error {
	config, err := sync.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	logger := config.Logging.NewLogger()

	warehouse, err := loader.New(config.PostgreSQL.DSN())
	if err != nil {
		return err
	}
	defer warehouse.Close()

	store := state.NewStore(warehouse.DB())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.CreateTables(ctx); err != nil {
		return err
	}

	run := func(ctx context.Context, server, database string) {
		runner := sync.NewRunner(config)
		runner.SetLogger(logger)
		defer runner.Close()
		summary := runner.Run(ctx, sync.Scope{Server: server, Database: database})
		logger.Info("scheduled sync finished",
			"server", server,
			"database", database,
			"status", summary.OverallStatus(),
			"failed_syncs", summary.FailedSyncs,
		)
	}
	sched := scheduler.New(store, run, c.PollInterval, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	logger.Info("schedule daemon started", "poll_interval", c.PollInterval)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ferryd"),
		kong.Description("Ferry schedule daemon: fires recurring warehouse syncs"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
