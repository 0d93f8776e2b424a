package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/warebase/ferry/pkg/loader"
	"github.com/warebase/ferry/pkg/monitor"
	"github.com/warebase/ferry/pkg/source"
	"github.com/warebase/ferry/pkg/state"
	"github.com/warebase/ferry/pkg/sync"
)

var cli struct {
	Sync     SyncCmd     `cmd:"" help:"Run one sync pass over the configured SQL Servers."`
	Status   StatusCmd   `cmd:"" help:"Probe the configured SQL Servers and report reachability."`
	Schedule ScheduleCmd `cmd:"" help:"Manage recurring sync schedules."`
	Overview OverviewCmd `cmd:"" help:"Show the 7-day sync overview and unresolved alerts."`
}

// SyncCmd runs a single sync pass, optionally scoped to one server,
// database, or table.
type SyncCmd struct {
	Config   string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
	Server   string `help:"Only sync this configured server."`
	Database string `help:"Only sync this database."`
	Table    string `help:"Only sync this table."`
}

func (c *SyncCmd) Run() error {
	config, err := sync.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	logger := config.Logging.NewLogger()

	runner := sync.NewRunner(config)
	runner.SetLogger(logger)
	defer runner.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	summary := runner.Run(ctx, sync.Scope{
		Server:   c.Server,
		Database: c.Database,
		Table:    c.Table,
	})
	if summary.FailedSyncs > 0 {
		return fmt.Errorf("sync finished %s: %d of %d tables failed",
			summary.OverallStatus(), summary.FailedSyncs, summary.Tables)
	}
	return nil
}

// StatusCmd probes every configured server and prints per-database
// reachability without syncing anything.
type StatusCmd struct {
	Config string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
}

func (c *StatusCmd) Run() error {
	config, err := sync.LoadConfig(c.Config)
	if err != nil {
		return err
	}

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "SERVER\tDATABASE\tSTATUS")

	for name, conf := range config.SQLServers {
		client := source.NewClient(source.Config{
			Server:      conf.Server,
			Port:        conf.Port,
			Username:    conf.Username,
			Password:    conf.Password,
			DialTimeout: config.Sync.DialTimeout,
		})
		statuses, err := client.CheckDatabases(ctx, conf.SkipDatabases)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\tUNREACHABLE: %v\n", name, err)
			continue
		}
		for _, st := range statuses {
			if st.Up {
				fmt.Fprintf(w, "%s\t%s\tOK\n", name, st.Database)
			} else {
				fmt.Fprintf(w, "%s\t%s\tDOWN: %s\n", name, st.Database, st.Error)
			}
		}
	}
	return nil
}

// ScheduleCmd groups schedule management subcommands.
type ScheduleCmd struct {
	Add    ScheduleAddCmd    `cmd:"" help:"Add a recurring sync schedule."`
	Cancel ScheduleCancelCmd `cmd:"" help:"Cancel a schedule by id."`
	List   ScheduleListCmd   `cmd:"" help:"List active schedules."`
}

type ScheduleAddCmd struct {
	Config   string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
	Server   string `required:"" help:"Configured server name to sync."`
	Database string `help:"Database to sync; omit to sync the whole server."`
	Every    int    `help:"Fire every N minutes." xor:"trigger" required:""`
	DailyAt  string `help:"Fire once per day at HH:MM." xor:"trigger"`
}

func (c *ScheduleAddCmd) Run() error {
	store, closeFn, err := openStore(c.Config)
	if err != nil {
		return err
	}
	defer closeFn()

	sch := state.Schedule{
		ServerName:   c.Server,
		DatabaseName: c.Database,
	}
	if c.DailyAt != "" {
		sch.Kind = state.TriggerDaily
		sch.DailyAt = c.DailyAt
	} else {
		if c.Every <= 0 {
			return fmt.Errorf("--every must be a positive number of minutes")
		}
		sch.Kind = state.TriggerInterval
		sch.IntervalMinutes = c.Every
	}

	id, err := store.AddSchedule(context.Background(), sch)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

type ScheduleCancelCmd struct {
	Config string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
	ID     string `arg:"" help:"Schedule id to cancel."`
}

func (c *ScheduleCancelCmd) Run() error {
	store, closeFn, err := openStore(c.Config)
	if err != nil {
		return err
	}
	defer closeFn()
	return store.CancelSchedule(context.Background(), c.ID)
}

type ScheduleListCmd struct {
	Config string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
}

func (c *ScheduleListCmd) Run() error {
	store, closeFn, err := openStore(c.Config)
	if err != nil {
		return err
	}
	defer closeFn()

	schedules, err := store.ListSchedules(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tSERVER\tDATABASE\tTRIGGER\tLAST FIRED")
	for _, sch := range schedules {
		trigger := fmt.Sprintf("every %dm", sch.IntervalMinutes)
		if sch.Kind == state.TriggerDaily {
			trigger = "daily at " + sch.DailyAt
		}
		lastFired := "never"
		if sch.LastFiredAt != nil {
			lastFired = sch.LastFiredAt.Format(time.RFC3339)
		}
		database := sch.DatabaseName
		if database == "" {
			database = "(all)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", sch.ID, sch.ServerName, database, trigger, lastFired)
	}
	return nil
}

// OverviewCmd prints the dashboard aggregates and any unresolved
// alerts from the warehouse monitoring tables.
type OverviewCmd struct {
	Config string `arg:"" name:"config" help:"Path to YAML configuration file" type:"existingfile"`
	Alerts int    `default:"10" help:"How many unresolved alerts to show."`
}

func (c *OverviewCmd) Run() error {
	config, err := sync.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	warehouse, err := loader.New(config.PostgreSQL.DSN())
	if err != nil {
		return err
	}
	defer warehouse.Close()

	ctx := context.Background()
	sink, err := monitor.NewPostgresSink(ctx, warehouse.DB())
	if err != nil {
		return err
	}

	o, err := sink.DashboardOverview(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Last 7 days: %d servers, %d databases, %d tables\n",
		o.TotalServers, o.TotalDatabases, o.TotalTables)
	fmt.Printf("  %d successful syncs, %d failed, %d rows migrated\n",
		o.SuccessfulSyncs, o.FailedSyncs, o.TotalRowsMigrated)
	fmt.Printf("  avg duration %.1fs, avg consistency %.1f%%\n",
		o.AvgSyncDuration, o.AvgConsistency)

	alerts, err := sink.UnresolvedAlerts(ctx, c.Alerts)
	if err != nil {
		return err
	}
	if len(alerts) > 0 {
		fmt.Printf("\nUnresolved alerts:\n")
		for _, a := range alerts {
			fmt.Printf("  [%s] %s %s.%s: %s\n", a.Severity, a.Type, a.ServerName, a.DatabaseName, a.Message)
		}
	}
	return nil
}

// openStore opens the warehouse connection from the config and wraps it
// in a state store with its tables created.
func openStore(configPath string) (*state.Store, func() error, error) {
	config, err := sync.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	warehouse, err := loader.New(config.PostgreSQL.DSN())
	if err != nil {
		return nil, nil, err
	}
	store := state.NewStore(warehouse.DB())
	if err := store.CreateTables(context.Background()); err != nil {
		warehouse.Close()
		return nil, nil, err
	}
	return store, warehouse.Close, nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("ferry"),
		kong.Description("Ferry: SQL Server to PostgreSQL warehouse sync"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
