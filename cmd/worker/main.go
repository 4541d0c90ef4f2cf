package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/rallywatch/rallywatch/internal/setup"
	"github.com/rallywatch/rallywatch/internal/tracker"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// WorkerLogDir specifies where worker log files are stored.
const WorkerLogDir = "logs/worker_logs"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the rallywatch worker",
		Commands: []*cli.Command{
			{
				Name:  "discover",
				Usage: "Scan tournament listings and register new events",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days-back",
						Value: -1,
						Usage: "Days before today to scan (overrides config)",
					},
					&cli.IntFlag{
						Name:  "days-ahead",
						Value: -1,
						Usage: "Days after today to scan (overrides config)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runDiscover(ctx, int(c.Int("days-back")), int(c.Int("days-ahead")))
				},
			},
			{
				Name:  "poll",
				Usage: "Process due events and notify subscribers",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: -1,
						Usage: "Maximum events to process (overrides config)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runPoll(ctx, int(c.Int("limit")))
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runDiscover performs one discovery pass over the configured date window.
func runDiscover(ctx context.Context, daysBack, daysAhead int) error {
	app, err := setup.InitializeApp(ctx, WorkerLogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(ctx)

	cfg := app.Config.Worker.Discovery
	if daysBack < 0 {
		daysBack = cfg.DaysBack
	}

	if daysAhead < 0 {
		daysAhead = cfg.DaysAhead
	}

	logger := app.Logger.With(zap.String("runID", app.LogManager.GetInstanceID()))

	discovery := tracker.NewDiscovery(
		app.DB.Model().Event(), app.Source, app.Parser, cfg.MaxWorkers, logger,
	)

	today := time.Now().Truncate(24 * time.Hour)

	added, err := discovery.Run(ctx, today.AddDate(0, 0, -daysBack), today.AddDate(0, 0, daysAhead))
	if err != nil {
		return err
	}

	logger.Info("Discovery complete", zap.Int("added", len(added)))

	return nil
}

// runPoll processes one batch of due events.
func runPoll(ctx context.Context, limit int) error {
	app, err := setup.InitializeApp(ctx, WorkerLogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(ctx)

	cfg := app.Config.Worker.Poll
	if limit < 0 {
		limit = cfg.BatchSize
	}

	logger := app.Logger.With(zap.String("runID", app.LogManager.GetInstanceID()))

	poller := tracker.NewPoller(
		app.DB.Model().Event(),
		app.DB.Model().Subscription(),
		app.DB.Model().Record(),
		app.Source,
		app.Parser,
		app.Sink,
		time.Duration(cfg.IntervalMinutes)*time.Minute,
		time.Duration(cfg.RetentionHours)*time.Hour,
		logger,
	)

	changes, err := poller.ProcessBatch(ctx, limit)

	logger.Info("Poll complete", zap.Int("changes", len(changes)))

	return err
}
