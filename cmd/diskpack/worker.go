package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/diskpack/internal/event"
	"github.com/bamsammich/diskpack/internal/stats"
	"github.com/bamsammich/diskpack/internal/units"
	"github.com/bamsammich/diskpack/internal/worker"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		once    bool
		verify  bool
		poll    time.Duration
		bwLimit int64
		logDir  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim tasks and copy them until interrupted",
		Long: `Run a copy worker. The worker asks the scheduler for a task, copies every
pending file of the task's directory onto its destination disk, reports the
outcome and polls again. Several workers may share one catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.settings
			if !cmd.Flags().Changed("verify") {
				verify = s.Verify
			}
			if !cmd.Flags().Changed("poll") {
				poll = s.PollInterval
			}
			if !cmd.Flags().Changed("log-dir") {
				logDir = s.LogDir
			}
			if !cmd.Flags().Changed("bwlimit") {
				bwLimit = s.BWLimit
			}

			ctx := cmd.Context()
			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer cat.Close()

			events := make(chan event.Event, 256)
			done := make(chan struct{})
			go func() {
				defer close(done)
				logEvents(a.logger, events)
			}()

			collector := stats.NewCollector()
			w := worker.New(cat, a.newScheduler(cat), worker.Config{
				Events:       events,
				Stats:        collector,
				Logger:       a.logger,
				LogDir:       logDir,
				PollInterval: poll,
				BWLimit:      bwLimit,
				Verify:       verify,
			})

			a.logger.Info("worker started",
				"catalog", cat.Path(), "poll", poll, "verify", verify, "bwlimit", bwLimit)
			if once {
				_, err = w.RunOnce(ctx)
			} else {
				err = w.Run(ctx)
			}
			close(events)
			<-done

			if !a.quiet {
				snap := collector.Snapshot()
				fmt.Fprintf(cmd.ErrOrStderr(), "diskpack: %s in %s (%s)\n",
					snap, units.FormatDuration(snap.Elapsed), units.FormatRate(snap.Throughput()))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "poll once and exit")
	cmd.Flags().DurationVar(&poll, "poll", worker.DefaultPollInterval, "pause between polls")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify each copy with BLAKE3 before committing it")
	cmd.Flags().Var(sizeValue{&bwLimit}, "bwlimit", "bandwidth limit per worker (e.g. 100M)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for per-destination copy logs")
	return cmd
}

// logEvents writes every worker event as a structured record until events
// is closed.
func logEvents(logger *slog.Logger, events <-chan event.Event) {
	for ev := range events {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "diskpack.event", ev.Attrs()...)
	}
}
