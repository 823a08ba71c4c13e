package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/platform"
	"github.com/bamsammich/diskpack/internal/units"
)

// withCatalog wraps a command body that needs an open catalog.
func (a *app) withCatalog(fn func(ctx context.Context, cmd *cobra.Command, cat *catalog.Catalog, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cat, err := a.openCatalog(ctx)
		if err != nil {
			return err
		}
		defer cat.Close()
		return fn(ctx, cmd, cat, args)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newRequestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "request",
		Short: "Claim one task and print it",
		Long: `Claim one task exactly as a worker would and print it. The task stays busy
until it is reported with "diskpack report". Exits 1 when nothing is left
to schedule.`,
		Args: cobra.NoArgs,
		RunE: a.withCatalog(func(ctx context.Context, cmd *cobra.Command, cat *catalog.Catalog, _ []string) error {
			task, err := a.newScheduler(cat).RequestTask(ctx)
			if err != nil {
				return err
			}
			if task == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no task available")
				return &exitError{code: 1}
			}
			dir, err := cat.GetDirectory(ctx, task.DirID)
			if err != nil {
				return err
			}
			dest, err := cat.GetDestination(ctx, task.DestID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: %s (%s) -> dest %d %s\n",
				task.TaskID, dir.Path(), units.FormatBytes(dir.FilesSize), dest.DestID, dest.DiskPath)
			return nil
		}),
	}
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report TASK STATE",
		Short: "Set a task's copy state (idle, busy, finished, failed)",
		Args:  cobra.ExactArgs(2),
		RunE: a.withCatalog(func(ctx context.Context, _ *cobra.Command, cat *catalog.Catalog, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			state, err := catalog.ParseCopyState(args[1])
			if err != nil {
				return err
			}
			return a.newScheduler(cat).UpdateCopyState(ctx, id, state)
		}),
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all tasks and return every record to idle",
		Long: `Delete all tasks and return hosts, directories, files and destinations to
idle. Use after a worker was killed while holding a busy task. Stop all
workers first.`,
		Args: cobra.NoArgs,
		RunE: a.withCatalog(func(ctx context.Context, _ *cobra.Command, cat *catalog.Catalog, _ []string) error {
			return a.newScheduler(cat).Reset(ctx)
		}),
	}
}

func newActivateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Include records in or exclude them from scheduling",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "all STATE",
		Short: "Set every host, directory, file and destination",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCatalog(func(ctx context.Context, _ *cobra.Command, cat *catalog.Catalog, args []string) error {
			state, err := catalog.ParseActiveState(args[0])
			if err != nil {
				return err
			}
			return a.newScheduler(cat).ActivateAll(ctx, state)
		}),
	})

	one := []struct {
		use   string
		short string
		apply func(ctx context.Context, cat *catalog.Catalog, id int64, state catalog.ActiveState) error
	}{
		{"host", "Set one host", func(ctx context.Context, cat *catalog.Catalog, id int64, s catalog.ActiveState) error {
			return cat.ActivateHost(ctx, id, s)
		}},
		{"dir", "Set one directory", func(ctx context.Context, cat *catalog.Catalog, id int64, s catalog.ActiveState) error {
			return cat.ActivateDirectory(ctx, id, s)
		}},
		{"file", "Set one file", func(ctx context.Context, cat *catalog.Catalog, id int64, s catalog.ActiveState) error {
			return cat.ActivateFile(ctx, id, s)
		}},
		{"dest", "Set one destination", func(ctx context.Context, cat *catalog.Catalog, id int64, s catalog.ActiveState) error {
			return cat.ActivateDestination(ctx, id, s)
		}},
		{"task", "Set a task's directory and destination", func(ctx context.Context, cat *catalog.Catalog, id int64, s catalog.ActiveState) error {
			return a.newScheduler(cat).ActivateTask(ctx, id, s)
		}},
		{"dir-files", "Set every file of one directory", func(ctx context.Context, cat *catalog.Catalog, id int64, s catalog.ActiveState) error {
			n, err := cat.ActivateFilesOfDir(ctx, id, s)
			if err != nil {
				return err
			}
			a.logger.Info("directory files updated", "dir_id", id, "files", n, "active_state", s)
			return nil
		}},
	}
	for _, o := range one {
		cmd.AddCommand(&cobra.Command{
			Use:   o.use + " ID STATE",
			Short: o.short,
			Args:  cobra.ExactArgs(2),
			RunE: a.withCatalog(func(ctx context.Context, _ *cobra.Command, cat *catalog.Catalog, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				state, err := catalog.ParseActiveState(args[1])
				if err != nil {
					return err
				}
				return o.apply(ctx, cat, id, state)
			}),
		})
	}
	return cmd
}

func newRecomputeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute every directory's pending size from its idle files",
		Args:  cobra.NoArgs,
		RunE: a.withCatalog(func(ctx context.Context, _ *cobra.Command, cat *catalog.Catalog, _ []string) error {
			if err := cat.RecomputeFilesSize(ctx); err != nil {
				return err
			}
			a.logger.Info("directory sizes recomputed")
			return nil
		}),
	}
}

func newRemoveTaskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-task ID",
		Short: "Delete one task record",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCatalog(func(ctx context.Context, _ *cobra.Command, cat *catalog.Catalog, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return cat.RemoveTask(ctx, id)
		}),
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the catalog schema",
		Args:  cobra.NoArgs,
		RunE: a.withCatalog(func(_ context.Context, cmd *cobra.Command, cat *catalog.Catalog, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cat.Path())
			return nil
		}),
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var dirID int64
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record counts, tasks and destination free space",
		Args:  cobra.NoArgs,
		RunE: a.withCatalog(func(ctx context.Context, cmd *cobra.Command, cat *catalog.Catalog, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			for _, kind := range catalog.Kinds {
				n, err := cat.CountAll(ctx, kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\n", kind, n)
			}
			fmt.Fprintln(tw)

			dests, err := cat.ListDestinations(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "DEST\tBATCH\tSERIAL\tPATH\tACTIVE\tSTATE\tFREE")
			for _, d := range dests {
				free := "n/a"
				if n, err := platform.FreeSpace(ctx, d.DiskPath); err == nil {
					free = units.FormatBytes(int64(n)) //nolint:gosec // disk sizes fit in int64
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					d.DestID, d.DiskBatch, d.DiskSN, d.DiskPath, d.ActiveState, d.CopyState, free)
			}

			tasks, err := cat.ListTasks(ctx)
			if err != nil {
				return err
			}
			if len(tasks) > 0 {
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "TASK\tDIR\tDEST\tSTATE")
				for _, t := range tasks {
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", t.TaskID, t.DirID, t.DestID, t.CopyState)
				}
			}

			if dirID > 0 {
				counts, err := cat.FileCounts(ctx, dirID)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw)
				fmt.Fprintf(tw, "DIR %d\tFILES\n", dirID)
				for _, s := range []catalog.CopyState{catalog.Idle, catalog.Busy, catalog.Finished, catalog.Failed} {
					fmt.Fprintf(tw, "%s\t%d\n", s, counts[s])
				}
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().Int64Var(&dirID, "dir", 0, "also count the files of directory ID by copy state")
	return cmd
}
