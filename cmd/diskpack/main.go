package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/config"
	"github.com/bamsammich/diskpack/internal/logging"
	"github.com/bamsammich/diskpack/internal/scheduler"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries the global flags and the state built from them before any
// subcommand runs.
type app struct {
	stderr io.Writer

	configPath string
	dbPath     string
	logFile    string
	reserve    int64
	verbose    bool
	quiet      bool

	settings  config.Settings
	logger    *slog.Logger
	logCloser io.Closer
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "diskpack",
		Short: "Pack catalogued directories onto removable disks",
		Long: `diskpack copies whole directories from source hosts onto a pool of
destination disks. Progress lives in a SQLite catalog, so workers can be
stopped and restarted at any time without copying a file twice.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.dbPath, "db", "", "catalog database path (default: $XDG_DATA_HOME/diskpack/catalog.db)")
	pf.StringVar(&a.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/diskpack/config.toml)")
	pf.StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")
	pf.Var(sizeValue{&a.reserve}, "reserve", "space kept free on every destination (e.g. 1G)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "only log warnings and errors")

	root.AddCommand(
		newRunCmd(a),
		newRequestCmd(a),
		newReportCmd(a),
		newResetCmd(a),
		newActivateCmd(a),
		newRecomputeCmd(a),
		newRemoveTaskCmd(a),
		newStatusCmd(a),
		newInitCmd(a),
		newLoadCmd(a),
		newScanCmd(a),
		newDocsCmd(),
	)
	return root
}

// setup loads the config and installs the logger. Flags set on the command
// line win over the config file and the environment.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	s, err := cfg.Resolve()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		s.CatalogPath = a.dbPath
	}
	if flags.Changed("log") {
		s.LogFile = a.logFile
	}
	if flags.Changed("reserve") {
		s.Reserve = a.reserve
	}
	a.settings = s

	a.logger, a.logCloser = logging.New(logging.Options{
		Stderr:     a.stderr,
		Verbose:    a.verbose,
		Quiet:      a.quiet,
		File:       s.LogFile,
		MaxSizeMB:  s.MaxSizeMB,
		MaxBackups: s.MaxBackups,
		MaxAgeDays: s.MaxAgeDays,
		Compress:   s.Compress,
	})
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := catalog.Open(ctx, a.settings.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("catalog opened", "path", cat.Path())
	return cat, nil
}

func (a *app) newScheduler(cat *catalog.Catalog) *scheduler.Scheduler {
	return scheduler.New(cat,
		scheduler.WithReserve(a.settings.Reserve),
		scheduler.WithLogger(a.logger))
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
