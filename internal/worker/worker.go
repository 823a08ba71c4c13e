// Package worker executes copy tasks: it asks the scheduler for work, copies
// every pending file of the assigned directory onto the assigned destination
// and reports the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/event"
	"github.com/bamsammich/diskpack/internal/stats"
)

// DefaultPollInterval is the pause between two polls of the scheduler.
const DefaultPollInterval = 10 * time.Second

// ErrRootMissing aborts a pass when the source directory or the destination
// disk is not there. The task goes back to idle so it is retried once the
// path reappears.
var ErrRootMissing = errors.New("root directory missing")

// TaskSource hands out tasks and receives their outcome.
type TaskSource interface {
	RequestTask(ctx context.Context) (*catalog.Task, error)
	UpdateCopyState(ctx context.Context, taskID int64, state catalog.CopyState) error
}

// Config controls a Worker.
type Config struct {
	Events       chan<- event.Event // optional, never blocks the worker
	Stats        *stats.Collector   // optional
	Logger       *slog.Logger       // slog.Default when nil
	LogDir       string             // per-destination copy logs; empty disables them
	PollInterval time.Duration
	BWLimit      int64 // bytes/sec, 0 = unlimited
	Verify       bool  // compare BLAKE3 digests before committing each file
}

// Worker copies one task at a time.
type Worker struct {
	cat     *catalog.Catalog
	tasks   TaskSource
	limiter *rate.Limiter
	copyLog *copyLog
	log     *slog.Logger
	cfg     Config
}

// New returns a Worker reading file records from cat and tasks from tasks.
func New(cat *catalog.Catalog, tasks TaskSource, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	w := &Worker{
		cat:   cat,
		tasks: tasks,
		log:   cfg.Logger,
		cfg:   cfg,
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	if cfg.BWLimit > 0 {
		w.limiter = NewBWLimiter(cfg.BWLimit)
	}
	if cfg.LogDir != "" {
		w.copyLog = newCopyLog(cfg.LogDir)
	}
	return w
}

// Stats returns the worker's counters.
func (w *Worker) Stats() *stats.Collector {
	return w.cfg.Stats
}

// Run polls for tasks until ctx is cancelled. Errors never stop the loop;
// they are logged and the next poll happens after PollInterval.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce performs a single poll. It reports whether a task was executed.
// The task outcome is always reported to the scheduler, with a context that
// survives cancellation of ctx.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.tasks.RequestTask(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		w.log.Info("no task available, idle")
		w.emit(event.Event{Type: event.PollIdle})
		return false, nil
	}

	w.cfg.Stats.Add(stats.TasksClaimed, 1)
	w.emit(event.Event{Type: event.TaskClaimed, TaskID: task.TaskID, DirID: task.DirID, DestID: task.DestID})
	w.log.Info("task claimed", "task_id", task.TaskID, "dir_id", task.DirID, "dest_id", task.DestID)

	state, execErr := w.ExecuteTask(ctx, task)
	if execErr != nil {
		w.cfg.Stats.Add(stats.TasksAborted, 1)
		w.emit(event.Event{Type: event.TaskAborted, TaskID: task.TaskID, DirID: task.DirID,
			DestID: task.DestID, Error: execErr})
		w.log.Warn("task aborted", "task_id", task.TaskID, "state", state, "error", execErr)
	} else {
		w.cfg.Stats.Add(stats.TasksFinished, 1)
		w.emit(event.Event{Type: event.TaskFinished, TaskID: task.TaskID, DirID: task.DirID, DestID: task.DestID})
		w.log.Info("task finished", "task_id", task.TaskID)
	}

	if err := w.tasks.UpdateCopyState(context.WithoutCancel(ctx), task.TaskID, state); err != nil {
		return true, fmt.Errorf("report task %d as %s: %w", task.TaskID, state, err)
	}
	return true, nil
}

// ExecuteTask copies every idle, active file of the task's directory. It
// returns Finished when the directory pass completed; individual file
// failures are recorded on the files and do not fail the pass. Any error
// aborts the pass and comes back with Idle so the task can be retried.
func (w *Worker) ExecuteTask(ctx context.Context, task *catalog.Task) (catalog.CopyState, error) {
	dir, err := w.cat.GetDirectory(ctx, task.DirID)
	if err != nil {
		return catalog.Idle, err
	}
	dest, err := w.cat.GetDestination(ctx, task.DestID)
	if err != nil {
		return catalog.Idle, err
	}

	srcDir := dir.Path()
	dstDir := filepath.Join(dest.DiskPath, dir.DirName)

	// Only the directory below the disk is created: a missing DiskPath means
	// an unmounted disk and must not be recreated on the root filesystem.
	if err := requireDir(dest.DiskPath); err != nil {
		return catalog.Idle, err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return catalog.Idle, fmt.Errorf("create destination dir %s: %w", dstDir, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return catalog.Idle, err
		}
		if err := requireDir(srcDir); err != nil {
			return catalog.Idle, err
		}
		if err := requireDir(dstDir); err != nil {
			return catalog.Idle, err
		}

		f, err := w.cat.NextIdleFile(ctx, dir.DirID)
		if err != nil {
			return catalog.Idle, err
		}
		if f == nil {
			return catalog.Finished, nil
		}

		if err := w.copyOne(ctx, dir, dest, f, dstDir); err != nil {
			return catalog.Idle, err
		}
	}
}

// copyOne copies a single file and records the outcome. Only catalog errors
// are returned; copy failures are stored on the file.
func (w *Worker) copyOne(ctx context.Context, dir *catalog.Directory, dest *catalog.Destination,
	f *catalog.File, dstDir string) error {
	src := f.Path()
	dst := destinationPath(dir, f, dstDir)

	w.emit(event.Event{Type: event.FileStarted, Path: src, FileID: f.FileID, DestID: dest.DestID, Size: f.FileSize})

	n, copyErr := w.copyFile(ctx, src, dst)
	if copyErr != nil {
		// Partial output never stays behind.
		_ = os.Remove(dst)
		w.cfg.Stats.Add(stats.FilesFailed, 1)
		w.emit(event.Event{Type: event.FileFailed, Path: src, FileID: f.FileID, DestID: dest.DestID, Error: copyErr})
		w.log.Warn("copy failed", "file_id", f.FileID, "src", src, "dst", dst, "error", copyErr)

		// A cancelled copy is not the file's fault.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.cat.SetFileCopyState(ctx, f.FileID, dest.DestID, catalog.Failed, copyErr.Error())
	}

	if err := w.cat.SetFileCopyState(ctx, f.FileID, dest.DestID, catalog.Finished, ""); err != nil {
		return err
	}
	w.cfg.Stats.Add(stats.FilesCopied, 1)
	w.cfg.Stats.Add(stats.BytesCopied, n)
	w.emit(event.Event{Type: event.FileCompleted, Path: src, FileID: f.FileID, DestID: dest.DestID, Size: n})
	w.log.Debug("copied", "file_id", f.FileID, "src", src, "dst", dst, "bytes", n)

	if w.copyLog != nil {
		if err := w.copyLog.Append(dest.DestID, dir.DirName, f, src); err != nil {
			w.log.Warn("copy log", "dest_id", dest.DestID, "error", err)
		}
	}
	return nil
}

// destinationPath keeps the file's position below the source directory.
// Files recorded outside it are placed directly in dstDir.
func destinationPath(dir *catalog.Directory, f *catalog.File, dstDir string) string {
	rel, err := filepath.Rel(dir.Path(), f.Location)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = "."
	}
	return filepath.Join(dstDir, rel, f.BaseName())
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrRootMissing)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %w", path, ErrRootMissing)
	}
	return nil
}

func (w *Worker) emit(e event.Event) {
	if w.cfg.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case w.cfg.Events <- e:
	default:
	}
}
