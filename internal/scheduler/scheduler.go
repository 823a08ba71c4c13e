// Package scheduler allocates directories to destination disks and keeps the
// copy state of tasks, directories, hosts and destinations consistent.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/platform"
)

// DefaultReserve is the free space kept back on every destination.
const DefaultReserve = 1 << 30 // 1 GiB

// SpaceProber reports the live free bytes of the filesystem holding path.
type SpaceProber func(ctx context.Context, path string) (uint64, error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithReserve overrides the per-destination safety reserve in bytes.
func WithReserve(bytes int64) Option {
	return func(s *Scheduler) { s.reserve = bytes }
}

// WithSpaceProber replaces the live free space lookup.
func WithSpaceProber(p SpaceProber) Option {
	return func(s *Scheduler) { s.probe = p }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler hands out tasks from a catalog. Any number of schedulers, in one
// process or several, may share a catalog: claims run in immediate
// transactions.
type Scheduler struct {
	cat     *catalog.Catalog
	probe   SpaceProber
	log     *slog.Logger
	reserve int64
}

// New returns a Scheduler over cat.
func New(cat *catalog.Catalog, opts ...Option) *Scheduler {
	s := &Scheduler{
		cat:     cat,
		probe:   platform.FreeSpace,
		log:     slog.Default(),
		reserve: DefaultReserve,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestTask claims work. An idle task left over from an earlier pass is
// reused first; otherwise the destination with the most free space gets the
// largest directory that fits on it. The claimed task is returned busy.
// It returns nil, nil when there is nothing to do.
//
// A destination that has room for no pending directory is marked finished
// and stays retired until its state is reset.
func (s *Scheduler) RequestTask(ctx context.Context) (*catalog.Task, error) {
	var claimed *catalog.Task
	err := s.cat.InTx(ctx, catalog.TxImmediate, func(ctx context.Context) error {
		task, err := s.cat.FirstClaimableTask(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			task, err = s.allocate(ctx)
			if err != nil || task == nil {
				return err
			}
		}

		if err := s.UpdateCopyState(ctx, task.TaskID, catalog.Busy); err != nil {
			return err
		}
		claimed, err = s.cat.GetTask(ctx, task.TaskID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("request task: %w", err)
	}
	return claimed, nil
}

// allocate creates a task for the best directory on the emptiest destination.
func (s *Scheduler) allocate(ctx context.Context) (*catalog.Task, error) {
	dest, free, err := s.mostFreeDestination(ctx)
	if err != nil || dest == nil {
		return nil, err
	}
	usable := s.usable(free)

	dirs, err := s.cat.SchedulableDirectories(ctx)
	if err != nil {
		return nil, err
	}
	dir := bestFit(dirs, usable)
	if dir == nil {
		s.log.Info("destination full, retiring",
			"dest_id", dest.DestID, "path", dest.DiskPath, "usable", usable)
		if err := s.cat.SetDestinationCopyState(ctx, dest.DestID, catalog.Finished); err != nil {
			return nil, err
		}
		return nil, nil
	}

	id, err := s.cat.CreateTask(ctx, dest.DestID, dir.DirID)
	if err != nil {
		return nil, err
	}
	s.log.Info("task created",
		"task_id", id, "dest_id", dest.DestID, "dir_id", dir.DirID,
		"files_size", dir.FilesSize, "usable", usable)
	return &catalog.Task{TaskID: id, DestID: dest.DestID, DirID: dir.DirID, CopyState: catalog.Idle}, nil
}

// usable is free space minus the reserve, floored at zero.
func (s *Scheduler) usable(free uint64) int64 {
	const maxInt64 = 1<<63 - 1
	f := int64(maxInt64)
	if free < maxInt64 {
		f = int64(free)
	}
	return max(f-s.reserve, 0)
}

// bestFit returns the directory with the largest FilesSize not exceeding
// usable. Among equal sizes the first one in dirs wins.
func bestFit(dirs []catalog.Directory, usable int64) *catalog.Directory {
	var best *catalog.Directory
	for i := range dirs {
		d := &dirs[i]
		if d.FilesSize > usable {
			continue
		}
		if best == nil || d.FilesSize > best.FilesSize {
			best = d
		}
	}
	return best
}

// DestinationWithMostFreeSpace returns the active, idle destination with the
// most live free space, or nil when none is eligible. Ties go to the lowest
// DestID. Destinations whose path cannot be probed are skipped.
func (s *Scheduler) DestinationWithMostFreeSpace(ctx context.Context) (*catalog.Destination, error) {
	dest, _, err := s.mostFreeDestination(ctx)
	return dest, err
}

func (s *Scheduler) mostFreeDestination(ctx context.Context) (*catalog.Destination, uint64, error) {
	dests, err := s.cat.SchedulableDestinations(ctx)
	if err != nil {
		return nil, 0, err
	}

	var best *catalog.Destination
	var bestFree uint64
	for i := range dests {
		d := &dests[i]
		free, err := s.probe(ctx, d.DiskPath)
		if err != nil {
			s.log.Warn("cannot read destination free space",
				"dest_id", d.DestID, "path", d.DiskPath, "error", err)
			continue
		}
		if best == nil || free > bestFree {
			best, bestFree = d, free
		}
	}
	return best, bestFree, nil
}

// UpdateCopyState moves a task to state and propagates it. Busy and failed
// apply to the task, its directory, the directory's host and the
// destination. Idle and finished apply to the task and directory while the
// host and destination go back to idle so they can take more work.
func (s *Scheduler) UpdateCopyState(ctx context.Context, taskID int64, state catalog.CopyState) error {
	if !state.Valid() {
		return fmt.Errorf("update task %d: invalid copy state %d", taskID, state)
	}
	err := s.cat.InTx(ctx, catalog.TxDeferred, func(ctx context.Context) error {
		task, err := s.cat.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		shared := catalog.Idle
		if state == catalog.Busy || state == catalog.Failed {
			shared = state
		}

		if err := s.cat.SetTaskCopyState(ctx, task.TaskID, state); err != nil {
			return err
		}
		if err := s.cat.SetDirectoryCopyState(ctx, task.DirID, state); err != nil {
			return err
		}
		if err := s.cat.SetHostCopyStateByDir(ctx, task.DirID, shared); err != nil {
			return err
		}
		return s.cat.SetDestinationCopyState(ctx, task.DestID, shared)
	})
	if err != nil {
		return fmt.Errorf("update task %d to %s: %w", taskID, state, err)
	}
	s.log.Debug("task state updated", "task_id", taskID, "state", state)
	return nil
}

// Reset clears every task and returns all records to idle. It is the
// recovery step after a worker died holding a busy task.
func (s *Scheduler) Reset(ctx context.Context) error {
	if err := s.cat.Reset(ctx); err != nil {
		return err
	}
	s.log.Info("catalog reset")
	return nil
}

// ActivateAll sets the active state of every host, directory, file and
// destination.
func (s *Scheduler) ActivateAll(ctx context.Context, state catalog.ActiveState) error {
	if err := s.cat.ActivateAll(ctx, state); err != nil {
		return err
	}
	s.log.Info("all records updated", "active_state", state)
	return nil
}

// ActivateTask sets the active state of a task's destination and directory.
func (s *Scheduler) ActivateTask(ctx context.Context, taskID int64, state catalog.ActiveState) error {
	if err := s.cat.ActivateTask(ctx, taskID, state); err != nil {
		return err
	}
	s.log.Info("task records updated", "task_id", taskID, "active_state", state)
	return nil
}
