package scheduler_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/scheduler"
)

const gib = int64(1 << 30)

// fakeSpace maps destination paths to free bytes. Unknown paths fail.
type fakeSpace map[string]uint64

func (f fakeSpace) probe(_ context.Context, path string) (uint64, error) {
	free, ok := f[path]
	if !ok {
		return 0, errors.New("no such mount")
	}
	return free, nil
}

type fixture struct {
	cat   *catalog.Catalog
	sched *scheduler.Scheduler
	space fakeSpace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	cat, err := catalog.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	space := fakeSpace{}
	return &fixture{
		cat:   cat,
		sched: scheduler.New(cat, scheduler.WithSpaceProber(space.probe)),
		space: space,
	}
}

func (f *fixture) host(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, f.cat.InsertHost(context.Background(), id, "host"))
}

// dir adds a directory whose idle files total filesSize.
func (f *fixture) dir(t *testing.T, id, hostID, filesSize int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.cat.InsertDirectory(ctx, catalog.Directory{
		DirID: id, DirName: "d", Location: "/src", HostID: hostID, DirSize: filesSize,
	}))
	require.NoError(t, f.cat.InsertFile(ctx, catalog.File{
		FileID: id*100 + 1, FileName: "f", FileSize: filesSize, Location: "/src/d", DirID: id,
	}))
}

func (f *fixture) dest(t *testing.T, id int64, path string, free uint64) {
	t.Helper()
	require.NoError(t, f.cat.InsertDestination(context.Background(), catalog.Destination{
		DestID: id, DiskPath: path, DiskSN: path,
	}))
	f.space[path] = free
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.cat.RecomputeFilesSize(ctx))
	require.NoError(t, f.cat.ActivateAll(ctx, catalog.Active))
}

func (f *fixture) states(t *testing.T, task *catalog.Task) (taskS, dirS, hostS, destS catalog.CopyState) {
	t.Helper()
	ctx := context.Background()
	tk, err := f.cat.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	d, err := f.cat.GetDirectory(ctx, task.DirID)
	require.NoError(t, err)
	h, err := f.cat.GetHost(ctx, d.HostID)
	require.NoError(t, err)
	dest, err := f.cat.GetDestination(ctx, task.DestID)
	require.NoError(t, err)
	return tk.CopyState, d.CopyState, h.CopyState, dest.CopyState
}

func TestRequestTask_BestFitScenario(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.host(t, 2)
	f.dir(t, 1, 1, 3*gib)   // A
	f.dir(t, 2, 2, 9*gib/2) // B
	f.dest(t, 1, "/mnt/d", uint64(5*gib))
	f.activate(t)

	task, err := f.sched.RequestTask(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(1), task.DestID)
	assert.Equal(t, int64(1), task.DirID, "B exceeds usable space")
	assert.Equal(t, catalog.Busy, task.CopyState)

	ts, ds, hs, dests := f.states(t, task)
	assert.Equal(t, catalog.Busy, ts)
	assert.Equal(t, catalog.Busy, ds)
	assert.Equal(t, catalog.Busy, hs)
	assert.Equal(t, catalog.Busy, dests)
}

func TestRequestTask_LargestFittingWinsFirstOnTie(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.host(t, 2)
	f.host(t, 3)
	f.dir(t, 1, 1, 1*gib)
	f.dir(t, 2, 2, 2*gib)
	f.dir(t, 3, 3, 2*gib)
	f.dest(t, 1, "/mnt/d", uint64(10*gib))
	f.activate(t)

	task, err := f.sched.RequestTask(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(2), task.DirID)
}

func TestRequestTask_NeverExceedsUsable(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, 2*gib)
	f.dest(t, 1, "/mnt/d", uint64(2*gib)) // usable 1 GiB
	f.activate(t)

	task, err := f.sched.RequestTask(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)

	dest, err := f.cat.GetDestination(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.Finished, dest.CopyState, "a destination nothing fits on is retired")
}

func TestRequestTask_ReserveFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, 0)
	f.dest(t, 1, "/mnt/d", 100)
	f.activate(t)

	// Usable space is zero, so only an empty directory fits.
	task, err := f.sched.RequestTask(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, int64(1), task.DirID)
}

func TestRequestTask_NothingEligibleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, gib)
	f.dest(t, 1, "/mnt/d", uint64(10*gib))
	require.NoError(t, f.cat.RecomputeFilesSize(context.Background()))
	// Nothing activated.

	for range 3 {
		task, err := f.sched.RequestTask(context.Background())
		require.NoError(t, err)
		assert.Nil(t, task)
	}

	n, err := f.cat.CountAll(context.Background(), catalog.KindTask)
	require.NoError(t, err)
	assert.Zero(t, n)
	dest, err := f.cat.GetDestination(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.Idle, dest.CopyState)
}

func TestRequestTask_ReusesIdleTask(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, gib)
	f.dir(t, 2, 1, 2*gib)
	f.dest(t, 1, "/mnt/d", uint64(10*gib))
	f.activate(t)
	ctx := context.Background()

	first, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(2), first.DirID)

	// The worker aborts the pass: everything returns to idle.
	require.NoError(t, f.sched.UpdateCopyState(ctx, first.TaskID, catalog.Idle))

	again, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.TaskID, again.TaskID)

	n, err := f.cat.CountAll(ctx, catalog.KindTask)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRequestTask_BusyHostBlocksOtherDirectories(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, gib)
	f.dir(t, 2, 1, gib)
	f.dest(t, 1, "/mnt/d1", uint64(10*gib))
	f.dest(t, 2, "/mnt/d2", uint64(10*gib))
	f.activate(t)
	ctx := context.Background()

	first, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	assert.Nil(t, second, "the shared host is busy")

	dest, err := f.cat.GetDestination(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, catalog.Finished, dest.CopyState)
}

func TestRequestTask_SpreadsAcrossDestinations(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.host(t, 2)
	f.dir(t, 1, 1, gib)
	f.dir(t, 2, 2, gib)
	f.dest(t, 1, "/mnt/d1", uint64(4*gib))
	f.dest(t, 2, "/mnt/d2", uint64(8*gib))
	f.activate(t)
	ctx := context.Background()

	first, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(2), first.DestID)

	second, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, int64(1), second.DestID)
	assert.NotEqual(t, first.DirID, second.DirID)
}

func TestDestinationWithMostFreeSpace(t *testing.T) {
	f := newFixture(t)
	f.dest(t, 1, "/mnt/a", 100)
	f.dest(t, 2, "/mnt/b", 300)
	f.dest(t, 3, "/mnt/c", 300)
	f.dest(t, 4, "/mnt/d", 900)
	require.NoError(t, f.cat.InsertDestination(context.Background(), catalog.Destination{
		DestID: 5, DiskPath: "/mnt/unmounted", DiskSN: "x",
	}))
	ctx := context.Background()

	dest, err := f.sched.DestinationWithMostFreeSpace(ctx)
	require.NoError(t, err)
	assert.Nil(t, dest, "no destination is active")

	require.NoError(t, f.cat.ActivateAll(ctx, catalog.Active))
	require.NoError(t, f.cat.SetDestinationCopyState(ctx, 4, catalog.Busy))

	dest, err = f.sched.DestinationWithMostFreeSpace(ctx)
	require.NoError(t, err)
	require.NotNil(t, dest)
	assert.Equal(t, int64(2), dest.DestID, "ties go to the first seen")

	// Free space is read live.
	f.space["/mnt/a"] = 1000
	dest, err = f.sched.DestinationWithMostFreeSpace(ctx)
	require.NoError(t, err)
	require.NotNil(t, dest)
	assert.Equal(t, int64(1), dest.DestID)
}

func TestUpdateCopyState_Propagation(t *testing.T) {
	tests := []struct {
		state      catalog.CopyState
		wantShared catalog.CopyState
	}{
		{catalog.Busy, catalog.Busy},
		{catalog.Failed, catalog.Failed},
		{catalog.Idle, catalog.Idle},
		{catalog.Finished, catalog.Idle},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			f := newFixture(t)
			f.host(t, 1)
			f.dir(t, 1, 1, gib)
			f.dest(t, 1, "/mnt/d", uint64(10*gib))
			f.activate(t)
			ctx := context.Background()

			task, err := f.sched.RequestTask(ctx)
			require.NoError(t, err)
			require.NotNil(t, task)

			require.NoError(t, f.sched.UpdateCopyState(ctx, task.TaskID, tt.state))
			ts, ds, hs, dests := f.states(t, task)
			assert.Equal(t, tt.state, ts)
			assert.Equal(t, tt.state, ds)
			assert.Equal(t, tt.wantShared, hs)
			assert.Equal(t, tt.wantShared, dests)
		})
	}
}

func TestUpdateCopyState_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.sched.UpdateCopyState(ctx, 42, catalog.Busy), catalog.ErrNotFound)
	assert.Error(t, f.sched.UpdateCopyState(ctx, 42, catalog.CopyState(9)))
}

func TestUpdateCopyState_NestedFailureCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, gib)
	f.dest(t, 1, "/mnt/d", uint64(10*gib))
	f.activate(t)
	ctx := context.Background()

	task, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	boom := errors.New("boom")
	err = f.cat.InTx(ctx, catalog.TxDeferred, func(ctx context.Context) error {
		if err := f.sched.UpdateCopyState(ctx, task.TaskID, catalog.Finished); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	ts, ds, hs, dests := f.states(t, task)
	assert.Equal(t, catalog.Busy, ts)
	assert.Equal(t, catalog.Busy, ds)
	assert.Equal(t, catalog.Busy, hs)
	assert.Equal(t, catalog.Busy, dests)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, gib)
	f.dest(t, 1, "/mnt/d", uint64(10*gib))
	f.activate(t)
	ctx := context.Background()

	task, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, f.sched.Reset(ctx))

	again, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Greater(t, again.TaskID, task.TaskID)
}

func TestActivateTask(t *testing.T) {
	f := newFixture(t)
	f.host(t, 1)
	f.dir(t, 1, 1, gib)
	f.dest(t, 1, "/mnt/d", uint64(10*gib))
	f.activate(t)
	ctx := context.Background()

	task, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, f.sched.UpdateCopyState(ctx, task.TaskID, catalog.Idle))
	require.NoError(t, f.sched.ActivateTask(ctx, task.TaskID, catalog.Inactive))

	again, err := f.sched.RequestTask(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "inactive destination and directory are invisible")

	require.NoError(t, f.sched.ActivateAll(ctx, catalog.Active))
	again, err = f.sched.RequestTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, task.TaskID, again.TaskID)
}
