package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	c := openTestCatalog(t)
	assert.FileExists(t, c.Path())

	for _, kind := range Kinds {
		n, err := c.CountAll(context.Background(), kind)
		require.NoError(t, err, kind)
		assert.Zero(t, n, kind)
	}

	_, err := c.CountAll(context.Background(), Kind("catalog_lock"))
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	h, err := c.GetHost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", h.HostAddr)
	assert.Equal(t, Active, h.ActiveState)
	assert.Equal(t, Idle, h.CopyState)
	assert.False(t, h.CreateTime.IsZero())

	d, err := c.GetDirectory(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "/src/a", d.Path())
	assert.Zero(t, d.FilesSize)

	f, err := c.GetFile(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "/src/a/two.bin", f.Path())
	assert.True(t, f.CopyTime.IsZero())

	dest, err := c.GetDestination(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/d2", dest.DiskPath)

	_, err = c.GetHost(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetDirectory(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetFile(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetDestination(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetTask(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	tests := []struct {
		name  string
		probe func() (bool, error)
		want  bool
	}{
		{"host", func() (bool, error) { return c.HostExists(ctx, "10.0.0.1") }, true},
		{"host missing", func() (bool, error) { return c.HostExists(ctx, "10.0.0.2") }, false},
		{"dir", func() (bool, error) { return c.DirectoryExists(ctx, "a", "/src") }, true},
		{"dir other location", func() (bool, error) { return c.DirectoryExists(ctx, "a", "/elsewhere") }, false},
		{"file", func() (bool, error) { return c.FileExists(ctx, "two", ".bin", "/src/a") }, true},
		{"file other ext", func() (bool, error) { return c.FileExists(ctx, "two", ".txt", "/src/a") }, false},
		{"dest", func() (bool, error) { return c.DestinationExists(ctx, "B1", "SN2") }, true},
		{"dest other batch", func() (bool, error) { return c.DestinationExists(ctx, "B2", "SN2") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.probe()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectoryIDByPath(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	id, err := c.DirectoryIDByPath(ctx, "/src/b")
	require.NoError(t, err)
	assert.Equal(t, int64(20), id)

	id, err = c.DirectoryIDByPath(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)

	id, err = c.DirectoryIDByPath(ctx, "/nope/a")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestRecomputeFilesSize(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	require.NoError(t, c.SetFileCopyState(ctx, 100, 1, Finished, ""))
	require.NoError(t, c.InsertDirectory(ctx, Directory{DirID: 30, DirName: "empty", Location: "/src", HostID: 1}))
	require.NoError(t, c.RecomputeFilesSize(ctx))

	for id, want := range map[int64]int64{10: 200, 20: 50, 30: 0} {
		d, err := c.GetDirectory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, d.FilesSize, "dir %d", id)
	}
}

func TestNextIdleFile(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	f, err := c.NextIdleFile(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(100), f.FileID)

	require.NoError(t, c.SetFileCopyState(ctx, 100, 1, Failed, "disk full"))
	f, err = c.NextIdleFile(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(101), f.FileID)

	require.NoError(t, c.ActivateFile(ctx, 101, Inactive))
	f, err = c.NextIdleFile(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, c.ActivateDirectory(ctx, 20, Inactive))
	f, err = c.NextIdleFile(ctx, 20)
	require.NoError(t, err)
	assert.Nil(t, f, "files of an inactive directory are not offered")
}

func TestSetFileCopyState(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	require.NoError(t, c.SetFileCopyState(ctx, 100, 2, Failed, "permission denied"))
	f, err := c.GetFile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, Failed, f.CopyState)
	assert.Equal(t, "permission denied", f.CopyStatus)
	assert.Equal(t, int64(2), f.DestID)
	assert.True(t, f.CopyTime.IsZero())

	require.NoError(t, c.SetFileCopyState(ctx, 100, 2, Finished, ""))
	f, err = c.GetFile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, Finished, f.CopyState)
	assert.Empty(t, f.CopyStatus)
	assert.False(t, f.CopyTime.IsZero())
}

func TestFileCounts(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	require.NoError(t, c.SetFileCopyState(ctx, 100, 1, Finished, ""))
	counts, err := c.FileCounts(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, map[CopyState]int64{Idle: 1, Finished: 1}, counts)
}

func TestActivate(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	n, err := c.ActivateFilesOfDir(ctx, 10, Inactive)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, c.ActivateHost(ctx, 1, Inactive))
	h, err := c.GetHost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Inactive, h.ActiveState)

	assert.ErrorIs(t, c.ActivateHost(ctx, 42, Active), ErrNotFound)
	assert.ErrorIs(t, c.ActivateDestination(ctx, 42, Active), ErrNotFound)
	assert.ErrorIs(t, c.ActivateTask(ctx, 42, Active), ErrNotFound)
}

func TestActivateTask(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	id, err := c.CreateTask(ctx, 2, 20)
	require.NoError(t, err)
	require.NoError(t, c.ActivateTask(ctx, id, Inactive))

	dest, err := c.GetDestination(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Inactive, dest.ActiveState)
	dir, err := c.GetDirectory(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, Inactive, dir.ActiveState)
}

func TestTasks(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	first, err := c.CreateTask(ctx, 1, 10)
	require.NoError(t, err)
	second, err := c.CreateTask(ctx, 2, 20)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	claim, err := c.FirstClaimableTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, first, claim.TaskID)

	// A busy destination hides its task.
	require.NoError(t, c.SetDestinationCopyState(ctx, 1, Busy))
	claim, err = c.FirstClaimableTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, second, claim.TaskID)

	// So does a busy host.
	require.NoError(t, c.SetHostCopyStateByDir(ctx, 20, Busy))
	claim, err = c.FirstClaimableTask(ctx)
	require.NoError(t, err)
	assert.Nil(t, claim)

	require.NoError(t, c.SetTaskCopyState(ctx, first, Finished))
	task, err := c.GetTask(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, Finished, task.CopyState)

	require.NoError(t, c.RemoveTask(ctx, first))
	assert.ErrorIs(t, c.RemoveTask(ctx, first), ErrNotFound)

	tasks, err := c.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, second, tasks[0].TaskID)
}

func TestSchedulableQueries(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	require.NoError(t, c.SetDirectoryCopyState(ctx, 10, Busy))
	require.NoError(t, c.SetDestinationCopyState(ctx, 1, Finished))

	dirs, err := c.SchedulableDirectories(ctx)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, int64(20), dirs[0].DirID)

	dests, err := c.SchedulableDestinations(ctx)
	require.NoError(t, err)
	require.Len(t, dests, 1)
	assert.Equal(t, int64(2), dests[0].DestID)

	all, err := c.ListDestinations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, c.SetHostCopyStateByDir(ctx, 20, Busy))
	dirs, err = c.SchedulableDirectories(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestReset(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	id, err := c.CreateTask(ctx, 1, 10)
	require.NoError(t, err)
	require.NoError(t, c.SetTaskCopyState(ctx, id, Busy))
	require.NoError(t, c.SetDirectoryCopyState(ctx, 10, Busy))
	require.NoError(t, c.SetHostCopyStateByDir(ctx, 10, Busy))
	require.NoError(t, c.SetDestinationCopyState(ctx, 1, Failed))
	require.NoError(t, c.SetFileCopyState(ctx, 100, 1, Finished, ""))

	require.NoError(t, c.Reset(ctx))

	n, err := c.CountAll(ctx, KindTask)
	require.NoError(t, err)
	assert.Zero(t, n)

	h, err := c.GetHost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Idle, h.CopyState)
	d, err := c.GetDirectory(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Idle, d.CopyState)
	dest, err := c.GetDestination(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Idle, dest.CopyState)
	f, err := c.GetFile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, Idle, f.CopyState)
	assert.Zero(t, f.DestID)
}
