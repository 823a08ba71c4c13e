package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// seed inserts one host with two directories, three files and two
// destinations, all active.
func seed(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.InsertHost(ctx, 1, "10.0.0.1"))
	require.NoError(t, c.InsertDirectory(ctx, Directory{DirID: 10, DirName: "a", Location: "/src", DirSize: 300, HostID: 1}))
	require.NoError(t, c.InsertDirectory(ctx, Directory{DirID: 20, DirName: "b", Location: "/src", DirSize: 50, HostID: 1}))
	require.NoError(t, c.InsertFile(ctx, File{FileID: 100, FileName: "one", ExtName: ".txt", FileSize: 100, Location: "/src/a", DirID: 10}))
	require.NoError(t, c.InsertFile(ctx, File{FileID: 101, FileName: "two", ExtName: ".bin", FileSize: 200, Location: "/src/a", DirID: 10}))
	require.NoError(t, c.InsertFile(ctx, File{FileID: 200, FileName: "three", ExtName: "", FileSize: 50, Location: "/src/b", DirID: 20}))
	require.NoError(t, c.InsertDestination(ctx, Destination{DestID: 1, DiskSN: "SN1", DiskBatch: "B1", DiskPath: "/mnt/d1"}))
	require.NoError(t, c.InsertDestination(ctx, Destination{DestID: 2, DiskSN: "SN2", DiskBatch: "B1", DiskPath: "/mnt/d2"}))
	require.NoError(t, c.ActivateAll(ctx, Active))
}
