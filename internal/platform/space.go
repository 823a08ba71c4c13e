package platform

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// FreeSpace returns the bytes available to an unprivileged writer on the
// filesystem holding path. It is read live on every call.
func FreeSpace(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return usage.Free, nil
}
