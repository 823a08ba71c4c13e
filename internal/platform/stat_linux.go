//go:build linux

package platform

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func atimeFromStat(st *syscall.Stat_t) time.Time { return time.Unix(st.Atim.Unix()) }
func ctimeFromStat(st *syscall.Stat_t) time.Time { return time.Unix(st.Ctim.Unix()) }

// setFileTimes sets atime and mtime through the descriptor, falling back to
// the path on kernels without AT_EMPTY_PATH.
func setFileTimes(fd *os.File, atime, mtime time.Time) error {
	ts := fileTimespecs(atime, mtime)
	err := unix.UtimesNanoAt(int(fd.Fd()), "", ts, unix.AT_EMPTY_PATH)
	if err == nil {
		return nil
	}
	if unix.UtimesNanoAt(unix.AT_FDCWD, fd.Name(), ts, 0) == nil {
		return nil
	}
	return fmt.Errorf("set times on %s: %w", fd.Name(), err)
}
