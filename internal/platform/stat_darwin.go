//go:build darwin

package platform

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func atimeFromStat(st *syscall.Stat_t) time.Time { return time.Unix(st.Atimespec.Unix()) }
func ctimeFromStat(st *syscall.Stat_t) time.Time { return time.Unix(st.Ctimespec.Unix()) }

func setFileTimes(fd *os.File, atime, mtime time.Time) error {
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, fd.Name(), fileTimespecs(atime, mtime), 0); err != nil {
		return fmt.Errorf("set times on %s: %w", fd.Name(), err)
	}
	return nil
}
