package platform

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SetMetadata applies the permission bits and access/modification times of
// src to the open file fd. Ownership is not copied: destination disks are
// written by whoever runs the worker.
func SetMetadata(fd *os.File, src fs.FileInfo) error {
	if err := unix.Fchmod(int(fd.Fd()), uint32(src.Mode().Perm())); err != nil {
		return fmt.Errorf("fchmod: %w", err)
	}
	return setFileTimes(fd, accessTime(src), src.ModTime())
}

// accessTime returns the source atime, or mtime when the FileInfo carries
// no stat data.
func accessTime(fi fs.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return atimeFromStat(st)
	}
	return fi.ModTime()
}

// ChangeTime returns the inode change time of fi, or its mtime when the
// FileInfo carries no stat data (in-memory filesystems).
func ChangeTime(fi fs.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return ctimeFromStat(st)
	}
	return fi.ModTime()
}

func fileTimespecs(atime, mtime time.Time) []unix.Timespec {
	return []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
}
