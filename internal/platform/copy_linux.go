//go:build linux

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// offloadStep moves up to n bytes from src to dst in the kernel and returns
// how many it moved.
type offloadStep func(src, dst int, n int) (int, error)

// CopyFile copies with copy_file_range, then sendfile, then a read/write
// loop, moving on only while the kernel says a method is unsupported here.
// Destination disks rarely share a filesystem with the source, so the
// second and third methods carry most copies.
func CopyFile(params CopyParams) (CopyResult, error) {
	if err := reserveSpace(params.DstFd, params.Size); err != nil {
		return CopyResult{}, err
	}

	var roff, woff, soff int64
	methods := []struct {
		method CopyMethod
		step   offloadStep
	}{
		{CopyFileRange, func(src, dst, n int) (int, error) {
			return unix.CopyFileRange(src, &roff, dst, &woff, n, 0)
		}},
		{Sendfile, func(src, dst, n int) (int, error) {
			return unix.Sendfile(dst, src, &soff, n)
		}},
	}
	for _, m := range methods {
		res, err := offload(params, m.method, m.step)
		if err == nil || !isFallbackErr(err) || res.BytesWritten > 0 {
			return res, err
		}
	}
	return copyReadWrite(params)
}

func offload(params CopyParams, method CopyMethod, step offloadStep) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	res := CopyResult{Method: method}
	srcFd, dstFd := int(src.Fd()), int(params.DstFd.Fd())
	for res.BytesWritten < params.Size {
		n, err := step(srcFd, dstFd, int(params.Size-res.BytesWritten))
		if err != nil {
			return res, err
		}
		if n == 0 {
			break
		}
		res.BytesWritten += int64(n)
	}
	return res, nil
}

// reserveSpace allocates size bytes for fd before any data is written. Only
// ENOSPC counts as failure; exFAT and FUSE mounts commonly refuse fallocate.
func reserveSpace(fd *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	err := unix.Fallocate(int(fd.Fd()), 0, 0, size) //nolint:gosec // G115: fd values are small
	if errors.Is(err, unix.ENOSPC) {
		return fmt.Errorf("allocate %d bytes: %w", size, err)
	}
	return nil
}
