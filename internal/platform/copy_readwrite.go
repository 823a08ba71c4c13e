package platform

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const rwChunk = 1 << 20

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, rwChunk)
		return &b
	},
}

// CopyReadWrite copies with positioned reads and writes only. It is the
// last resort of CopyFile and works on every filesystem.
func CopyReadWrite(params CopyParams) (CopyResult, error) {
	return copyReadWrite(params)
}

func copyReadWrite(params CopyParams) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	bp := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bp)

	res := CopyResult{Method: ReadWrite}
	srcFd, dstFd := int(src.Fd()), int(params.DstFd.Fd())
	for res.BytesWritten < params.Size {
		chunk := (*bp)[:min(params.Size-res.BytesWritten, rwChunk)]
		n, err := unix.Pread(srcFd, chunk, res.BytesWritten)
		if err != nil {
			return res, err
		}
		if n == 0 {
			// Source shrank; the caller's size check reports it.
			return res, nil
		}
		written, err := pwriteFull(dstFd, chunk[:n], res.BytesWritten)
		res.BytesWritten += int64(written)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// pwriteFull writes all of p at off, retrying short writes.
func pwriteFull(fd int, p []byte, off int64) (int, error) {
	done := 0
	for done < len(p) {
		n, err := unix.Pwrite(fd, p[done:], off+int64(done))
		if err != nil {
			return done, err
		}
		done += n
	}
	return done, nil
}

// isFallbackErr reports whether err means "this method is not available
// here" rather than a real I/O failure.
func isFallbackErr(err error) bool {
	for _, errno := range []error{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
