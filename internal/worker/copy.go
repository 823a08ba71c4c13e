package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bamsammich/diskpack/internal/event"
	"github.com/bamsammich/diskpack/internal/platform"
	"github.com/bamsammich/diskpack/internal/stats"
)

// copyFile copies src to dst through a temp file in the destination
// directory, carrying over mode and times, and renames it into place. The
// temp file is always gone when copyFile returns.
func (w *Worker) copyFile(ctx context.Context, src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.diskpack-tmp", filepath.Base(dst), uuid.New().String()[:8]))
	defer os.Remove(tmpPath) // no-op if rename succeeded

	tmpFd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	n, err := w.copyData(ctx, src, tmpFd, info.Size())
	if err != nil {
		tmpFd.Close()
		return n, fmt.Errorf("copy data %s: %w", src, err)
	}
	if n != info.Size() {
		tmpFd.Close()
		return n, fmt.Errorf("copy data %s: short copy, %d of %d bytes", src, n, info.Size())
	}

	if err := platform.SetMetadata(tmpFd, info); err != nil {
		tmpFd.Close()
		return n, fmt.Errorf("set metadata %s: %w", dst, err)
	}
	if err := tmpFd.Close(); err != nil {
		return n, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if w.cfg.Verify {
		if err := w.verify(ctx, src, tmpPath); err != nil {
			return n, err
		}
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return n, fmt.Errorf("rename %s -> %s: %w", tmpPath, dst, err)
	}
	return n, nil
}

// copyData uses kernel offload unless a bandwidth limit forces the bytes
// through a throttled reader.
func (w *Worker) copyData(ctx context.Context, src string, dstFd *os.File, size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	if w.limiter == nil {
		result, err := platform.CopyFile(platform.CopyParams{SrcPath: src, DstFd: dstFd, Size: size})
		return result.BytesWritten, err
	}

	srcFd, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFd.Close()

	buf := make([]byte, 256*1024)
	return io.CopyBuffer(dstFd, throttle(ctx, srcFd, w.limiter), buf)
}

func (w *Worker) verify(ctx context.Context, src, copied string) error {
	want, err := Digest(ctx, src)
	if err != nil {
		return err
	}
	got, err := Digest(ctx, copied)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		w.cfg.Stats.Add(stats.FilesVerifyFailed, 1)
		w.emit(event.Event{Type: event.VerifyFailed, Path: src})
		return fmt.Errorf("checksum mismatch for %s: source %x, copy %x", src, want, got)
	}
	w.cfg.Stats.Add(stats.FilesVerified, 1)
	w.emit(event.Event{Type: event.VerifyOK, Path: src})
	return nil
}
