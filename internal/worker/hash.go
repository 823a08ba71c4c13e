package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const hashChunk = 256 * 1024

// Digest returns the BLAKE3-256 digest of the file at path. ctx is checked
// between chunks so verifying a large file stops promptly on shutdown.
func Digest(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, hashChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n]) //nolint:errcheck // hash writes never fail
		if errors.Is(err, io.EOF) {
			return h.Sum(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", path, err)
		}
	}
}
