package worker

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}
	big := make([]byte, 3*hashChunk+17)
	for i := range big {
		big[i] = byte(i % 251)
	}

	same1, err := Digest(ctx, write("a", big))
	require.NoError(t, err)
	same2, err := Digest(ctx, write("b", big))
	require.NoError(t, err)
	big[len(big)-1]++
	other, err := Digest(ctx, write("c", big))
	require.NoError(t, err)

	assert.Len(t, same1, 32)
	assert.Equal(t, same1, same2)
	assert.NotEqual(t, same1, other)

	empty, err := Digest(ctx, write("empty", nil))
	require.NoError(t, err)
	// BLAKE3 of the empty input.
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", hex.EncodeToString(empty))

	_, err = Digest(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDigest_Cancelled(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Digest(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}
