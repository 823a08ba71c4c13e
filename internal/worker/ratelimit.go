package worker

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurst bounds how many bytes may pass the limiter at once.
const maxBurst = 1 << 20

// NewBWLimiter returns a limiter admitting bytesPerSec. The burst is one
// second of traffic, capped at maxBurst.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(min(bytesPerSec, maxBurst)))
}

// throttledReader charges every byte read from src against lim.
type throttledReader struct {
	ctx context.Context
	src io.Reader
	lim *rate.Limiter
}

func throttle(ctx context.Context, src io.Reader, lim *rate.Limiter) io.Reader {
	return &throttledReader{ctx: ctx, src: src, lim: lim}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	// WaitN rejects requests larger than the burst.
	p = p[:min(len(p), t.lim.Burst())]
	n, err := t.src.Read(p)
	if n == 0 {
		return 0, err
	}
	if werr := t.lim.WaitN(t.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}
