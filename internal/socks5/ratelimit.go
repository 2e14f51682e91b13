package socks5

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateLimitedReader wraps an io.Reader with token-bucket throttling.
// Adapted from the corpus's file-transfer throughput limiter
// (internal/filetransfer/ratelimit.go) to the SOCKS5 relay: the same
// "cap bytes per second" concern, applied per session direction
// instead of per file.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// maybeRateLimit wraps r in a throttled reader when bytesPerSecond is
// positive; otherwise it returns r unchanged. burst must be at least
// the largest single read the caller will ever issue — copyDirection
// passes its relay buffer's length — since rate.Limiter.WaitN errors
// whenever n exceeds the limiter's burst, regardless of how long it's
// allowed to wait.
func maybeRateLimit(ctx context.Context, r io.Reader, bytesPerSecond int64, burst int) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedReader{
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		ctx:     ctx,
	}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n <= 0 {
		return n, err
	}
	if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
		return n, waitErr
	}
	return n, err
}
