package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Delayer holds a login attempt back before credentials are checked
type Delayer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimingDelay sleeps for the throttle delay plus optional random jitter.
// The wait ends early, with the context error, when the request is cancelled.
type TimingDelay struct {
	jitter time.Duration
}

// NewTimingDelay creates a TimingDelay adding up to jitter to every non-zero delay
func NewTimingDelay(jitter time.Duration) *TimingDelay {
	return &TimingDelay{jitter: jitter}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

// Wait blocks for d (plus jitter) or until ctx is done
func (td *TimingDelay) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	if td.jitter > 0 {
		if extra, err := cryptoRandIntn(int64(td.jitter)); err == nil {
			d += time.Duration(extra)
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
