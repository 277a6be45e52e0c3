package agent

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket in front of the AI services. One bucket
// is shared by every chat because the service quotas are per deployment.
type RateLimiter struct {
	mu     sync.Mutex
	burst  float64
	perSec float64
	avail  float64
	last   time.Time
	now    func() time.Time
}

// NewRateLimiter returns nil when perMinute is not positive, which the
// loop treats as unlimited.
func NewRateLimiter(burst int, perMinute float64) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		burst:  float64(burst),
		perSec: perMinute / 60,
		avail:  float64(burst),
		last:   time.Now(),
		now:    time.Now,
	}
}

// reserve takes a token and returns 0, or returns how long until the next
// token without taking one.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	t := rl.now()
	rl.avail = math.Min(rl.burst, rl.avail+t.Sub(rl.last).Seconds()*rl.perSec)
	rl.last = t
	if rl.avail >= 1 {
		rl.avail--
		return 0
	}
	return time.Duration((1 - rl.avail) / rl.perSec * float64(time.Second))
}

// Wait blocks until a token is available. It gives up at once when ctx
// would expire before the next token, so a throttled message does not
// hold a worker slot until its deadline.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		d := rl.reserve()
		if d == 0 {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
			return fmt.Errorf("next slot in %s: %w", d.Round(time.Millisecond), context.DeadlineExceeded)
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
