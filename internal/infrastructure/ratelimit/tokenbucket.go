// Package ratelimit paces outbound device commands. LoRa airtime budgets are
// duty-cycle constrained, so the bucket accepts fractional sub-1 Hz rates.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"meshbridge/internal/shared/config"
	"meshbridge/internal/shared/timeutil"
)

// DisabledTokens is reported by Available when rate limiting is off.
const DisabledTokens = -1

// TokenBucket is a mutex-guarded token bucket. The bucket starts full and
// refills continuously at rate tokens/second, capped at burst.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastUpdate time.Time
	enabled    bool

	nowFn func() time.Time
}

// NewTokenBucket builds a bucket from configuration. A disabled limiter or a
// non-positive rate grants every acquisition immediately.
func NewTokenBucket(cfg config.RateLimitConfig) *TokenBucket {
	now := timeutil.NowUTC()
	return &TokenBucket{
		rate:       cfg.Rate,
		burst:      cfg.Burst,
		tokens:     cfg.Burst,
		lastUpdate: now,
		enabled:    cfg.Enabled && cfg.Rate > 0,
		nowFn:      timeutil.NowUTC,
	}
}

// Enabled reports whether acquisitions are actually paced.
func (t *TokenBucket) Enabled() bool { return t.enabled }

// Rate returns the refill rate in tokens/second, 0 when disabled. Callers use
// it to estimate queue wait times.
func (t *TokenBucket) Rate() float64 {
	if !t.enabled {
		return 0
	}
	return t.rate
}

// Available returns the current token count, or DisabledTokens when the
// limiter is off.
func (t *TokenBucket) Available() float64 {
	if !t.enabled {
		return DisabledTokens
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked(t.nowFn())
	return t.tokens
}

// Acquire blocks until n tokens are available or the context is done.
func (t *TokenBucket) Acquire(ctx context.Context, n float64) error {
	if !t.enabled {
		return nil
	}
	for {
		t.mu.Lock()
		now := t.nowFn()
		t.refillLocked(now)
		if t.tokens >= n {
			t.tokens -= n
			t.mu.Unlock()
			return nil
		}
		need := n - t.tokens
		t.mu.Unlock()

		wait := time.Duration(need / t.rate * float64(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check; a competing acquirer may have taken the refill.
		}
	}
}

func (t *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(t.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	t.tokens += elapsed * t.rate
	if t.tokens > t.burst {
		t.tokens = t.burst
	}
	t.lastUpdate = now
}
