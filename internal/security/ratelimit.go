package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateWindow is the trailing interval over which per-identity requests are
// counted.
const rateWindow = 60 * time.Second

// Decision is the result of a rate limiter admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is a fixed-horizon estimate (now + 60s), not the exact expiry
	// of the oldest in-window entry.
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter admits requests under a sliding 60-second window per identity,
// with a process-wide throughput ceiling in front of it.
type RateLimiter struct {
	limit int

	mu      sync.Mutex
	windows map[string][]time.Time

	global *rate.Limiter
}

// NewRateLimiter creates a limiter allowing perClient requests per identity
// per minute and globalPerMinute requests across all identities, with the
// given burst on the global limiter.
func NewRateLimiter(perClient, globalPerMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   perClient,
		windows: make(map[string][]time.Time),
		global:  rate.NewLimiter(rate.Limit(float64(globalPerMinute)/60.0), burst),
	}
}

// Limit returns the configured per-identity limit.
func (l *RateLimiter) Limit() int { return l.limit }

// AllowGlobal consumes one token from the process-wide limiter.
func (l *RateLimiter) AllowGlobal() bool { return l.global.Allow() }

// Admit prunes the identity's window and admits the request iff the
// remaining count is below the limit, recording now on admission.
func (l *RateLimiter) Admit(identity string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	window := l.windows[identity]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows[identity] = kept
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    now.Add(rateWindow),
			RetryAfter: rateWindow,
		}
	}

	kept = append(kept, now)
	l.windows[identity] = kept
	return Decision{
		Allowed:   true,
		Remaining: l.limit - len(kept),
		ResetAt:   now.Add(rateWindow),
	}
}
