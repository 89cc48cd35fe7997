// Package ratelimiter implements the per-client request throttle applied when
// a request context is opened.
package ratelimiter

import (
	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket: tokens refill at a sustained rate up to the
// burst capacity, and each admitted request consumes one.
//
// Time is read from an injectable clock so that tests can drive refills
// deterministically.
//
// Thread safety:
// Allow is safe for concurrent use.
type RateLimiter struct {
	limiter   *rate.Limiter
	unlimited bool
	clock     clock.Clock
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(r *RateLimiter) { r.clock = clk }
}

// New creates a RateLimiter.
//
// Parameters:
//   - limit: sustained rate in requests per second, fractional rates allowed;
//     zero, negative or rate.Inf disables limiting
//   - burst: bucket capacity; 0 is raised to 1
//
// Example:
//
//	// 30 requests per minute, bursts of 5
//	limiter := New(rate.Every(2*time.Second), 5)
func New(limit rate.Limit, burst uint, opts ...Option) *RateLimiter {
	r := &RateLimiter{clock: clock.New()}
	for _, opt := range opts {
		opt(r)
	}

	if limit <= 0 || limit == rate.Inf {
		r.unlimited = true
		return r
	}
	if burst == 0 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(limit, int(burst))
	// rate.Limiter starts full; anchor its last-refill time on our clock.
	r.limiter.SetBurstAt(r.clock.Now(), int(burst))
	return r
}

// Allow consumes one token if available and reports whether the request is
// admitted. It never blocks.
func (r *RateLimiter) Allow() bool {
	if r.unlimited {
		return true
	}
	return r.limiter.AllowN(r.clock.Now(), 1)
}
