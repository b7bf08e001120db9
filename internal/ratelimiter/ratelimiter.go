// Package ratelimiter throttles connection attempts to Perforce servers.
//
// Each server address gets its own token bucket so a client that keeps
// reconnecting to one broken server does not delay dials to another.
package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// DialLimiter hands out dial permits per server address.
//
// The zero rate means unlimited: Wait and Allow never block or refuse.
// All methods are safe for concurrent use.
type DialLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns a limiter allowing dialsPerSecond sustained attempts per
// address with bursts of up to burst. A burst of 0 is raised to 1 so that a
// limited server can still be dialled.
func New(dialsPerSecond float64, burst uint) *DialLimiter {
	if dialsPerSecond <= 0 {
		return &DialLimiter{limit: rate.Inf}
	}
	if burst == 0 {
		burst = 1
	}
	return &DialLimiter{
		limit:    rate.Limit(dialsPerSecond),
		burst:    int(burst),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Unlimited reports whether this limiter never throttles.
func (d *DialLimiter) Unlimited() bool {
	return d == nil || d.limit == rate.Inf
}

func (d *DialLimiter) forAddr(addr string) *rate.Limiter {
	key := strings.ToLower(addr)

	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[key] = l
	}
	return l
}

// Wait blocks until a dial to addr is permitted or ctx is done.
func (d *DialLimiter) Wait(ctx context.Context, addr string) error {
	if d.Unlimited() {
		return ctx.Err()
	}
	if err := d.forAddr(addr).Wait(ctx); err != nil {
		return fmt.Errorf("dial throttle for %s: %w", addr, err)
	}
	return nil
}

// Allow consumes a permit for addr if one is available right now.
func (d *DialLimiter) Allow(addr string) bool {
	if d.Unlimited() {
		return true
	}
	return d.forAddr(addr).Allow()
}

// Tokens returns the permits currently available for addr. Unlimited
// limiters report +Inf.
func (d *DialLimiter) Tokens(addr string) float64 {
	if d.Unlimited() {
		return math.Inf(1)
	}
	return d.forAddr(addr).Tokens()
}

// Addrs returns how many distinct addresses have been throttled.
func (d *DialLimiter) Addrs() int {
	if d.Unlimited() {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.limiters)
}
