package crawler

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// HostRateLimiter spaces requests per origin host: consecutive dispatches
// to the same host are separated by the host's delay perturbed by ±10%
// jitter. The first request to a host never waits.
type HostRateLimiter struct {
	mu           sync.Mutex
	lastRequest  map[string]time.Time
	hostDelays   map[string]time.Duration
	defaultDelay time.Duration
}

// NewHostRateLimiter creates a limiter with the given default spacing.
func NewHostRateLimiter(defaultDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		lastRequest:  make(map[string]time.Time),
		hostDelays:   make(map[string]time.Duration),
		defaultDelay: defaultDelay,
	}
}

// SetHostDelay overrides the spacing for one host.
func (rl *HostRateLimiter) SetHostDelay(host string, delay time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.hostDelays[host] = delay
}

// WaitForHost reserves the next dispatch slot for host and sleeps out
// the remaining deficit. The sleep happens outside the lock so that
// waiters for other hosts are not serialized behind it.
func (rl *HostRateLimiter) WaitForHost(ctx context.Context, host string) error {
	if host == "" {
		return nil
	}

	rl.mu.Lock()
	delay, ok := rl.hostDelays[host]
	if !ok {
		delay = rl.defaultDelay
	}
	last, hasLast := rl.lastRequest[host]
	now := time.Now()
	rl.lastRequest[host] = now
	rl.mu.Unlock()

	if !hasLast || delay <= 0 {
		return nil
	}

	wait := last.Add(addJitter(delay)).Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResetHost clears the last-request time for a host.
func (rl *HostRateLimiter) ResetHost(host string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.lastRequest, host)
}

// addJitter perturbs d by ±10% uniformly.
func addJitter(d time.Duration) time.Duration {
	jitter := float64(d) * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(float64(d) + jitter)
}
