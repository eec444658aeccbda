// Package ratelimit provides a per-IP limiter used to bound unauthenticated
// webhook probes without rejecting the chain-watch provider outright.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultCleanupTTL      = 10 * time.Minute
)

// limiterEntry stores a rate limiter with its last access time for
// TTL-based cleanup
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter rate limits by source IP with TTL cleanup to prevent
// unbounded memory growth
type IPLimiter struct {
	limiters   map[string]*limiterEntry
	mu         sync.RWMutex
	rate       rate.Limit
	burst      int
	cleanupTTL time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewIPLimiter creates a limiter allowing requestsPerWindow events per
// window per IP, refilled continuously over the window.
func NewIPLimiter(requestsPerWindow int, window time.Duration) *IPLimiter {
	if requestsPerWindow <= 0 {
		requestsPerWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	l := &IPLimiter{
		limiters:   make(map[string]*limiterEntry),
		rate:       rate.Every(window / time.Duration(requestsPerWindow)),
		burst:      requestsPerWindow,
		cleanupTTL: defaultCleanupTTL,
		stopCh:     make(chan struct{}),
	}

	go l.cleanupLoop(defaultCleanupInterval)
	return l
}

// Allow reports whether the given IP is within its limit
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// Stop terminates the cleanup goroutine
func (l *IPLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *IPLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *IPLimiter) cleanup() {
	cutoff := time.Now().Add(-l.cleanupTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
