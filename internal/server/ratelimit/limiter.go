// Package ratelimit is the in-process rate limiter collaborator: one token
// bucket per identifier, evicted once idle.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
}

// Checker is what the services depend on.
type Checker interface {
	Check(identifier string, limit int, window time.Duration) Result
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

// Limiter allows limit events per window per identifier, with a burst of
// limit. State lives in the instance, never in package globals.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func New() *Limiter {
	return &Limiter{entries: make(map[string]*entry), now: time.Now}
}

func (l *Limiter) Check(identifier string, limit int, window time.Duration) Result {
	if limit <= 0 || window <= 0 {
		return Result{Allowed: false}
	}
	now := l.now()
	key := fmt.Sprintf("%s|%d|%s", identifier, limit, window)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		e = &entry{limiter: rate.NewLimiter(every, limit), window: window}
		l.entries[key] = e
	}
	e.lastSeen = now

	allowed := e.limiter.AllowN(now, 1)
	remaining := int(e.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: allowed, Remaining: remaining}
}

// Sweep drops identifiers idle for longer than their window, at which point
// their bucket is full again anyway.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > e.window {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
