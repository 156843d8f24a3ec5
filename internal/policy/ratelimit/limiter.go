// Package ratelimit admits outbound requests under an in-flight cap and a
// token bucket rate.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/hn-archiver/internal/metrics"
)

// Config holds limiter configuration. Zero values disable the matching limit.
type Config struct {
	MaxInFlight       int
	RequestsPerSecond float64
	Burst             int
}

// Limiter gates requests. A nil *Limiter admits everything.
type Limiter struct {
	sem    *semaphore.Weighted
	bucket *rate.Limiter
}

// New creates a Limiter, or nil when cfg enables no limit.
func New(cfg Config) *Limiter {
	if cfg.MaxInFlight <= 0 && cfg.RequestsPerSecond <= 0 {
		return nil
	}
	l := &Limiter{}
	if cfg.MaxInFlight > 0 {
		l.sem = semaphore.NewWeighted(int64(cfg.MaxInFlight))
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// Acquire blocks until a request may start. The returned release must be
// called when the request finishes.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	start := time.Now()
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	release := func() {}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("in-flight limit wait: %w", err)
		}
		release = func() { l.sem.Release(1) }
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveAdmissionWait(waited)
	}
	return release, nil
}
