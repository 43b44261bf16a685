package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SearchLimiter bounds outstanding search dispatch. The global limiter is
// shared process-wide so total external calls stay within upstream rate
// limits regardless of how many jobs run concurrently; per-domain limiters
// add politeness for enrichment fetches against result hosts.
type SearchLimiter struct {
	global *rate.Limiter

	mu           sync.RWMutex
	perDomain    map[string]*rate.Limiter
	domainRate   rate.Limit
	domainsBurst int
}

// NewSearchLimiter creates a limiter with a shared global rate and a default
// per-domain rate.
func NewSearchLimiter(globalRPS float64, globalBurst int) *SearchLimiter {
	if globalBurst <= 0 {
		globalBurst = 1
	}
	return &SearchLimiter{
		global:       rate.NewLimiter(rate.Limit(globalRPS), globalBurst),
		perDomain:    make(map[string]*rate.Limiter),
		domainRate:   rate.Limit(1),
		domainsBurst: 2,
	}
}

// Wait blocks until the shared global rate admits one call.
func (l *SearchLimiter) Wait(ctx context.Context) error {
	return l.global.Wait(ctx)
}

// Allow reports whether a call is admitted without waiting.
func (l *SearchLimiter) Allow() bool {
	return l.global.Allow()
}

// WaitDomain blocks on both the global rate and the domain's own rate.
func (l *SearchLimiter) WaitDomain(ctx context.Context, domain string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.domainLimiter(domain).Wait(ctx)
}

// SetDomainRate overrides the rate for one domain.
func (l *SearchLimiter) SetDomainRate(domain string, rps float64, burst int) {
	if burst <= 0 {
		burst = l.domainsBurst
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perDomain[domain] = rate.NewLimiter(rate.Limit(rps), burst)
}

func (l *SearchLimiter) domainLimiter(domain string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.perDomain[domain]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.perDomain[domain]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.domainRate, l.domainsBurst)
	l.perDomain[domain] = limiter
	return limiter
}
