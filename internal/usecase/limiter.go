package usecase

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/shelfwatch/backend/internal/retailer"
)

const defaultGlobalConcurrency = 16

// Limiter bounds extraction attempts globally and per retailer. Each
// retailer also gets a token bucket sized from its requests_per_second.
type Limiter struct {
	global *semaphore.Weighted

	mu        sync.Mutex
	retailers map[string]*retailerLimit
}

type retailerLimit struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

// NewLimiter creates a limiter with the given global cap
func NewLimiter(globalConcurrency int) *Limiter {
	if globalConcurrency <= 0 {
		globalConcurrency = defaultGlobalConcurrency
	}
	return &Limiter{
		global:    semaphore.NewWeighted(int64(globalConcurrency)),
		retailers: make(map[string]*retailerLimit),
	}
}

func (l *Limiter) forRetailer(p *retailer.Profile) *retailerLimit {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rl, ok := l.retailers[p.Name]; ok {
		return rl
	}

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	burst := concurrency
	if p.RequestsPerSecond > 0 {
		limit = rate.Limit(p.RequestsPerSecond)
	}

	rl := &retailerLimit{
		sem:  semaphore.NewWeighted(int64(concurrency)),
		rate: rate.NewLimiter(limit, burst),
	}
	l.retailers[p.Name] = rl
	return rl
}

// Acquire blocks until an attempt against the retailer may start. The
// returned release func must be called once the attempt finishes.
func (l *Limiter) Acquire(ctx context.Context, p *retailer.Profile) (func(), error) {
	rl := l.forRetailer(p)

	// Retailer slot first so a slow retailer does not hold global slots while queued
	if err := rl.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := l.global.Acquire(ctx, 1); err != nil {
		rl.sem.Release(1)
		return nil, err
	}
	if err := rl.rate.Wait(ctx); err != nil {
		l.global.Release(1)
		rl.sem.Release(1)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.global.Release(1)
			rl.sem.Release(1)
		})
	}, nil
}
