// Package ratelimit paces requests per source.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// gate spaces acquisitions for one source. The slot channel serializes waiters in
// arrival order; last is only touched by the slot holder.
type gate struct {
	slot     chan struct{}
	interval atomic.Int64
	last     time.Time
}

func newGate(interval time.Duration) *gate {
	g := &gate{slot: make(chan struct{}, 1)}
	g.interval.Store(int64(interval))
	return g
}

// Limiter holds one gate per source. Acquisitions for one source are spaced at least
// the source's interval apart, measured from the moment the previous one was granted;
// different sources never wait on each other.
type Limiter struct {
	mu              sync.Mutex
	gates           map[string]*gate
	defaultInterval time.Duration
	now             func() time.Time
}

var _ ports.Pacer = (*Limiter)(nil)

// New builds a limiter; sources without a configured interval use defaultInterval.
func New(defaultInterval time.Duration) *Limiter {
	if defaultInterval <= 0 {
		defaultInterval = time.Second
	}
	return &Limiter{
		gates:           make(map[string]*gate),
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

// Configure registers the interval of every source in the set.
func (l *Limiter) Configure(sources []domain.SourceConfig) {
	for _, src := range sources {
		l.SetInterval(src.Name, src.RateLimit)
	}
}

// SetInterval (re)paces a source. The first acquisition after registration is immediate;
// a retuned source keeps its last acquisition time.
func (l *Limiter) SetInterval(source string, interval time.Duration) {
	if interval <= 0 {
		interval = l.defaultInterval
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok := l.gates[source]; ok {
		g.interval.Store(int64(interval))
		return
	}
	l.gates[source] = newGate(interval)
}

// Acquire blocks until at least the source's interval has passed since the previous
// granted acquisition. The only error is the context's; a cancelled wait does not count
// as an acquisition.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	_, err := l.acquire(ctx, source)
	return err
}

// acquire returns the instant the acquisition was granted.
func (l *Limiter) acquire(ctx context.Context, source string) (time.Time, error) {
	g := l.gate(source)

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { <-g.slot }()

	for !g.last.IsZero() {
		wait := g.last.Add(time.Duration(g.interval.Load())).Sub(l.now())
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Time{}, ctx.Err()
		case <-timer.C:
		}
	}

	g.last = l.now()
	return g.last, nil
}

func (l *Limiter) gate(source string) *gate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[source]
	if !ok {
		g = newGate(l.defaultInterval)
		l.gates[source] = g
	}
	return g
}
