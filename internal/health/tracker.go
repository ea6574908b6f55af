// Package health tracks per-source availability across cycles.
package health

import (
	"sort"
	"sync"
	"time"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const (
	DefaultDegradedAfter = 3
	DefaultDisableAfter  = 2
	DefaultCooldown      = 2 * time.Hour
)

// Config holds the state machine thresholds.
type Config struct {
	// DegradedAfter consecutive failures move a HEALTHY source to DEGRADED.
	DegradedAfter int
	// DisableAfter further consecutive failures move a DEGRADED source to DISABLED.
	DisableAfter int
	// Cooldown after which a DISABLED source gets one probationary attempt. Zero keeps
	// it disabled until Reset.
	Cooldown time.Duration
	Now      func() time.Time
}

type sourceEntry struct {
	mu     sync.Mutex
	health domain.SourceHealth
}

// Tracker is safe for concurrent use; each source is locked independently.
type Tracker struct {
	cfg     Config
	mu      sync.RWMutex
	entries map[string]*sourceEntry
}

var _ ports.HealthTracker = (*Tracker)(nil)

// NewTracker builds a tracker. DegradedAfter below one falls back to the default;
// a negative DisableAfter does too.
func NewTracker(cfg Config) *Tracker {
	if cfg.DegradedAfter < 1 {
		cfg.DegradedAfter = DefaultDegradedAfter
	}
	if cfg.DisableAfter < 0 {
		cfg.DisableAfter = DefaultDisableAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{cfg: cfg, entries: make(map[string]*sourceEntry)}
}

func (t *Tracker) entry(source string) *sourceEntry {
	t.mu.RLock()
	e, ok := t.entries[source]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[source]; ok {
		return e
	}
	e = &sourceEntry{health: domain.SourceHealth{Source: source, State: domain.HealthHealthy}}
	t.entries[source] = e
	return e
}

func (t *Tracker) cooledDown(h domain.SourceHealth, now time.Time) bool {
	return h.State == domain.HealthDisabled && t.cfg.Cooldown > 0 && now.Sub(h.DisabledAt) >= t.cfg.Cooldown
}

// CurrentState is the state used for scheduling. A DISABLED source whose cool-down has
// elapsed reads as HEALTHY until its probationary run reports an outcome.
func (t *Tracker) CurrentState(source string) domain.HealthState {
	e := t.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.cooledDown(e.health, t.cfg.Now()) {
		return domain.HealthHealthy
	}
	return e.health.State
}

// RecordOutcome applies one source run outcome and returns the resulting record.
func (t *Tracker) RecordOutcome(source string, success bool, err error) domain.SourceHealth {
	e := t.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.cfg.Now()
	h := &e.health
	if success {
		h.State = domain.HealthHealthy
		h.ConsecutiveFailures = 0
		h.LastSuccess = now
		h.DisabledAt = time.Time{}
		h.Probation = false
		return *h
	}

	h.ConsecutiveFailures++
	h.LastFailure = now
	if err != nil {
		h.LastError = err.Error()
	}

	switch {
	case h.State == domain.HealthDisabled:
		// Failed probation or a straggling outcome: stay disabled and restart the cool-down.
		h.DisabledAt = now
	case h.ConsecutiveFailures >= t.cfg.DegradedAfter+t.cfg.DisableAfter:
		h.State = domain.HealthDisabled
		h.DisabledAt = now
	case h.ConsecutiveFailures >= t.cfg.DegradedAfter:
		h.State = domain.HealthDegraded
	}
	h.Probation = false
	return *h
}

// Reset returns a source to HEALTHY, e.g. after an operator fixed its configuration.
func (t *Tracker) Reset(source string) domain.SourceHealth {
	e := t.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.health = domain.SourceHealth{
		Source:      source,
		State:       domain.HealthHealthy,
		LastSuccess: e.health.LastSuccess,
		LastFailure: e.health.LastFailure,
		LastError:   e.health.LastError,
	}
	return e.health
}

// Health returns the record of one source with the probation flag resolved.
func (t *Tracker) Health(source string) domain.SourceHealth {
	e := t.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.health
	h.Probation = t.cooledDown(h, t.cfg.Now())
	return h
}

// Snapshot returns every known source record ordered by name.
func (t *Tracker) Snapshot() []domain.SourceHealth {
	t.mu.RLock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)

	out := make([]domain.SourceHealth, 0, len(names))
	for _, name := range names {
		out = append(out, t.Health(name))
	}
	return out
}

// Restore seeds the tracker from persisted records, replacing what it knows.
func (t *Tracker) Restore(entries []domain.SourceHealth) {
	for _, h := range entries {
		if h.Source == "" {
			continue
		}
		switch h.State {
		case domain.HealthHealthy, domain.HealthDegraded, domain.HealthDisabled:
		default:
			h.State = domain.HealthHealthy
		}
		h.Probation = false
		e := t.entry(h.Source)
		e.mu.Lock()
		e.health = h
		e.mu.Unlock()
	}
}
