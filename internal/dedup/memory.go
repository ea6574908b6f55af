// Package dedup implements the duplicate index: a set of article fingerprints with a
// retention window and per-fingerprint atomic claims.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const (
	DefaultRetention = 24 * time.Hour
	DefaultClaimTTL  = 30 * time.Minute
	defaultShards    = 32
)

// Options tune an index. Zero values fall back to the defaults.
type Options struct {
	Retention time.Duration
	// ClaimTTL bounds how long an uncommitted claim blocks other callers.
	ClaimTTL time.Duration
	Shards   int
	Now      func() time.Time
}

func (o *Options) setDefaults() {
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = DefaultClaimTTL
	}
	if o.Shards <= 0 {
		o.Shards = defaultShards
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type entry struct {
	firstSeen time.Time
	recorded  bool
	claimedAt time.Time
	claimed   bool
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// MemoryIndex keeps fingerprints in process memory, split over independently locked shards.
type MemoryIndex struct {
	shards    []*shard
	retention time.Duration
	claimTTL  time.Duration
	now       func() time.Time
}

var _ ports.DuplicateIndex = (*MemoryIndex)(nil)

// NewMemoryIndex builds an empty index.
func NewMemoryIndex(opts Options) *MemoryIndex {
	opts.setDefaults()
	idx := &MemoryIndex{
		shards:    make([]*shard, opts.Shards),
		retention: opts.Retention,
		claimTTL:  opts.ClaimTTL,
		now:       opts.Now,
	}
	for i := range idx.shards {
		idx.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return idx
}

func (m *MemoryIndex) shardFor(fingerprint string) *shard {
	return m.shards[xxhash.Sum64String(fingerprint)%uint64(len(m.shards))]
}

func (m *MemoryIndex) expired(e *entry, now time.Time) bool {
	return e.recorded && now.Sub(e.firstSeen) >= m.retention
}

func (m *MemoryIndex) claimStale(e *entry, now time.Time) bool {
	return e.claimed && now.Sub(e.claimedAt) >= m.claimTTL
}

// lookup returns the live entry for fingerprint, dropping expired state on the way.
// Callers hold the shard lock.
func (m *MemoryIndex) lookup(s *shard, fingerprint string, now time.Time) *entry {
	e, ok := s.entries[fingerprint]
	if !ok {
		return nil
	}
	if m.expired(e, now) {
		e.recorded = false
		e.firstSeen = time.Time{}
	}
	if m.claimStale(e, now) {
		e.claimed = false
		e.claimedAt = time.Time{}
	}
	if !e.recorded && !e.claimed {
		delete(s.entries, fingerprint)
		return nil
	}
	return e
}

// IsDuplicate reports whether fingerprint is recorded and not expired.
func (m *MemoryIndex) IsDuplicate(_ context.Context, fingerprint string) (bool, error) {
	s := m.shardFor(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := m.lookup(s, fingerprint, m.now())
	return e != nil && e.recorded, nil
}

// Record inserts fingerprint; an existing live record keeps its first-seen time.
func (m *MemoryIndex) Record(_ context.Context, fingerprint string, seenAt time.Time) error {
	s := m.shardFor(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	m.recordLocked(s, fingerprint, seenAt)
	return nil
}

func (m *MemoryIndex) recordLocked(s *shard, fingerprint string, seenAt time.Time) *entry {
	e := m.lookup(s, fingerprint, m.now())
	if e == nil {
		e = &entry{}
		s.entries[fingerprint] = e
	}
	if !e.recorded {
		e.recorded = true
		e.firstSeen = seenAt
	}
	return e
}

// Claim reserves fingerprint for processing. It returns false when the fingerprint is
// already recorded or another caller holds a live claim.
func (m *MemoryIndex) Claim(_ context.Context, fingerprint string) (bool, error) {
	s := m.shardFor(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	e := m.lookup(s, fingerprint, now)
	if e != nil {
		return false, nil
	}
	s.entries[fingerprint] = &entry{claimed: true, claimedAt: now}
	return true, nil
}

// Commit records fingerprint and drops the claim.
func (m *MemoryIndex) Commit(_ context.Context, fingerprint string, seenAt time.Time) error {
	s := m.shardFor(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := m.recordLocked(s, fingerprint, seenAt)
	e.claimed = false
	e.claimedAt = time.Time{}
	return nil
}

// Release drops an uncommitted claim so a later cycle can retry the article.
func (m *MemoryIndex) Release(_ context.Context, fingerprint string) error {
	s := m.shardFor(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fingerprint]
	if !ok {
		return nil
	}
	e.claimed = false
	e.claimedAt = time.Time{}
	if !e.recorded {
		delete(s.entries, fingerprint)
	}
	return nil
}

// Sweep removes records older than the retention window and returns how many went.
// Claimed fingerprints are left alone.
func (m *MemoryIndex) Sweep(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for fp, e := range s.entries {
			if e.claimed && !m.claimStale(e, now) {
				continue
			}
			if !e.recorded || m.expired(e, now) {
				delete(s.entries, fp)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len counts live records.
func (m *MemoryIndex) Len() int {
	now := m.now()
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.recorded && !m.expired(e, now) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Snapshot returns the live records for persistence.
func (m *MemoryIndex) Snapshot() map[string]time.Time {
	now := m.now()
	out := make(map[string]time.Time)
	for _, s := range m.shards {
		s.mu.Lock()
		for fp, e := range s.entries {
			if e.recorded && !m.expired(e, now) {
				out[fp] = e.firstSeen
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Restore loads persisted records. Well-formed entries are applied even when others
// are rejected; the rejection is reported as a duplicate index error.
func (m *MemoryIndex) Restore(entries map[string]time.Time) (int, error) {
	loaded, malformed := 0, 0
	for fp, seen := range entries {
		if len(fp) != 64 || seen.IsZero() {
			malformed++
			continue
		}
		s := m.shardFor(fp)
		s.mu.Lock()
		m.recordLocked(s, fp, seen)
		s.mu.Unlock()
		loaded++
	}
	if malformed > 0 {
		return loaded, domain.DuplicateError("", fmt.Errorf("%d malformed fingerprint records", malformed))
	}
	return loaded, nil
}
