package ratelimit

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/domain"
)

func TestFirstAcquireIsImmediate(t *testing.T) {
	t.Parallel()

	l := New(time.Hour)
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "babypips"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireSpacesCallsForOneSource(t *testing.T) {
	t.Parallel()

	const interval = 80 * time.Millisecond
	l := New(time.Second)
	l.Configure([]domain.SourceConfig{{Name: "babypips", RateLimit: interval}})

	var grants []time.Time
	for i := 0; i < 3; i++ {
		at, err := l.acquire(context.Background(), "babypips")
		require.NoError(t, err)
		grants = append(grants, at)
	}

	for i := 1; i < len(grants); i++ {
		assert.GreaterOrEqual(t, grants[i].Sub(grants[i-1]), interval)
	}
}

func TestLateCallerDoesNotEarnABurst(t *testing.T) {
	t.Parallel()

	const interval = 40 * time.Millisecond
	l := New(interval)

	first, err := l.acquire(context.Background(), "fxstreet")
	require.NoError(t, err)
	// The caller shows up well after its slot; the next grant still waits a full interval.
	time.Sleep(3 * interval)
	second, err := l.acquire(context.Background(), "fxstreet")
	require.NoError(t, err)
	third, err := l.acquire(context.Background(), "fxstreet")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, second.Sub(first), interval)
	assert.GreaterOrEqual(t, third.Sub(second), interval)
}

func TestConcurrentAcquireKeepsSpacingUnderLoad(t *testing.T) {
	t.Parallel()

	const (
		interval = 2 * time.Millisecond
		callers  = 8
		perCall  = 15
	)
	l := New(interval)

	stop := make(chan struct{})
	var busy sync.WaitGroup
	for i := 0; i < 4; i++ {
		busy.Add(1)
		go func() {
			defer busy.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCall; j++ {
				at, err := l.acquire(context.Background(), "kabutan")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				grants = append(grants, at)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(stop)
	busy.Wait()

	require.Len(t, grants, callers*perCall)
	slices.SortFunc(grants, func(a, b time.Time) int { return a.Compare(b) })
	for i := 1; i < len(grants); i++ {
		assert.GreaterOrEqual(t, grants[i].Sub(grants[i-1]), interval, "grant %d", i)
	}
}

func TestSetIntervalRetunesExistingSource(t *testing.T) {
	t.Parallel()

	l := New(time.Hour)
	_, err := l.acquire(context.Background(), "babypips")
	require.NoError(t, err)

	l.SetInterval("babypips", 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "babypips"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSourcesDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	l := New(time.Hour)
	require.NoError(t, l.Acquire(context.Background(), "a"))

	var wg sync.WaitGroup
	start := time.Now()
	for _, name := range []string{"b", "c", "d"} {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background(), source))
		}(name)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquireHonoursCancellation(t *testing.T) {
	t.Parallel()

	l := New(time.Hour)
	require.NoError(t, l.Acquire(context.Background(), "kabutan"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(ctx, "kabutan"))
}
