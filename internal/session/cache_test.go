package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type evicted struct {
	key    string
	reason EvictReason
}

func newTestCache(t *testing.T, opts Options[string, int]) (*Cache[string, int], *clock, *[]evicted) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	var got []evicted
	opts.Now = clk.Now
	opts.OnEvict = func(key string, _ int, reason EvictReason) {
		mu.Lock()
		got = append(got, evicted{key, reason})
		mu.Unlock()
	}
	c := New(opts)
	t.Cleanup(c.Close)
	return c, clk, &got
}

func value(v int) func() (int, error) {
	return func() (int, error) { return v, nil }
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	c, _, _ := newTestCache(t, Options[string, int]{MaxEntries: 10})
	var calls int32
	create := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	}

	v, err := c.GetOrCreate("1_html", create)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	v, err = c.GetOrCreate("1_html", create)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetOrCreate_PropagatesCreateError(t *testing.T) {
	c, _, _ := newTestCache(t, Options[string, int]{MaxEntries: 10})
	_, err := c.GetOrCreate("k", func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestSizeBoundEvictsLeastRecentlyUsed(t *testing.T) {
	c, _, got := newTestCache(t, Options[string, int]{MaxEntries: 2})
	_, _ = c.GetOrCreate("a", value(1))
	_, _ = c.GetOrCreate("b", value(2))
	_, ok := c.Get("a")
	require.True(t, ok)
	_, _ = c.GetOrCreate("c", value(3))

	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []evicted{{"b", EvictSize}}, *got)
}

func TestWriteTTL(t *testing.T) {
	c, clk, got := newTestCache(t, Options[string, int]{MaxEntries: 10, WriteTTL: 30 * time.Minute, AccessTTL: time.Hour})
	_, _ = c.GetOrCreate("a", value(1))

	clk.Advance(20 * time.Minute)
	_, ok := c.Get("a")
	require.True(t, ok)

	clk.Advance(10 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []evicted{{"a", EvictExpiredWrite}}, *got)
}

func TestAccessTTL(t *testing.T) {
	c, clk, got := newTestCache(t, Options[string, int]{MaxEntries: 10, WriteTTL: 30 * time.Minute, AccessTTL: 10 * time.Minute})
	_, _ = c.GetOrCreate("a", value(1))
	_, _ = c.GetOrCreate("b", value(2))

	// reading a keeps it alive; b idles out
	clk.Advance(6 * time.Minute)
	_, ok := c.Get("a")
	require.True(t, ok)
	clk.Advance(6 * time.Minute)

	assert.Equal(t, 1, c.Cleanup())
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []evicted{{"b", EvictExpiredAccess}}, *got)
}

func TestInvalidateAndClose(t *testing.T) {
	clk := &clock{now: time.Now()}
	var reasons []EvictReason
	c := New(Options[string, int]{
		MaxEntries:      10,
		CleanupInterval: time.Millisecond,
		Now:             clk.Now,
		OnEvict: func(_ string, _ int, r EvictReason) {
			reasons = append(reasons, r)
		},
	})
	_, _ = c.GetOrCreate("a", value(1))
	_, _ = c.GetOrCreate("b", value(2))

	c.Invalidate("a")
	c.Invalidate("missing")
	c.Close()
	c.Close()

	assert.Equal(t, []EvictReason{EvictExplicit, EvictClosed}, reasons)
	assert.Equal(t, 0, c.Len())
}

func TestLock_SerializesPerKey(t *testing.T) {
	c, _, _ := newTestCache(t, Options[string, int]{MaxEntries: 10})

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := c.Lock("1_vue_project")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxActive)

	// different keys do not block each other
	unlockA := c.Lock("a")
	unlockB := c.Lock("b")
	unlockB()
	unlockA()
	unlockA()

	c.locksMu.Lock()
	assert.Empty(t, c.locks)
	c.locksMu.Unlock()
}
