package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDefaults(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{})
	assert.Equal(t, 60*time.Second, s.Window())
	assert.Equal(t, 30, s.MaxRequests())
}

func TestThirtyFirstRequestRejected(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{})

	for i := 0; i < 30; i++ {
		d := s.Check("10.0.0.1", epoch.Add(time.Duration(i)*300*time.Millisecond))
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 30-(i+1), d.Remaining)
	}

	d := s.Check("10.0.0.1", epoch.Add(20*time.Second))
	assert.False(t, d.Allowed)
	// oldest request was at epoch, so it leaves the window 40s later
	assert.Equal(t, 40*time.Second, d.RetryAfter)
}

func TestWindowSlides(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{Window: 10 * time.Second, MaxRequests: 2})

	assert.True(t, s.Check("a", epoch).Allowed)
	assert.True(t, s.Check("a", epoch.Add(5*time.Second)).Allowed)
	assert.False(t, s.Check("a", epoch.Add(9*time.Second)).Allowed)

	// first request falls out of the window
	assert.True(t, s.Check("a", epoch.Add(10*time.Second+time.Millisecond)).Allowed)
	assert.False(t, s.Check("a", epoch.Add(11*time.Second)).Allowed)
}

func TestRejectedRequestsAreNotRecorded(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{Window: 10 * time.Second, MaxRequests: 1})

	assert.True(t, s.Check("a", epoch).Allowed)
	for i := 1; i < 10; i++ {
		assert.False(t, s.Check("a", epoch.Add(time.Duration(i)*time.Second)).Allowed)
	}
	assert.True(t, s.Check("a", epoch.Add(10*time.Second+time.Millisecond)).Allowed)
}

func TestKeysAreIndependent(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{Window: time.Minute, MaxRequests: 1})

	assert.True(t, s.Check("a", epoch).Allowed)
	assert.False(t, s.Check("a", epoch).Allowed)
	assert.True(t, s.Check("b", epoch).Allowed)
}

func TestSweepRemovesIdleKeys(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{})

	s.Check("idle", epoch)
	s.Check("active", epoch.Add(30*time.Second))
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, 0, s.Sweep(epoch.Add(59*time.Second)))
	assert.Equal(t, 1, s.Sweep(epoch.Add(61*time.Second)))
	assert.Equal(t, 1, s.Len())

	assert.Equal(t, 1, s.Sweep(epoch.Add(91*time.Second)))
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentBurstNeverExceedsMax(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{Window: time.Minute, MaxRequests: 30})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.Check("burst", epoch.Add(time.Duration(i)*time.Millisecond)).Allowed {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(30), admitted.Load())
}

func TestConcurrentSweepDoesNotLoseCounts(t *testing.T) {
	s := NewSlidingWindow(types.RateLimitConfig{Window: time.Minute, MaxRequests: 10})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if s.Check("k", epoch).Allowed {
				admitted.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			s.Sweep(epoch)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted.Load())
}
