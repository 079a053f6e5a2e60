package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 30
)

// SlidingWindow admits at most MaxRequests per key in any trailing Window.
// Each key has its own lock; the map lock is only held to find or drop entries.
type SlidingWindow struct {
	window      time.Duration
	maxRequests int

	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	mu         sync.Mutex
	timestamps []time.Time
	removed    bool
}

// Decision is the outcome of a single Check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewSlidingWindow(config types.RateLimitConfig) *SlidingWindow {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultMaxRequests
	}

	return &SlidingWindow{
		window:      config.Window,
		maxRequests: config.MaxRequests,
		entries:     make(map[string]*windowEntry),
	}
}

func (s *SlidingWindow) Window() time.Duration { return s.window }

func (s *SlidingWindow) MaxRequests() int { return s.maxRequests }

// Check records a request from key at now if the window has room
func (s *SlidingWindow) Check(key string, now time.Time) Decision {
	for {
		e := s.entry(key)

		e.mu.Lock()
		if e.removed {
			// swept between lookup and lock
			e.mu.Unlock()
			continue
		}

		e.prune(now.Add(-s.window))
		if len(e.timestamps) >= s.maxRequests {
			retryAfter := e.timestamps[0].Add(s.window).Sub(now)
			e.mu.Unlock()
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}

		// keep timestamps ordered even if callers race on now
		if n := len(e.timestamps); n > 0 && now.Before(e.timestamps[n-1]) {
			now = e.timestamps[n-1]
		}
		e.timestamps = append(e.timestamps, now)
		remaining := s.maxRequests - len(e.timestamps)
		e.mu.Unlock()

		return Decision{Allowed: true, Remaining: remaining}
	}
}

func (s *SlidingWindow) entry(key string) *windowEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &windowEntry{}
		s.entries[key] = e
	}
	return e
}

// prune drops timestamps older than cutoff
func (e *windowEntry) prune(cutoff time.Time) {
	i := 0
	for i < len(e.timestamps) && e.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		e.timestamps = append(e.timestamps[:0], e.timestamps[i:]...)
	}
}

// Sweep removes every key with no requests inside the window and returns
// how many were removed
func (s *SlidingWindow) Sweep(now time.Time) int {
	cutoff := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		e.mu.Lock()
		e.prune(cutoff)
		if len(e.timestamps) == 0 {
			e.removed = true
			delete(s.entries, key)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Len is the number of tracked keys
func (s *SlidingWindow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start sweeps once per window until ctx is done
func (s *SlidingWindow) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.window)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					log.Debug().Int("removed", n).Int("tracked", s.Len()).Msg("rate limit sweep")
				}
			}
		}
	}()
}
