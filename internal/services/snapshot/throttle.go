// Package snapshot records and reads periodic portfolio valuation snapshots.
package snapshot

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultMinInterval    = 30 * time.Second
	DefaultMaxInterval    = 60 * time.Second
	DefaultDeltaThreshold = 0.001
)

// Throttle decides whether a valuation is worth persisting. It persists the
// first value, then at most once per MinInterval, and only when MaxInterval
// has passed or the value moved by at least DeltaThreshold (relative).
type Throttle struct {
	MinInterval    time.Duration
	MaxInterval    time.Duration
	DeltaThreshold float64

	now      func() time.Time
	primed   bool
	lastSave time.Time
	lastTPV  float64
}

// NewThrottle creates a throttle with the default policy.
func NewThrottle() *Throttle {
	return &Throttle{
		MinInterval:    DefaultMinInterval,
		MaxInterval:    DefaultMaxInterval,
		DeltaThreshold: DefaultDeltaThreshold,
		now:            time.Now,
	}
}

// ShouldPersist reports whether tpv should be saved now. State only advances
// when it returns true.
func (t *Throttle) ShouldPersist(tpv float64) bool {
	now := t.now()
	if !t.primed {
		t.mark(now, tpv)
		return true
	}

	elapsed := now.Sub(t.lastSave)
	if elapsed < t.MinInterval {
		return false
	}

	base := t.lastTPV
	if base == 0 {
		base = 1
	}
	change := math.Abs(tpv-t.lastTPV) / math.Abs(base)

	if elapsed >= t.MaxInterval || change >= t.DeltaThreshold {
		t.mark(now, tpv)
		return true
	}
	return false
}

// Reset forgets the last save so the next call persists.
func (t *Throttle) Reset() {
	t.primed = false
	t.lastSave = time.Time{}
	t.lastTPV = 0
}

func (t *Throttle) mark(now time.Time, tpv float64) {
	t.primed = true
	t.lastSave = now
	t.lastTPV = tpv
}

// ThrottleSet keeps one throttle per user.
type ThrottleSet struct {
	mu        sync.Mutex
	throttles map[string]*Throttle
	min, max  time.Duration
	delta     float64
	now       func() time.Time
}

// NewThrottleSet creates per-user throttles sharing one policy. Zero values
// fall back to the defaults.
func NewThrottleSet(minInterval, maxInterval time.Duration, delta float64) *ThrottleSet {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}
	if delta <= 0 {
		delta = DefaultDeltaThreshold
	}
	return &ThrottleSet{
		throttles: make(map[string]*Throttle),
		min:       minInterval,
		max:       maxInterval,
		delta:     delta,
		now:       time.Now,
	}
}

// ShouldPersist applies the user's throttle.
func (s *ThrottleSet) ShouldPersist(userID string, tpv float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(userID).ShouldPersist(tpv)
}

// Mark records a forced save so the throttle window restarts from it.
func (s *ThrottleSet) Mark(userID string, tpv float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.get(userID)
	th.mark(th.now(), tpv)
}

// Reset clears the user's throttle.
func (s *ThrottleSet) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.throttles, userID)
}

func (s *ThrottleSet) get(userID string) *Throttle {
	th, ok := s.throttles[userID]
	if !ok {
		th = &Throttle{MinInterval: s.min, MaxInterval: s.max, DeltaThreshold: s.delta, now: s.now}
		s.throttles[userID] = th
	}
	return th
}
