package snapshot

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestThrottle(c *fakeClock) *Throttle {
	th := NewThrottle()
	th.now = c.now
	return th
}

func TestThrottle_Policy(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)}
	th := newTestThrottle(clock)

	steps := []struct {
		advance time.Duration
		tpv     float64
		want    bool
	}{
		{0, 10000, true},                 // first call always persists
		{10 * time.Second, 20000, false}, // inside min interval, even on a big move
		{25 * time.Second, 10005, false}, // 35s, 0.05% move
		{0, 10010, true},                 // 35s, 0.1% move
		{40 * time.Second, 10010, false}, // 40s since save, no move
		{20 * time.Second, 10010, true},  // 60s since save
	}

	for i, s := range steps {
		clock.advance(s.advance)
		if got := th.ShouldPersist(s.tpv); got != s.want {
			t.Fatalf("step %d: ShouldPersist(%v) = %v, want %v", i, s.tpv, got, s.want)
		}
	}
}

func TestThrottle_StateOnlyAdvancesOnPersist(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := newTestThrottle(clock)

	th.ShouldPersist(100)
	for i := 0; i < 5; i++ {
		clock.advance(10 * time.Second)
		th.ShouldPersist(100)
	}
	// 50s of rejected calls must not have moved lastSave
	clock.advance(10 * time.Second)
	if !th.ShouldPersist(100) {
		t.Error("expected persist at 60s after the first save")
	}
}

func TestThrottle_ZeroLastTPV(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := newTestThrottle(clock)

	th.ShouldPersist(0)
	clock.advance(31 * time.Second)
	if th.ShouldPersist(0.0005) {
		t.Error("change of 0.0005 over base 1 is below threshold")
	}
	if !th.ShouldPersist(0.002) {
		t.Error("change of 0.002 over base 1 should persist")
	}
}

func TestThrottle_Reset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := newTestThrottle(clock)

	th.ShouldPersist(1)
	if th.ShouldPersist(1) {
		t.Fatal("second immediate call should be throttled")
	}
	th.Reset()
	if !th.ShouldPersist(1) {
		t.Error("call after Reset should persist")
	}
}

func TestThrottleSet_PerUser(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	set := NewThrottleSet(0, 0, 0)
	set.now = clock.now

	if !set.ShouldPersist("a", 1) || !set.ShouldPersist("b", 1) {
		t.Fatal("first call per user should persist")
	}
	if set.ShouldPersist("a", 1) {
		t.Error("user a should be throttled")
	}

	set.Mark("b", 5)
	clock.advance(31 * time.Second)
	if set.ShouldPersist("b", 5) {
		t.Error("forced mark should restart user b's window")
	}

	set.Reset("a")
	if !set.ShouldPersist("a", 1) {
		t.Error("reset user should persist")
	}
}
