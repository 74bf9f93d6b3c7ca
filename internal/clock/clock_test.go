package clock

import (
	"testing"
	"time"
)

type fakeTime struct {
	t time.Time
}

func (f *fakeTime) now() time.Time { return f.t }

func (f *fakeTime) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestServerClockCountsFromStart(t *testing.T) {
	ft := &fakeTime{t: time.Unix(1000, 0)}
	c := NewServer(ft.now)
	if !c.Synced() || c.NowMs() != 0 {
		t.Fatalf("fresh server clock: synced=%v ms=%d", c.Synced(), c.NowMs())
	}
	ft.advance(1219 * time.Millisecond)
	if c.NowMs() != 1219 || c.Tick(20*time.Millisecond) != 60 {
		t.Fatalf("ms=%d tick=%d", c.NowMs(), c.Tick(20*time.Millisecond))
	}
}

func TestSyncAppliesHalfRTTAndOffsetOnce(t *testing.T) {
	ft := &fakeTime{t: time.Unix(50, 0)}
	c := New(ft.now)
	ft.advance(5 * time.Second)
	if c.Synced() {
		t.Fatal("client clock synced before SetTime")
	}
	//1.- Server said 1000ms; rtt 80ms adds 40ms and the 60ms offset keeps us ahead.
	if !c.Sync(1000, 80*time.Millisecond, 60*time.Millisecond) {
		t.Fatal("first sync ignored")
	}
	if got := c.NowMs(); got != 1100 {
		t.Fatalf("NowMs after sync = %d, want 1100", got)
	}
	if got := c.Lead(); got != 100*time.Millisecond {
		t.Fatalf("lead = %v, want 100ms", got)
	}
	ft.advance(20 * time.Millisecond)
	if got := c.Tick(20 * time.Millisecond); got != 56 {
		t.Fatalf("tick = %d, want 56", got)
	}
	//2.- A second SetTime must not move the clock.
	if c.Sync(0, 0, 0) {
		t.Fatal("second sync applied")
	}
	if got := c.NowMs(); got != 1120 || c.Lead() != 100*time.Millisecond {
		t.Fatalf("clock moved by second sync: %d, lead %v", got, c.Lead())
	}
}

func TestClockGuards(t *testing.T) {
	var c *Clock
	if c.Sync(1, 0, 0) || c.Synced() || c.NowMs() != 0 {
		t.Fatal("nil clock should be inert")
	}
	wall := New(nil)
	if wall.Tick(0) != 0 {
		t.Fatal("zero dt should give tick 0")
	}
}
