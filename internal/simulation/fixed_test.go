package simulation

import (
	"testing"
	"time"

	"driftpursuit/netsync/internal/entity"
)

const fixedDt = 20 * time.Millisecond

func TestSimulateFixedStopsAtTargetBoundary(t *testing.T) {
	tests := []struct {
		name     string
		targetMs uint32
		wantTick uint32
	}{
		{"exact boundary", 1200, 60},
		{"just before boundary", 1199, 59},
		{"already there", 1000, 50},
		{"behind", 900, 50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := SimulateFixed(entity.State{Tick: 50}, nil, tc.targetMs, fixedDt)
			if s.Tick != tc.wantTick {
				t.Fatalf("tick = %d, want %d", s.Tick, tc.wantTick)
			}
		})
	}
}

func TestSimulateFixedRereadsControlsEveryStep(t *testing.T) {
	var q Inputs
	q.Push(52, entity.Controls{Throttle: 1})
	q.Push(55, entity.Controls{Throttle: -1})
	start := entity.State{Tick: 50}
	s, steps := SimulateFixed(start, &q, 56*20, fixedDt)
	if steps != 6 || s.Tick != 56 {
		t.Fatalf("steps %d tick %d", steps, s.Tick)
	}
	//1.- Replaying by hand with the same per-tick schedule must give the same state.
	want := start
	for tick := uint32(51); tick <= 56; tick++ {
		var c entity.Controls
		switch {
		case tick >= 55:
			c = entity.Controls{Throttle: -1}
		case tick >= 52:
			c = entity.Controls{Throttle: 1}
		}
		want = entity.Advance(want, c, float32(fixedDt.Seconds()))
	}
	if s != want {
		t.Fatalf("got %+v want %+v", s, want)
	}
}

func TestInputsRejectStaleAndReplaceDuplicates(t *testing.T) {
	var q Inputs
	if !q.Push(10, entity.Controls{Steer: 1}) || !q.Push(10, entity.Controls{Steer: -1}) {
		t.Fatal("push failed")
	}
	if q.Pending() != 1 {
		t.Fatalf("duplicate tick should replace, pending %d", q.Pending())
	}
	if c := q.ControlsAt(9); c != (entity.Controls{}) {
		t.Fatalf("future input applied early: %+v", c)
	}
	if c := q.ControlsAt(12); c.Steer != -1 {
		t.Fatalf("expected replaced controls, got %+v", c)
	}
	//1.- Tick 12 is simulated; inputs for it or earlier cannot apply retroactively.
	if q.Push(12, entity.Controls{Throttle: 1}) || q.Push(3, entity.Controls{}) {
		t.Fatal("stale input accepted")
	}
	if c := q.ControlsAt(13); c.Steer != -1 || c.Throttle != 0 {
		t.Fatalf("controls should persist until a newer input, got %+v", c)
	}
}

func TestInputsOutOfOrderArrival(t *testing.T) {
	var q Inputs
	q.Push(30, entity.Controls{Throttle: 0.5})
	q.Push(20, entity.Controls{Throttle: 1})
	q.Push(25, entity.Controls{Throttle: -1})
	if c := q.ControlsAt(26); c.Throttle != -1 {
		t.Fatalf("latest reached input should win, got %+v", c)
	}
	if q.Pending() != 1 {
		t.Fatalf("superseded inputs not trimmed: %d pending", q.Pending())
	}
	if c := q.ControlsAt(30); c.Throttle != 0.5 {
		t.Fatalf("got %+v", c)
	}
}

func TestTickOf(t *testing.T) {
	if got := TickOf(1219, fixedDt); got != 60 {
		t.Fatalf("TickOf = %d", got)
	}
	if got := TickOf(100, 0); got != 0 {
		t.Fatalf("zero dt should yield tick 0, got %d", got)
	}
}
