// Package interp renders remote entities slightly in the past by blending buffered snapshots.
package interp

import (
	"time"

	"driftpursuit/netsync/internal/entity"
)

// Mode selects the blending curve.
type Mode int

const (
	// Linear blends the two snapshots around the render time.
	Linear Mode = iota
	// Quadratic fits a Lagrange parabola through the last three snapshots.
	Quadratic
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == Quadratic {
		return "quadratic"
	}
	return "linear"
}

// ParseMode maps a configuration value onto a Mode. Unknown values report false.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "linear", "":
		return Linear, true
	case "quadratic":
		return Quadratic, true
	default:
		return Linear, false
	}
}

// RenderDelay is how far behind the synced clock remote entities are drawn.
func RenderDelay(snapshotInterval, safetyMargin, rtt time.Duration) time.Duration {
	return snapshotInterval + safetyMargin + rtt/2
}

// Buffer holds the snapshots of one remote entity. Only the frame loop touches it.
type Buffer struct {
	dt time.Duration

	prevPast entity.State
	past     entity.State
	future   entity.State
	primed   bool

	queue  []entity.State
	newest uint32
	seen   bool

	last    entity.State
	hasLast bool
}

// NewBuffer creates a buffer for snapshots produced every dt.
func NewBuffer(dt time.Duration) *Buffer {
	return &Buffer{dt: dt}
}

// Push queues a snapshot. Snapshots not newer than the newest accepted one are dropped and
// reported as false.
func (b *Buffer) Push(s entity.State) bool {
	if b.seen && s.Tick <= b.newest {
		return false
	}
	b.queue = append(b.queue, s)
	b.newest = s.Tick
	b.seen = true
	return true
}

// Len returns the number of queued snapshots not yet promoted to the blend window.
func (b *Buffer) Len() int {
	return len(b.queue)
}

// Ready reports whether at least one snapshot has reached the blend window.
func (b *Buffer) Ready() bool {
	return b.primed
}

func (b *Buffer) tickMs(tick uint32) float64 {
	return float64(tick) * float64(b.dt) / float64(time.Millisecond)
}

// Advance drains the queue while the future snapshot is no later than renderMs, shifting
// prevPast ← past ← future ← front.
func (b *Buffer) Advance(renderMs float64) {
	if !b.primed {
		if len(b.queue) == 0 {
			return
		}
		//1.- The first snapshot fills the whole window so sampling can start immediately.
		first := b.pop()
		b.prevPast, b.past, b.future = first, first, first
		b.primed = true
	}
	for len(b.queue) > 0 && b.tickMs(b.future.Tick) <= renderMs {
		b.prevPast = b.past
		b.past = b.future
		b.future = b.pop()
	}
}

func (b *Buffer) pop() entity.State {
	front := b.queue[0]
	b.queue[0] = entity.State{}
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = b.queue[:0:0]
	}
	return front
}

// Sample returns the blended state at renderMs. It reports false until a snapshot has been
// promoted by Advance.
func (b *Buffer) Sample(renderMs float64, mode Mode) (entity.State, bool) {
	if !b.primed {
		return entity.State{}, false
	}
	if b.future.Tick == b.past.Tick {
		//1.- No span to blend over: hold whatever was shown last.
		if b.hasLast {
			return b.last, true
		}
		return b.future, true
	}
	var out entity.State
	if mode == Quadratic && b.prevPast.Tick < b.past.Tick {
		out = b.quadratic(renderMs)
	} else {
		out = b.linear(renderMs)
	}
	b.last = out
	b.hasLast = true
	return out, true
}

func (b *Buffer) linear(renderMs float64) entity.State {
	t0, t1 := b.tickMs(b.past.Tick), b.tickMs(b.future.Tick)
	t := (renderMs - t0) / (t1 - t0)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	lerp := func(a, c float32) float32 {
		return float32((1-t)*float64(a) + t*float64(c))
	}
	out := b.future
	out.X = lerp(b.past.X, b.future.X)
	out.Y = lerp(b.past.Y, b.future.Y)
	out.Speed = lerp(b.past.Speed, b.future.Speed)
	//1.- Blend orientation along the short arc.
	target := b.past.Ori + entity.AngleDiff(b.future.Ori, b.past.Ori)
	out.Ori = entity.WrapAngle(lerp(b.past.Ori, target))
	if t < 1 {
		out.Throttle, out.Steer = b.past.Throttle, b.past.Steer
		out.Tick = b.past.Tick
	}
	return out
}

func (b *Buffer) quadratic(renderMs float64) entity.State {
	x0, x1, x2 := b.tickMs(b.prevPast.Tick), b.tickMs(b.past.Tick), b.tickMs(b.future.Tick)
	x := renderMs
	if x < x1 {
		x = x1
	}
	if x > x2 {
		x = x2
	}
	//1.- Lagrange basis weights; at a node the matching weight is exactly 1 and the others 0.
	l0 := (x - x1) * (x - x2) / ((x0 - x1) * (x0 - x2))
	l1 := (x - x0) * (x - x2) / ((x1 - x0) * (x1 - x2))
	l2 := (x - x0) * (x - x1) / ((x2 - x0) * (x2 - x1))
	fit := func(a, c, d float32) float32 {
		return float32(l0*float64(a) + l1*float64(c) + l2*float64(d))
	}
	out := b.future
	out.X = fit(b.prevPast.X, b.past.X, b.future.X)
	out.Y = fit(b.prevPast.Y, b.past.Y, b.future.Y)
	out.Speed = fit(b.prevPast.Speed, b.past.Speed, b.future.Speed)
	//2.- Unwrap the outer orientations around past so the curve never crosses the seam.
	o0 := b.past.Ori + entity.AngleDiff(b.prevPast.Ori, b.past.Ori)
	o2 := b.past.Ori + entity.AngleDiff(b.future.Ori, b.past.Ori)
	out.Ori = entity.WrapAngle(fit(o0, b.past.Ori, o2))
	if x < x2 {
		out.Throttle, out.Steer = b.past.Throttle, b.past.Steer
		out.Tick = b.past.Tick
	}
	return out
}
