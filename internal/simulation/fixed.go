// Package simulation advances entities in fixed ticks and drives the per-peer frame loop.
package simulation

import (
	"time"

	"driftpursuit/netsync/internal/entity"
)

// ControlSource supplies the controls for the step that produces tick.
type ControlSource interface {
	ControlsAt(tick uint32) entity.Controls
}

// TickOf returns the number of whole fixed steps that fit in ms.
func TickOf(ms uint32, dt time.Duration) uint32 {
	step := uint32(dt.Milliseconds())
	if step == 0 {
		return 0
	}
	return ms / step
}

// SimulateFixed steps s forward while (tick+1)*dt <= targetMs, re-reading the controls before
// every step. It returns the advanced state and how many steps were taken.
func SimulateFixed(s entity.State, src ControlSource, targetMs uint32, dt time.Duration) (entity.State, int) {
	step := uint64(dt.Milliseconds())
	if step == 0 {
		return s, 0
	}
	seconds := float32(dt.Seconds())
	steps := 0
	//1.- Compare in 64 bits so a tick near the top of the range cannot wrap.
	for (uint64(s.Tick)+1)*step <= uint64(targetMs) {
		var c entity.Controls
		if src != nil {
			c = src.ControlsAt(s.Tick + 1)
		} else {
			c = s.Controls()
		}
		s = entity.Advance(s, c, seconds)
		steps++
	}
	return s, steps
}
