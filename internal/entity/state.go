// Package entity defines the simulated unit: its state vector, the deterministic step function
// shared by client and server, and the registry that owns every live entity.
package entity

import "math"

// ID identifies a live entity. Ids are assigned monotonically by the server.
type ID uint16

// InvalidID marks "no entity", e.g. before the server assigns a controlled entity.
const InvalidID ID = math.MaxUint16

// Controls are the per-tick inputs, both in [-1, 1].
type Controls struct {
	Throttle float32
	Steer    float32
}

// State is the full state vector of an entity at Tick.
type State struct {
	EID   ID
	Color uint32
	X     float32
	Y     float32
	Ori   float32
	Speed float32
	// Throttle and Steer are the controls applied to produce this state.
	Throttle float32
	Steer    float32
	Tick     uint32
}

// Controls returns the controls recorded on the state.
func (s State) Controls() Controls {
	return Controls{Throttle: s.Throttle, Steer: s.Steer}
}

// WithControls returns a copy of the state carrying c.
func (s State) WithControls(c Controls) State {
	s.Throttle = c.Throttle
	s.Steer = c.Steer
	return s
}
