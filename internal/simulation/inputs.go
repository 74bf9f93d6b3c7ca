package simulation

import (
	"sort"

	"driftpursuit/netsync/internal/entity"
)

// TaggedControls are controls a client stamped with the tick they first apply to.
type TaggedControls struct {
	Tick     uint32
	Controls entity.Controls
}

// Inputs queues the pending controls of one entity in tick order. The zero value is ready to use.
type Inputs struct {
	pending []TaggedControls
	current entity.Controls
	applied uint32
	started bool
}

// Push queues controls for tick. Inputs for ticks that were already simulated are rejected
// (reported as false) because they can never apply retroactively. A second input for the same
// tick replaces the first.
func (q *Inputs) Push(tick uint32, c entity.Controls) bool {
	if q == nil {
		return false
	}
	if q.started && tick <= q.applied {
		return false
	}
	//1.- Keep the queue sorted so ControlsAt only ever looks at the front.
	i := sort.Search(len(q.pending), func(i int) bool { return q.pending[i].Tick >= tick })
	if i < len(q.pending) && q.pending[i].Tick == tick {
		q.pending[i].Controls = c
		return true
	}
	q.pending = append(q.pending, TaggedControls{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = TaggedControls{Tick: tick, Controls: c}
	return true
}

// ControlsAt returns the controls in effect when stepping into tick: the latest queued input
// whose tick has been reached, or the previously applied controls when none has.
func (q *Inputs) ControlsAt(tick uint32) entity.Controls {
	if q == nil {
		return entity.Controls{}
	}
	consumed := 0
	for consumed < len(q.pending) && q.pending[consumed].Tick <= tick {
		q.current = q.pending[consumed].Controls
		consumed++
	}
	if consumed > 0 {
		q.pending = append(q.pending[:0], q.pending[consumed:]...)
	}
	q.applied = tick
	q.started = true
	return q.current
}

// Current returns the last controls handed out by ControlsAt.
func (q *Inputs) Current() entity.Controls {
	if q == nil {
		return entity.Controls{}
	}
	return q.current
}

// Pending reports how many future inputs are queued.
func (q *Inputs) Pending() int {
	if q == nil {
		return 0
	}
	return len(q.pending)
}
