// Package prediction keeps the locally predicted states of the client's own entity and
// reconciles them against authoritative snapshots by detect-and-replay.
package prediction

import (
	"errors"
	"fmt"
	"math"

	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/protocol"
)

// ErrNotContiguous rejects an append whose tick does not follow the tail.
var ErrNotContiguous = errors.New("prediction: history must stay contiguous")

// Outcome classifies what Reconcile did with a snapshot.
type Outcome int

const (
	// Matched means the prediction agreed with the server within tolerance.
	Matched Outcome = iota
	// Corrected means the entry was overwritten and later entries were replayed.
	Corrected
	// SkipStale means a snapshot at or before the last reconciled tick was ignored.
	SkipStale
	// SkipOutOfRange means the snapshot tick is not held by the buffer.
	SkipOutOfRange
)

// String returns the metric label of the outcome.
func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Corrected:
		return "corrected"
	case SkipStale:
		return "skip_stale"
	case SkipOutOfRange:
		return "skip_out_of_range"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports a reconciliation.
type Result struct {
	Outcome  Outcome
	Replayed int
}

// Tolerance bounds the per-field disagreement treated as a match.
type Tolerance struct {
	Position    float32
	Orientation float32
	Speed       float32
	Controls    float32
}

// DefaultTolerance accepts the error snapshot quantisation introduces and nothing more.
func DefaultTolerance() Tolerance {
	return Tolerance{
		Position:    0.01,
		Orientation: protocol.OrientationStep(),
		Speed:       protocol.SpeedStep(),
		Controls:    1e-6,
	}
}

// Match reports whether a predicted state agrees with an authoritative one.
func (t Tolerance) Match(predicted, authoritative entity.State) bool {
	near := func(a, b, eps float32) bool {
		return math.Abs(float64(a)-float64(b)) <= float64(eps)
	}
	return near(predicted.X, authoritative.X, t.Position) &&
		near(predicted.Y, authoritative.Y, t.Position) &&
		near(entity.AngleDiff(predicted.Ori, authoritative.Ori), 0, t.Orientation) &&
		near(predicted.Speed, authoritative.Speed, t.Speed) &&
		near(predicted.Throttle, authoritative.Throttle, t.Controls) &&
		near(predicted.Steer, authoritative.Steer, t.Controls)
}

// History holds contiguous predicted states starting at the entity's creation tick. The entry
// for tick T lives at index T - creationTick - deleted.
type History struct {
	entries      []entity.State
	creationTick uint32
	deleted      uint32
	dt           float32
	tolerance    Tolerance

	lastReconciled uint32
	reconciled     bool
}

// NewHistory starts a history at the state the entity was created with.
func NewHistory(initial entity.State, dt float32, tol Tolerance) *History {
	return &History{
		entries:      []entity.State{initial},
		creationTick: initial.Tick,
		dt:           dt,
		tolerance:    tol,
	}
}

// Len returns the number of held entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Tail returns the newest predicted state.
func (h *History) Tail() entity.State {
	return h.entries[len(h.entries)-1]
}

// LastReconciled returns the tick of the last snapshot that was compared, if any.
func (h *History) LastReconciled() (uint32, bool) {
	return h.lastReconciled, h.reconciled
}

func (h *History) index(tick uint32) (int, bool) {
	idx := int64(tick) - int64(h.creationTick) - int64(h.deleted)
	if idx < 0 || idx >= int64(len(h.entries)) {
		return 0, false
	}
	return int(idx), true
}

// At returns the entry for tick.
func (h *History) At(tick uint32) (entity.State, bool) {
	idx, ok := h.index(tick)
	if !ok {
		return entity.State{}, false
	}
	return h.entries[idx], true
}

// Append adds the state for the tick after the tail.
func (h *History) Append(s entity.State) error {
	if tail := h.Tail(); s.Tick != tail.Tick+1 {
		return fmt.Errorf("%w: tail %d, got %d", ErrNotContiguous, tail.Tick, s.Tick)
	}
	h.entries = append(h.entries, s)
	return nil
}

// Predict steps the tail with c and appends the result.
func (h *History) Predict(c entity.Controls) (entity.State, error) {
	next := entity.Advance(h.Tail(), c, h.dt)
	if err := h.Append(next); err != nil {
		return h.Tail(), err
	}
	return next, nil
}

// Reconcile compares an authoritative snapshot with the prediction for the same tick. On
// disagreement the entry is overwritten, keeping the entity's identity, and every later entry
// is recomputed from its recorded controls.
func (h *History) Reconcile(snap entity.State) Result {
	if h.reconciled && snap.Tick <= h.lastReconciled {
		return Result{Outcome: SkipStale}
	}
	idx, ok := h.index(snap.Tick)
	if !ok {
		return Result{Outcome: SkipOutOfRange}
	}

	res := Result{Outcome: Matched}
	if !h.tolerance.Match(h.entries[idx], snap) {
		//1.- Take the server's state but keep identity fields the snapshot does not carry.
		fixed := snap
		fixed.EID = h.entries[idx].EID
		fixed.Color = h.entries[idx].Color
		h.entries[idx] = fixed

		//2.- Replay forward with the controls each entry was originally predicted with.
		for i := idx + 1; i < len(h.entries); i++ {
			h.entries[i] = entity.Advance(h.entries[i-1], h.entries[i].Controls(), h.dt)
		}
		res = Result{Outcome: Corrected, Replayed: len(h.entries) - idx - 1}
	}

	h.lastReconciled = snap.Tick
	h.reconciled = true
	h.Compact()
	return res
}

// Compact drops the entries before the last reconciled tick once they make up more than half
// of the buffer. Those entries can no longer be corrected.
func (h *History) Compact() int {
	if !h.reconciled {
		return 0
	}
	idx, ok := h.index(h.lastReconciled)
	if !ok || idx <= len(h.entries)/2 {
		return 0
	}
	kept := copy(h.entries, h.entries[idx:])
	clear(h.entries[kept:])
	h.entries = h.entries[:kept]
	h.deleted += uint32(idx)
	return idx
}
