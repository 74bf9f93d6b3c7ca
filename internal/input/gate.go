// Package input screens client inputs before they reach an entity's input queue.
package input

import (
	"sync"

	"driftpursuit/netsync/internal/logging"
)

// Config controls how far an input's tick may sit from the simulated tick.
type Config struct {
	// MaxLead is the largest number of ticks an input may be ahead of the simulation. Zero
	// disables the check.
	MaxLead uint32
}

// DropReason enumerates why an input was rejected by the gate.
type DropReason string

const (
	DropReasonNone  DropReason = ""
	DropReasonStale DropReason = "stale"
	DropReasonAhead DropReason = "ahead"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether an input passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
	// Lead is the input tick minus the simulated tick; negative for stale inputs.
	Lead int64
}

// Frame captures what the gate needs to judge one input.
type Frame struct {
	PeerID    uint64
	Tick      uint32
	Simulated uint32
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Stale uint64 `json:"stale"`
	Ahead uint64 `json:"ahead"`
}

// Gate bounds every entity's input queue: inputs for ticks already simulated can never apply
// and inputs too far ahead would only pile up.
type Gate struct {
	mu     sync.Mutex
	cfg    Config
	logger *logging.Logger
	drops  map[uint64]*DropCounters
}

// NewGate constructs a gate with the supplied configuration and logger.
func NewGate(cfg Config, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.L()
	}
	return &Gate{cfg: cfg, logger: logger, drops: make(map[uint64]*DropCounters)}
}

// Evaluate applies the staleness and lead checks to the frame.
func (g *Gate) Evaluate(frame Frame) Decision {
	decision := Decision{Accepted: true, Lead: int64(frame.Tick) - int64(frame.Simulated)}
	if g == nil {
		return decision
	}
	switch {
	case decision.Lead <= 0:
		decision.Accepted, decision.Reason = false, DropReasonStale
	case g.cfg.MaxLead > 0 && decision.Lead > int64(g.cfg.MaxLead):
		decision.Accepted, decision.Reason = false, DropReasonAhead
	default:
		return decision
	}

	//1.- Count the rejection against the sending peer.
	g.mu.Lock()
	counters := g.drops[frame.PeerID]
	if counters == nil {
		counters = &DropCounters{}
		g.drops[frame.PeerID] = counters
	}
	if decision.Reason == DropReasonStale {
		counters.Stale++
	} else {
		counters.Ahead++
	}
	g.mu.Unlock()
	g.logger.Debug("input rejected",
		logging.Uint64("peer", frame.PeerID),
		logging.String("reason", decision.Reason.String()),
		logging.Uint32("tick", frame.Tick),
		logging.Uint32("simulated", frame.Simulated),
	)
	return decision
}

// Forget clears the counters of a disconnected peer.
func (g *Gate) Forget(peerID uint64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.drops, peerID)
	g.mu.Unlock()
}

// Metrics returns a snapshot of the drop counters per peer.
func (g *Gate) Metrics() map[uint64]DropCounters {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[uint64]DropCounters, len(g.drops))
	for id, c := range g.drops {
		out[id] = *c
	}
	return out
}
