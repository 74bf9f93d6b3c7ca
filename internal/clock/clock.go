// Package clock provides the millisecond time base both peers use to derive simulation ticks.
package clock

import (
	"sync"
	"time"
)

// Clock counts milliseconds from an epoch. Clients move the epoch once, when the server's
// SetTime arrives; there is no continuous re-synchronisation.
type Clock struct {
	mu     sync.Mutex
	now    func() time.Time
	epoch  time.Time
	synced bool
	lead   time.Duration
}

// New returns an unsynced clock reading zero at construction time. A nil now uses time.Now.
func New(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, epoch: now()}
}

// NewServer returns the authoritative clock: milliseconds since the server started.
func NewServer(now func() time.Time) *Clock {
	c := New(now)
	c.synced = true
	return c
}

// Sync moves the clock so it reads serverMs + rtt/2 + offset right now. Only the first call
// has an effect; it reports whether this call synchronised the clock.
func (c *Clock) Sync(serverMs uint32, rtt, offset time.Duration) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.synced {
		return false
	}
	//1.- Half the round trip covers the one-way delay; the offset keeps client ticks ahead.
	c.lead = rtt/2 + offset
	target := time.Duration(serverMs)*time.Millisecond + c.lead
	c.epoch = c.now().Add(-target)
	c.synced = true
	return true
}

// Lead returns how far ahead of the server the clock was set when it synchronised.
func (c *Clock) Lead() time.Duration {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lead
}

// Synced reports whether the clock carries server time.
func (c *Clock) Synced() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// Elapsed returns the time since the epoch.
func (c *Clock) Elapsed() time.Duration {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.now().Sub(c.epoch)
	if d < 0 {
		return 0
	}
	return d
}

// NowMs returns the current time in whole milliseconds. It wraps after about 49 days, like
// the wire field that carries it.
func (c *Clock) NowMs() uint32 {
	return uint32(c.Elapsed().Milliseconds())
}

// Tick returns the simulation tick for the current time.
func (c *Clock) Tick(dt time.Duration) uint32 {
	if dt <= 0 {
		return 0
	}
	return uint32(c.Elapsed() / dt)
}
