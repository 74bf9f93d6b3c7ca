// Package transporttest provides an in-memory transport for exercising frame loops without
// sockets. Delivery is synchronous and ordered on both channels.
package transporttest

import (
	"sync"
	"sync/atomic"
	"time"

	"driftpursuit/netsync/internal/transport"
)

var nextID atomic.Uint64

// Queue is an event source fed by in-memory peers. It satisfies the Poll half of
// transport.Host.
type Queue struct {
	mu     sync.Mutex
	events []transport.Event
}

// Push appends an event.
func (q *Queue) Push(ev transport.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Poll returns the oldest queued event. It never blocks.
func (q *Queue) Poll(time.Duration) (transport.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return transport.Event{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Peer is one end of a pipe. Sends are delivered to the remote queue as receive events
// carrying the remote end as their peer.
type Peer struct {
	id     uint64
	addr   string
	remote *Peer
	inbox  *Queue

	mu         sync.Mutex
	closed     bool
	dropUnrel  bool
	reliable   [][]byte
	unreliable [][]byte
}

// Pipe connects two frame loops. a is the peer the owner of aQueue talks to, b the one the
// owner of bQueue talks to. Both queues receive a connect event.
func Pipe(aQueue, bQueue *Queue) (a, b *Peer) {
	a = &Peer{id: nextID.Add(1), addr: "pipe-a", inbox: bQueue}
	b = &Peer{id: nextID.Add(1), addr: "pipe-b", inbox: aQueue}
	a.remote, b.remote = b, a
	aQueue.Push(transport.Event{Type: transport.EventConnect, Peer: a})
	bQueue.Push(transport.Event{Type: transport.EventConnect, Peer: b})
	return a, b
}

func (p *Peer) ID() uint64         { return p.id }
func (p *Peer) RemoteAddr() string { return p.addr }

// RTT is always zero: pipes deliver synchronously.
func (p *Peer) RTT() time.Duration { return 0 }

// DropUnreliable makes every later unreliable send fail when drop is true.
func (p *Peer) DropUnreliable(drop bool) {
	p.mu.Lock()
	p.dropUnrel = drop
	p.mu.Unlock()
}

// SendReliable records the payload and delivers it to the remote end.
func (p *Peer) SendReliable(payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transport.ErrClosed
	}
	p.reliable = append(p.reliable, append([]byte(nil), payload...))
	p.mu.Unlock()
	p.forward(transport.Reliable, payload)
	return nil
}

// SendUnreliable records and delivers the payload unless drops are forced.
func (p *Peer) SendUnreliable(payload []byte) bool {
	p.mu.Lock()
	if p.closed || p.dropUnrel {
		p.mu.Unlock()
		return false
	}
	p.unreliable = append(p.unreliable, append([]byte(nil), payload...))
	p.mu.Unlock()
	p.forward(transport.Unreliable, payload)
	return true
}

// forward delivers into the queue of the remote end; the event names the peer that end
// would reply to, which is p's counterpart.
func (p *Peer) forward(ch transport.Channel, payload []byte) {
	if p.inbox == nil || p.remote == nil {
		return
	}
	p.inbox.Push(transport.Event{Type: transport.EventReceive, Peer: p.remote, Channel: ch, Payload: append([]byte(nil), payload...)})
}

// Close marks the peer closed and tells the remote end.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	if p.inbox != nil && p.remote != nil {
		p.inbox.Push(transport.Event{Type: transport.EventDisconnect, Peer: p.remote})
	}
	return nil
}

// Closed reports whether Close was called.
func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Reliable returns a copy of the reliable payloads sent so far.
func (p *Peer) Reliable() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.reliable...)
}

// Unreliable returns a copy of the unreliable payloads sent so far.
func (p *Peer) Unreliable() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.unreliable...)
}

// Reset forgets the recorded payloads.
func (p *Peer) Reset() {
	p.mu.Lock()
	p.reliable, p.unreliable = nil, nil
	p.mu.Unlock()
}

var _ transport.Peer = (*Peer)(nil)
