package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"driftpursuit/netsync/internal/logging"
)

const (
	DefaultQueueSize    = 256
	DefaultEventBuffer  = 1024
	DefaultPingInterval = time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Options tune a Host. Zero values fall back to the defaults.
type Options struct {
	QueueSize    int
	EventBuffer  int
	PingInterval time.Duration
	WriteTimeout time.Duration
	// UnreliableBytesPerSecond caps unreliable traffic per peer; zero disables the cap.
	UnreliableBytesPerSecond int
	Logger                   *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.L()
	}
	return o
}

// Host funnels the events of every connection into one channel read by the frame loop.
type Host struct {
	opts     Options
	upgrader websocket.Upgrader
	events   chan Event

	mu     sync.Mutex
	peers  map[uint64]*Conn
	nextID atomic.Uint64

	closed    chan struct{}
	closeOnce sync.Once
}

// NewHost creates an empty host.
func NewHost(opts Options) *Host {
	opts = opts.withDefaults()
	return &Host{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		events: make(chan Event, opts.EventBuffer),
		peers:  make(map[uint64]*Conn),
		closed: make(chan struct{}),
	}
}

// Poll waits up to timeout for the next event. A zero timeout never blocks.
func (h *Host) Poll(timeout time.Duration) (Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	default:
	}
	if timeout <= 0 {
		return Event{}, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-h.events:
		return ev, true
	case <-timer.C:
		return Event{}, false
	case <-h.closed:
		return Event{}, false
	}
}

// Peers returns the connected peers.
func (h *Host) Peers() []Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Peer, 0, len(h.peers))
	for _, c := range h.peers {
		out = append(out, c)
	}
	return out
}

// Len returns the number of connected peers.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// ServeHTTP upgrades the request and registers the new peer.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Warn("websocket upgrade failed", logging.Error(err), logging.String("remote", r.RemoteAddr))
		return
	}
	h.attach(ws, r.RemoteAddr, 0, false)
}

// Dial connects to a listening host. The handshake duration seeds the RTT estimate.
func (h *Host) Dial(ctx context.Context, url string) (Peer, error) {
	started := time.Now()
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return h.attach(ws, url, time.Since(started), true), nil
}

func (h *Host) attach(ws *websocket.Conn, remote string, rtt time.Duration, seeded bool) *Conn {
	c := newConn(h, ws, h.nextID.Add(1), remote)
	if seeded {
		c.rtt.seed(rtt)
	}
	h.mu.Lock()
	h.peers[c.id] = c
	h.mu.Unlock()
	//1.- Queue the connect before any receive the reader could produce.
	h.deliver(Event{Type: EventConnect, Peer: c})
	c.start()
	return c
}

func (h *Host) remove(c *Conn) {
	h.mu.Lock()
	delete(h.peers, c.id)
	h.mu.Unlock()
}

// deliver blocks until the frame loop has room, applying backpressure to the reader. It
// reports false once the host is closed.
func (h *Host) deliver(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.closed:
		return false
	}
}

// Close disconnects every peer and stops Poll from blocking.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		peers := make([]*Conn, 0, len(h.peers))
		for _, c := range h.peers {
			peers = append(peers, c)
		}
		h.mu.Unlock()
		for _, c := range peers {
			_ = c.Close()
		}
	})
}
