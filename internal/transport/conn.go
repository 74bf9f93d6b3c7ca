package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"driftpursuit/netsync/internal/logging"
)

// maxFrameBytes caps inbound websocket messages; protocol packets are far smaller.
const maxFrameBytes = 64 << 10

// Conn is a websocket-backed Peer. A reader goroutine feeds the host's event channel and a
// writer goroutine drains the send queue; neither touches simulation state.
type Conn struct {
	id     uint64
	remote string
	ws     *websocket.Conn
	host   *Host
	log    *logging.Logger

	send    chan []byte
	limiter *rate.Limiter
	rtt     rttEstimator

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

func newConn(h *Host, ws *websocket.Conn, id uint64, remote string) *Conn {
	c := &Conn{
		id:     id,
		remote: remote,
		ws:     ws,
		host:   h,
		log:    h.opts.Logger.With(logging.Uint64("peer", id), logging.String("remote", remote)),
		send:   make(chan []byte, h.opts.QueueSize),
		done:   make(chan struct{}),
	}
	if bps := h.opts.UnreliableBytesPerSecond; bps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(bps), bps)
	}
	return c
}

// ID returns the host-assigned peer id.
func (c *Conn) ID() uint64 { return c.id }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() string { return c.remote }

// RTT returns the smoothed round-trip estimate.
func (c *Conn) RTT() time.Duration {
	mean, _ := c.rtt.get()
	return mean
}

// RTTVariance returns the smoothed round-trip deviation.
func (c *Conn) RTTVariance() time.Duration {
	_, variance := c.rtt.get()
	return variance
}

// Dropped returns how many unreliable frames were discarded.
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// SendReliable queues payload on the reliable channel. A full queue means the peer can no
// longer be kept in sync, so the connection is closed.
func (c *Conn) SendReliable(payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	select {
	case c.send <- frame(Reliable, payload):
		return nil
	default:
		c.log.Warn("reliable queue full, closing peer", logging.Int("queue", cap(c.send)))
		_ = c.Close()
		return ErrQueueFull
	}
}

// SendUnreliable queues payload unless the queue is full or the bandwidth budget is spent.
func (c *Conn) SendUnreliable(payload []byte) bool {
	if c.isClosed() {
		return false
	}
	if c.limiter != nil && !c.limiter.AllowN(time.Now(), len(payload)+1) {
		c.dropped.Add(1)
		return false
	}
	select {
	case c.send <- frame(Unreliable, payload):
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Close shuts the connection down. The reader goroutine reports the disconnect.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			err = c.ws.Close()
		}
	})
	return err
}

func (c *Conn) start() {
	go c.readLoop()
	go c.writeLoop()
}

func (c *Conn) readLoop() {
	defer func() {
		_ = c.Close()
		c.host.remove(c)
		c.host.deliver(Event{Type: EventDisconnect, Peer: c})
	}()
	c.ws.SetReadLimit(maxFrameBytes)
	c.ws.SetPongHandler(func(data string) error {
		if sample, ok := pongSample([]byte(data), time.Now()); ok {
			c.rtt.observe(sample)
		}
		return nil
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.isClosed() {
				c.log.Debug("read failed", logging.Error(err))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		ch, payload, err := unframe(data)
		if err != nil {
			c.log.Warn("dropping peer after malformed frame", logging.Error(err))
			return
		}
		if !c.host.deliver(Event{Type: EventReceive, Peer: c, Channel: ch, Payload: payload}) {
			return
		}
	}
}

func (c *Conn) writeLoop() {
	ping := time.NewTicker(c.host.opts.PingInterval)
	defer ping.Stop()
	timeout := c.host.opts.WriteTimeout

	//1.- Probe immediately so the server side gets an RTT estimate before the first interval.
	_ = c.ws.WriteControl(websocket.PingMessage, pingPayload(time.Now()), time.Now().Add(timeout))
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.log.Debug("write failed", logging.Error(err))
				_ = c.Close()
				return
			}
		case now := <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, pingPayload(now), now.Add(timeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
