// Package transport carries protocol packets between peers over websockets. Each frame is
// prefixed with a channel byte: reliable frames are never dropped locally, unreliable frames are
// discarded when a peer cannot keep up.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// Channel selects the delivery guarantee of a frame.
type Channel uint8

const (
	// Reliable frames are delivered in order or the connection is closed.
	Reliable Channel = 0
	// Unreliable frames may be dropped under pressure.
	Unreliable Channel = 1
)

func (c Channel) String() string {
	if c == Reliable {
		return "reliable"
	}
	return "unreliable"
}

var (
	// ErrClosed is returned when sending on a closed peer.
	ErrClosed = errors.New("transport: peer closed")
	// ErrQueueFull is returned when a reliable frame cannot be queued; the peer is closed.
	ErrQueueFull = errors.New("transport: send queue full")
	// ErrBadFrame reports an inbound frame without a valid channel header.
	ErrBadFrame = errors.New("transport: malformed frame")
)

// Peer is one remote endpoint as seen by the frame loop.
type Peer interface {
	ID() uint64
	RemoteAddr() string
	// RTT is the smoothed round-trip estimate.
	RTT() time.Duration
	SendReliable(payload []byte) error
	// SendUnreliable reports false when the frame was dropped.
	SendUnreliable(payload []byte) bool
	Close() error
}

// EventType classifies host events.
type EventType int

const (
	EventConnect EventType = iota
	EventReceive
	EventDisconnect
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventReceive:
		return "receive"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is delivered to the frame loop by Host.Poll.
type Event struct {
	Type    EventType
	Peer    Peer
	Channel Channel
	Payload []byte
}

func frame(ch Channel, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(ch)
	copy(out[1:], payload)
	return out
}

func unframe(data []byte) (Channel, []byte, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty", ErrBadFrame)
	}
	ch := Channel(data[0])
	if ch != Reliable && ch != Unreliable {
		return 0, nil, fmt.Errorf("%w: channel %d", ErrBadFrame, data[0])
	}
	return ch, data[1:], nil
}
