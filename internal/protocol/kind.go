// Package protocol defines the closed set of wire messages exchanged between the server and its
// clients. Every message starts with a one byte Kind tag followed by a fixed field layout built
// from the bitstream and quantize codecs.
package protocol

import (
	"errors"
	"fmt"
)

// Kind tags the layout of a message. The tag is always the first byte of a packet.
type Kind uint8

const (
	KindJoin                Kind = 0x00 // client → server, reliable
	KindNewEntity           Kind = 0x01 // server → client, reliable
	KindSetControlledEntity Kind = 0x02 // server → client, reliable
	KindInput               Kind = 0x03 // client → server, unreliable
	KindSnapshot            Kind = 0x04 // server → client, unreliable
	KindSetTime             Kind = 0x05 // server → client, reliable

	kindCount = 6
)

var (
	// ErrEmptyPacket reports a packet without even a tag byte.
	ErrEmptyPacket = errors.New("protocol: empty packet")
	// ErrUnknownKind reports a tag outside the closed set; receivers ignore such packets.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrKindMismatch reports a decode call for the wrong message kind.
	ErrKindMismatch = errors.New("protocol: message kind mismatch")
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "Join"
	case KindNewEntity:
		return "NewEntity"
	case KindSetControlledEntity:
		return "SetControlledEntity"
	case KindInput:
		return "Input"
	case KindSnapshot:
		return "Snapshot"
	case KindSetTime:
		return "SetTime"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	return k < kindCount
}

// Reliable reports whether the kind travels on the reliable, ordered channel.
func (k Kind) Reliable() bool {
	switch k {
	case KindInput, KindSnapshot:
		return false
	default:
		return true
	}
}

// KindOf reads the tag of a packet without consuming it.
func KindOf(packet []byte) (Kind, error) {
	if len(packet) == 0 {
		return 0, ErrEmptyPacket
	}
	k := Kind(packet[0])
	if !k.Valid() {
		return k, fmt.Errorf("%w: %d", ErrUnknownKind, packet[0])
	}
	return k, nil
}
