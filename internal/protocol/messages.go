package protocol

import (
	"fmt"
	"unicode/utf8"

	"driftpursuit/netsync/internal/bitstream"
	"driftpursuit/netsync/internal/entity"
)

// MaxNameBytes caps the player name carried by Join.
const MaxNameBytes = 64

// Message is implemented by every wire message.
type Message interface {
	Kind() Kind
	encodeBody(w *bitstream.Writer) error
}

// Join asks the server for an entity. The name is a rest-of-packet field.
type Join struct {
	Name string
}

// NewEntity announces an entity and its state at creation.
type NewEntity struct {
	State entity.State
}

// SetControlledEntity tells a client which entity it drives.
type SetControlledEntity struct {
	EID entity.ID
}

// Input carries the controls a client applied at Tick.
type Input struct {
	EID      entity.ID
	Tick     uint32
	Controls entity.Controls
}

// Snapshot is an authoritative sample of one entity. Color is not transmitted.
type Snapshot struct {
	State entity.State
}

// SetTime stamps the server clock, in milliseconds, for the client's one-off clock sync.
type SetTime struct {
	ServerMs uint32
}

func (Join) Kind() Kind                { return KindJoin }
func (NewEntity) Kind() Kind           { return KindNewEntity }
func (SetControlledEntity) Kind() Kind { return KindSetControlledEntity }
func (Input) Kind() Kind               { return KindInput }
func (Snapshot) Kind() Kind            { return KindSnapshot }
func (SetTime) Kind() Kind             { return KindSetTime }

// Encode serialises m with its tag into a fresh packet.
func Encode(m Message) ([]byte, error) {
	w := bitstream.NewWriter(32)
	if err := EncodeTo(w, m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeTo appends the tag and body of m to w.
func EncodeTo(w *bitstream.Writer, m Message) error {
	w.WriteUint8(uint8(m.Kind()))
	if err := m.encodeBody(w); err != nil {
		return fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return nil
}

func (m Join) encodeBody(w *bitstream.Writer) error {
	w.WriteString(truncateName(m.Name))
	return nil
}

func (m NewEntity) encodeBody(w *bitstream.Writer) error {
	s := m.State
	if err := w.WritePackedUint32(uint32(s.EID)); err != nil {
		return err
	}
	if err := w.WritePackedUint32(s.Tick); err != nil {
		return err
	}
	w.WriteUint32(s.Color)
	w.WriteFloat32(s.X)
	w.WriteFloat32(s.Y)
	w.WriteFloat32(s.Ori)
	w.WriteFloat32(s.Speed)
	return nil
}

func (m SetControlledEntity) encodeBody(w *bitstream.Writer) error {
	return w.WritePackedUint32(uint32(m.EID))
}

func (m Input) encodeBody(w *bitstream.Writer) error {
	if err := w.WritePackedUint32(uint32(m.EID)); err != nil {
		return err
	}
	if err := w.WritePackedUint32(m.Tick); err != nil {
		return err
	}
	w.WriteUint8(PackControls(m.Controls))
	return nil
}

func (m Snapshot) encodeBody(w *bitstream.Writer) error {
	s := m.State
	if err := w.WritePackedUint32(uint32(s.EID)); err != nil {
		return err
	}
	if err := w.WritePackedUint32(s.Tick); err != nil {
		return err
	}
	w.WriteFloat32(s.X)
	w.WriteFloat32(s.Y)
	w.WriteUint32(MotionCodec.Pack(s.Ori, s.Speed))
	w.WriteUint8(PackControls(s.Controls()))
	return nil
}

func (m SetTime) encodeBody(w *bitstream.Writer) error {
	w.WriteUint32(m.ServerMs)
	return nil
}

func truncateName(name string) string {
	if len(name) <= MaxNameBytes {
		return name
	}
	//1.- Cut on a rune boundary so the receiver never sees a broken code point.
	cut := MaxNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
