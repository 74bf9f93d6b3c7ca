package protocol

import (
	"fmt"

	"driftpursuit/netsync/internal/bitstream"
	"driftpursuit/netsync/internal/entity"
)

// body positions a reader after the tag, which the caller has already dispatched on.
func body(packet []byte, want Kind) (*bitstream.Reader, error) {
	k, err := KindOf(packet)
	if err != nil {
		return nil, err
	}
	if k != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, k, want)
	}
	r := bitstream.NewReader(packet)
	if err := r.Skip(1); err != nil {
		return nil, err
	}
	return r, nil
}

func readID(r *bitstream.Reader) (entity.ID, error) {
	v, err := r.ReadPackedUint32()
	if err != nil {
		return entity.InvalidID, err
	}
	if v >= uint32(entity.InvalidID) {
		return entity.InvalidID, fmt.Errorf("protocol: entity id %d out of range", v)
	}
	return entity.ID(v), nil
}

// DecodeJoin decodes a Join packet.
func DecodeJoin(packet []byte) (Join, error) {
	r, err := body(packet, KindJoin)
	if err != nil {
		return Join{}, err
	}
	return Join{Name: string(r.Rest())}, nil
}

// DecodeNewEntity decodes a NewEntity packet.
func DecodeNewEntity(packet []byte) (NewEntity, error) {
	r, err := body(packet, KindNewEntity)
	if err != nil {
		return NewEntity{}, err
	}
	var s entity.State
	if s.EID, err = readID(r); err != nil {
		return NewEntity{}, fmt.Errorf("new entity eid: %w", err)
	}
	if s.Tick, err = r.ReadPackedUint32(); err != nil {
		return NewEntity{}, fmt.Errorf("new entity tick: %w", err)
	}
	if s.Color, err = r.ReadUint32(); err != nil {
		return NewEntity{}, fmt.Errorf("new entity color: %w", err)
	}
	for _, dst := range []*float32{&s.X, &s.Y, &s.Ori, &s.Speed} {
		if *dst, err = r.ReadFloat32(); err != nil {
			return NewEntity{}, fmt.Errorf("new entity state: %w", err)
		}
	}
	return NewEntity{State: s}, nil
}

// DecodeSetControlledEntity decodes a SetControlledEntity packet.
func DecodeSetControlledEntity(packet []byte) (SetControlledEntity, error) {
	r, err := body(packet, KindSetControlledEntity)
	if err != nil {
		return SetControlledEntity{}, err
	}
	eid, err := readID(r)
	if err != nil {
		return SetControlledEntity{}, fmt.Errorf("set controlled eid: %w", err)
	}
	return SetControlledEntity{EID: eid}, nil
}

// DecodeInput decodes an Input packet.
func DecodeInput(packet []byte) (Input, error) {
	r, err := body(packet, KindInput)
	if err != nil {
		return Input{}, err
	}
	var in Input
	if in.EID, err = readID(r); err != nil {
		return Input{}, fmt.Errorf("input eid: %w", err)
	}
	if in.Tick, err = r.ReadPackedUint32(); err != nil {
		return Input{}, fmt.Errorf("input tick: %w", err)
	}
	packed, err := r.ReadUint8()
	if err != nil {
		return Input{}, fmt.Errorf("input controls: %w", err)
	}
	in.Controls = UnpackControls(packed)
	return in, nil
}

// DecodeSnapshot decodes a Snapshot packet.
func DecodeSnapshot(packet []byte) (Snapshot, error) {
	r, err := body(packet, KindSnapshot)
	if err != nil {
		return Snapshot{}, err
	}
	var s entity.State
	if s.EID, err = readID(r); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot eid: %w", err)
	}
	if s.Tick, err = r.ReadPackedUint32(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot tick: %w", err)
	}
	if s.X, err = r.ReadFloat32(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot x: %w", err)
	}
	if s.Y, err = r.ReadFloat32(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot y: %w", err)
	}
	motion, err := r.ReadUint32()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot motion: %w", err)
	}
	s.Ori, s.Speed = MotionCodec.Unpack(motion)
	controls, err := r.ReadUint8()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot controls: %w", err)
	}
	s = s.WithControls(UnpackControls(controls))
	return Snapshot{State: s}, nil
}

// DecodeSetTime decodes a SetTime packet.
func DecodeSetTime(packet []byte) (SetTime, error) {
	r, err := body(packet, KindSetTime)
	if err != nil {
		return SetTime{}, err
	}
	ms, err := r.ReadUint32()
	if err != nil {
		return SetTime{}, fmt.Errorf("set time: %w", err)
	}
	return SetTime{ServerMs: ms}, nil
}

// Decode dispatches on the tag and returns the decoded message.
func Decode(packet []byte) (Message, error) {
	k, err := KindOf(packet)
	if err != nil {
		return nil, err
	}
	switch k {
	case KindJoin:
		return DecodeJoin(packet)
	case KindNewEntity:
		return DecodeNewEntity(packet)
	case KindSetControlledEntity:
		return DecodeSetControlledEntity(packet)
	case KindInput:
		return DecodeInput(packet)
	case KindSnapshot:
		return DecodeSnapshot(packet)
	default:
		return DecodeSetTime(packet)
	}
}
