package protocol

import (
	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/quantize"
)

// ControlAxis quantises throttle and steer over [-1, 1] in 4 bits with an exact neutral.
var ControlAxis = quantize.Centered{Max: 1, Bits: 4}

// PackControls stores throttle in the low nibble and steer in the high nibble.
func PackControls(c entity.Controls) uint8 {
	return uint8(ControlAxis.Pack(c.Steer)<<4 | ControlAxis.Pack(c.Throttle))
}

// UnpackControls reverses PackControls.
func UnpackControls(b uint8) entity.Controls {
	return entity.Controls{
		Throttle: ControlAxis.Unpack(uint32(b & 0x0f)),
		Steer:    ControlAxis.Unpack(uint32(b >> 4)),
	}
}

// MotionCodec packs orientation (low half) and speed (high half) into one 32-bit word.
var MotionCodec = quantize.Vec2{
	R1:    quantize.Range{Lo: -entity.Pi, Hi: entity.Pi},
	R2:    quantize.Range{Lo: entity.MinSpeed, Hi: entity.MaxSpeed},
	Bits1: 16,
	Bits2: 16,
}

// QuantizeControls returns the controls exactly as the server will decode them. Clients
// predict with the quantised values so both sides step with identical inputs.
func QuantizeControls(c entity.Controls) entity.Controls {
	return UnpackControls(PackControls(c))
}

// OrientationStep is the largest orientation error a snapshot can introduce.
func OrientationStep() float32 {
	return MotionCodec.R1.Step(MotionCodec.Bits1)
}

// SpeedStep is the largest speed error a snapshot can introduce.
func SpeedStep() float32 {
	return MotionCodec.R2.Step(MotionCodec.Bits2)
}
