package entity

import "math"

// Vehicle tuning shared by every peer. Changing any of these values changes the simulation
// and therefore requires client and server to be rebuilt together.
const (
	Acceleration      float32 = 12
	BrakeDeceleration float32 = 30
	Drag              float32 = 0.5
	TurnRate          float32 = 2.5
	MinSpeed          float32 = -10
	MaxSpeed          float32 = 40

	Pi    float32 = math.Pi
	TwoPi float32 = 2 * math.Pi
)

// Step advances s by dt seconds using the controls recorded on s. It is a pure function.
//
// Every intermediate product is converted to float32 explicitly: the conversion forces
// rounding, which stops the compiler from fusing multiply-adds on some architectures and keeps
// client and server bit-identical.
func Step(s State, dt float32) State {
	thr := clamp(s.Throttle, -1, 1)
	steer := clamp(s.Steer, -1, 1)

	//1.- Throttle against the direction of travel brakes harder than it accelerates.
	accel := float32(thr * Acceleration)
	if float32(thr*s.Speed) < 0 {
		accel = float32(thr * BrakeDeceleration)
	}
	speed := float32(s.Speed + float32(accel*dt))
	speed = float32(speed - float32(float32(speed*Drag)*dt))
	speed = clamp(speed, MinSpeed, MaxSpeed)

	//2.- Turn, then move along the new heading.
	ori := WrapAngle(float32(s.Ori + float32(float32(steer*TurnRate)*dt)))
	sin, cos := math.Sincos(float64(ori))
	dist := float32(speed * dt)

	s.X = float32(s.X + float32(float32(cos)*dist))
	s.Y = float32(s.Y + float32(float32(sin)*dist))
	s.Ori = ori
	s.Speed = speed
	return s
}

// Advance produces the state one tick after prev with c applied during the step.
func Advance(prev State, c Controls, dt float32) State {
	next := prev.WithControls(c)
	next.Tick = prev.Tick + 1
	return Step(next, dt)
}

// WrapAngle maps a onto [-Pi, Pi).
func WrapAngle(a float32) float32 {
	if a != a || math.IsInf(float64(a), 0) {
		return 0
	}
	if a > 4*TwoPi || a < -4*TwoPi {
		a = float32(math.Remainder(float64(a), 2*math.Pi))
	}
	for a >= Pi {
		a = float32(a - TwoPi)
	}
	for a < -Pi {
		a = float32(a + TwoPi)
	}
	return a
}

// AngleDiff returns the signed shortest difference a-b in [-Pi, Pi).
func AngleDiff(a, b float32) float32 {
	return WrapAngle(float32(a - b))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
