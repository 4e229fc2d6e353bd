package dynamo

import (
	"fmt"
	"math"
)

// State indices for the four-element vehicle state vector.
const (
	IdxX = iota
	IdxY
	IdxYaw
	IdxSpeed

	StateDim = 4
)

// Input indices for the two-element control vector.
const (
	IdxAccel = iota
	IdxSteer

	ControlDim = 2
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

// VehicleState is a pose and speed estimate in the local ENU-like frame.
type VehicleState struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Yaw   float64 `json:"yaw"`
	Speed float64 `json:"v"`
}

func (v VehicleState) Vector() State {
	return State{v.X, v.Y, v.Yaw, v.Speed}
}

func (v VehicleState) IsValid() bool {
	return v.Vector().IsValid()
}

func (v VehicleState) String() string {
	return fmt.Sprintf("(x=%.3f y=%.3f yaw=%.3f v=%.3f)", v.X, v.Y, v.Yaw, v.Speed)
}

// FromVector converts a state vector back into a VehicleState. Short vectors
// leave the missing fields zero.
func FromVector(s State) VehicleState {
	var v VehicleState
	if len(s) > IdxX {
		v.X = s[IdxX]
	}
	if len(s) > IdxY {
		v.Y = s[IdxY]
	}
	if len(s) > IdxYaw {
		v.Yaw = s[IdxYaw]
	}
	if len(s) > IdxSpeed {
		v.Speed = s[IdxSpeed]
	}
	return v
}

// Input is one step of the control sequence.
type Input struct {
	Accel float64 `json:"acc"`
	Steer float64 `json:"df"`
}

func (u Input) Vector() Control {
	return Control{u.Accel, u.Steer}
}

func FromControl(c Control) Input {
	var u Input
	if len(c) > IdxAccel {
		u.Accel = c[IdxAccel]
	}
	if len(c) > IdxSteer {
		u.Steer = c[IdxSteer]
	}
	return u
}

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// WrapAngle maps an angle into (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// NearestEquivalent returns the angle equal to a modulo 2*pi that lies
// closest to ref.
func NearestEquivalent(a, ref float64) float64 {
	return ref + WrapAngle(a-ref)
}
