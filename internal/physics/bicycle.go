package physics

import (
	"fmt"
	"math"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

const (
	DefaultFrontAxle = 1.5213
	DefaultRearAxle  = 1.4987
)

// Bicycle is the kinematic bicycle model referenced to the rear axle
// geometry. State is {x, y, yaw, v}; control is {acceleration, front steer}.
type Bicycle struct {
	Lf float64 // center of gravity to front axle, m
	Lr float64 // center of gravity to rear axle, m
}

func NewBicycle() *Bicycle {
	return &Bicycle{
		Lf: DefaultFrontAxle,
		Lr: DefaultRearAxle,
	}
}

func (b *Bicycle) StateDim() int {
	return dynamo.StateDim
}

func (b *Bicycle) ControlDim() int {
	return dynamo.ControlDim
}

// SlipAngle is the angle of the CG velocity relative to the heading.
func (b *Bicycle) SlipAngle(steer float64) float64 {
	return math.Atan(b.Lr / (b.Lf + b.Lr) * math.Tan(steer))
}

func (b *Bicycle) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	yaw := x[dynamo.IdxYaw]
	v := x[dynamo.IdxSpeed]

	accel, steer := 0.0, 0.0
	if len(u) > dynamo.IdxSteer {
		accel = u[dynamo.IdxAccel]
		steer = u[dynamo.IdxSteer]
	}

	beta := b.SlipAngle(steer)
	return dynamo.State{
		v * math.Cos(yaw+beta),
		v * math.Sin(yaw+beta),
		v / b.Lr * math.Sin(beta),
		accel,
	}
}

func (b *Bicycle) GetParams() map[string]float64 {
	return map[string]float64{
		"lf": b.Lf,
		"lr": b.Lr,
	}
}

func (b *Bicycle) SetParam(name string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("%w: %s must be positive", dynamo.ErrConfiguration, name)
	}
	switch name {
	case "lf":
		b.Lf = value
	case "lr":
		b.Lr = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
