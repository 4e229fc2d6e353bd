package mpc

import (
	"math"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

// Params tunes the kinematic solver. Rate limits are per second; a zero rate
// limit disables the corresponding slack term.
type Params struct {
	Horizon int
	DT      float64

	Q      [dynamo.StateDim]float64
	R      [dynamo.ControlDim]float64
	RDelta [dynamo.ControlDim]float64

	SlackWeight    float64
	SlackTolerance float64

	AccelMin     float64
	AccelMax     float64
	SteerMax     float64
	AccelRateMax float64
	SteerRateMax float64

	MaxIterations int
}

func DefaultParams() Params {
	return Params{
		Horizon:        10,
		DT:             0.2,
		Q:              [dynamo.StateDim]float64{1, 1, 10, 0},
		R:              [dynamo.ControlDim]float64{10, 100},
		RDelta:         [dynamo.ControlDim]float64{1, 10},
		SlackWeight:    1e4,
		SlackTolerance: 0.1,
		AccelMin:       -3,
		AccelMax:       2,
		SteerMax:       0.5,
		AccelRateMax:   1.5,
		SteerRateMax:   0.5,
		MaxIterations:  100,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Horizon < 1:
		return &dynamo.ConfigurationError{Field: "horizon", Reason: "must be at least 1"}
	case p.DT <= 0 || math.IsNaN(p.DT):
		return &dynamo.ConfigurationError{Field: "dt", Reason: "must be positive"}
	case p.AccelMin > p.AccelMax:
		return &dynamo.ConfigurationError{Field: "mpc.accel_min", Reason: "exceeds accel_max"}
	case p.SteerMax <= 0:
		return &dynamo.ConfigurationError{Field: "mpc.steer_max", Reason: "must be positive"}
	case p.MaxIterations < 1:
		return &dynamo.ConfigurationError{Field: "mpc.max_iterations", Reason: "must be at least 1"}
	}
	for _, ws := range [][]float64{p.Q[:], p.R[:], p.RDelta[:], {p.SlackWeight}} {
		for _, w := range ws {
			if w < 0 {
				return &dynamo.ConfigurationError{Field: "mpc", Reason: "weights must be non-negative"}
			}
		}
	}
	return nil
}
