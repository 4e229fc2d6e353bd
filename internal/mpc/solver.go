// Package mpc defines the model-predictive solver used by the control loop
// and provides a kinematic-bicycle implementation.
//
// A [Solver] is handed the current state, N reference points and the warm
// start carried from the previous tick; it returns a [Result] holding the
// status, the N-step control sequence and the N+1-point predicted
// trajectory. The loop owns the warm start; the solver only remembers the
// previously applied input, which the loop reports through
// UpdatePreviousInput.
package mpc

import (
	"fmt"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

type Status int

const (
	Optimal Status = iota
	Infeasible
	SolverError
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "Optimal"
	case Infeasible:
		return "Infeasible"
	case SolverError:
		return "SolverError"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// WarmStart seeds the next solve. Predicted has N+1 points, Controls and
// Slack have N entries.
type WarmStart struct {
	Predicted []dynamo.VehicleState `json:"predicted"`
	Controls  []dynamo.Input        `json:"controls"`
	Slack     []float64             `json:"slack"`
}

func (w *WarmStart) Clone() *WarmStart {
	if w == nil {
		return nil
	}
	return &WarmStart{
		Predicted: append([]dynamo.VehicleState(nil), w.Predicted...),
		Controls:  append([]dynamo.Input(nil), w.Controls...),
		Slack:     append([]float64(nil), w.Slack...),
	}
}

type Result struct {
	Status    Status
	Controls  []dynamo.Input
	Predicted []dynamo.VehicleState
	Reference []dynamo.VehicleState
	Slack     []float64
	Cost      float64
	SolveTime time.Duration
	// Err carries the cause when Status is SolverError.
	Err error
}

// First returns the first control step, or the zero input when the result
// carries no controls.
func (r Result) First() dynamo.Input {
	if len(r.Controls) == 0 {
		return dynamo.Input{}
	}
	return r.Controls[0]
}

// WarmStart copies the parts of the result that seed the next solve.
func (r Result) WarmStart() *WarmStart {
	return (&WarmStart{Predicted: r.Predicted, Controls: r.Controls, Slack: r.Slack}).Clone()
}

type Solver interface {
	// Horizon is N, the number of control steps and reference points.
	Horizon() int
	// Solve never returns an error; failures are reported through
	// Result.Status. ws may be nil.
	Solve(x0 dynamo.VehicleState, ref []dynamo.VehicleState, ws *WarmStart) Result
	UpdatePreviousInput(u dynamo.Input)
}
