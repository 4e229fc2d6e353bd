package integrators

import "github.com/DeepakIngole/genesis-path-follower/internal/dynamo"

// Euler is the forward-Euler discretization used by the MPC prediction model.
// It holds no scratch state and is safe for concurrent use.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
