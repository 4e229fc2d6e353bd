package integrators

import (
	"math"
	"testing"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

// oscillator is x'' = -x, with the control added to the acceleration.
type oscillator struct{}

func (oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	acc := -x[0]
	if len(u) > 0 {
		acc += u[0]
	}
	return dynamo.State{x[1], acc}
}

func (oscillator) StateDim() int   { return 2 }
func (oscillator) ControlDim() int { return 1 }

func TestRK4Accuracy(t *testing.T) {
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100
	for i := 0; i < steps; i++ {
		x = integ.Step(oscillator{}, x, dynamo.Control{0}, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-6 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-6 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestEulerSingleStep(t *testing.T) {
	x := NewEuler().Step(oscillator{}, dynamo.State{1.0, 0.0}, dynamo.Control{2.0}, 0, 0.1)

	if math.Abs(x[0]-1.0) > 1e-12 {
		t.Errorf("expected position 1.0, got %f", x[0])
	}
	if math.Abs(x[1]-0.1) > 1e-12 {
		t.Errorf("expected velocity 0.1, got %f", x[1])
	}
}

func TestRK4DoesNotMutateInput(t *testing.T) {
	x0 := dynamo.State{1.0, 0.5}
	_ = NewRK4().Step(oscillator{}, x0, dynamo.Control{0}, 0, 0.1)
	if x0[0] != 1.0 || x0[1] != 0.5 {
		t.Errorf("input state mutated: %v", x0)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"euler", "rk4", ""} {
		if _, err := ByName(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}
	if _, err := ByName("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
