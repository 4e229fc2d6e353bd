// Package sim closes the loop in software: a kinematic bicycle plant that
// accepts commands like an actuator and reports its state like an estimator.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/physics"
)

const DefaultDt = 0.01

var ErrNotEnabled = errors.New("sim: actuators not enabled")

// StateSink receives the plant state after every integration step.
type StateSink interface {
	Update(s dynamo.VehicleState) bool
}

// Plant integrates the bicycle model under the last command it received.
// It is safe for concurrent use.
type Plant struct {
	mu      sync.Mutex
	model   *physics.Bicycle
	integ   dynamo.Integrator
	dt      float64
	x       dynamo.State
	u       dynamo.Input
	t       float64
	enabled bool
	cmds    uint64
}

func NewPlant(model *physics.Bicycle, integ dynamo.Integrator, x0 dynamo.VehicleState, dt float64) (*Plant, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("dt must be positive, got %f", dt)
	}
	if !x0.IsValid() {
		return nil, dynamo.ErrInvalidState
	}
	if model == nil {
		model = physics.NewBicycle()
	}
	return &Plant{model: model, integ: integ, dt: dt, x: x0.Vector()}, nil
}

func (p *Plant) Enable(_ context.Context, e control.Enable) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = e.Accel != 0 && e.Steer != 0
	return nil
}

func (p *Plant) PublishCommand(_ context.Context, cmd control.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return ErrNotEnabled
	}
	p.u = dynamo.Input{Accel: cmd.Accel, Steer: cmd.Steer}
	p.cmds++
	return nil
}

func (p *Plant) State() dynamo.VehicleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dynamo.FromVector(p.x)
}

func (p *Plant) Input() dynamo.Input {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.u
}

func (p *Plant) Time() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.t
}

// Advance integrates for d seconds in steps of at most dt.
func (p *Plant) Advance(d float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for d > 1e-12 {
		h := math.Min(p.dt, d)
		if err := p.step(h); err != nil {
			return err
		}
		d -= h
	}
	return nil
}

func (p *Plant) step(h float64) error {
	next := p.integ.Step(p.model, p.x, p.u.Vector(), p.t, h)
	// Braking holds the vehicle at rest rather than reversing it.
	if next[dynamo.IdxSpeed] < 0 {
		next[dynamo.IdxSpeed] = 0
	}
	if !next.IsValid() {
		return fmt.Errorf("invalid state at t=%.4f: %w", p.t, dynamo.ErrInvalidState)
	}
	p.x = next
	p.t += h
	return nil
}

// Run advances the plant in real time and publishes every step to sink
// until ctx is cancelled.
func (p *Plant) Run(ctx context.Context, sink StateSink) error {
	ticker := time.NewTicker(time.Duration(p.dt * float64(time.Second)))
	defer ticker.Stop()

	sink.Update(p.State())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Advance(p.dt); err != nil {
				return err
			}
			sink.Update(p.State())
		}
	}
}
