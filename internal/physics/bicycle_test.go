package physics

import (
	"errors"
	"math"
	"testing"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

func TestBicycleStraightLine(t *testing.T) {
	b := NewBicycle()
	dx := b.Derive(dynamo.State{0, 0, 0, 5}, dynamo.Control{0, 0}, 0)

	if math.Abs(dx[0]-5) > 1e-12 || math.Abs(dx[1]) > 1e-12 || math.Abs(dx[2]) > 1e-12 {
		t.Errorf("straight driving should only move along x, got %v", dx)
	}
	if dx[3] != 0 {
		t.Errorf("expected zero acceleration, got %f", dx[3])
	}
}

func TestBicycleSteeringTurnsLeft(t *testing.T) {
	b := NewBicycle()
	dx := b.Derive(dynamo.State{0, 0, 0, 5}, dynamo.Control{1.0, 0.2}, 0)

	if dx[2] <= 0 {
		t.Errorf("positive steer should give positive yaw rate, got %f", dx[2])
	}
	if dx[1] <= 0 {
		t.Errorf("positive steer should give positive lateral velocity, got %f", dx[1])
	}
	if dx[3] != 1.0 {
		t.Errorf("expected acceleration 1.0, got %f", dx[3])
	}
}

func TestBicycleMissingControl(t *testing.T) {
	dx := NewBicycle().Derive(dynamo.State{0, 0, math.Pi / 2, 2}, nil, 0)
	if math.Abs(dx[0]) > 1e-12 || math.Abs(dx[1]-2) > 1e-12 {
		t.Errorf("expected motion along +y, got %v", dx)
	}
}

func TestBicycleParams(t *testing.T) {
	b := NewBicycle()
	if err := b.SetParam("lf", 2.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.GetParams()["lf"] != 2.0 {
		t.Errorf("expected lf 2.0, got %f", b.Lf)
	}
	if err := b.SetParam("lr", -1); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if err := b.SetParam("mass", 1); err == nil {
		t.Error("expected error for unknown param")
	}
}
