package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/integrators"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/physics"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/statebuf"
)

func newPlant(t *testing.T, x0 dynamo.VehicleState) *Plant {
	t.Helper()
	p, err := NewPlant(physics.NewBicycle(), integrators.NewRK4(), x0, DefaultDt)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPlantRequiresEnable(t *testing.T) {
	p := newPlant(t, dynamo.VehicleState{})
	ctx := context.Background()

	if err := p.PublishCommand(ctx, control.Command{Accel: 1}); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
	if err := p.Enable(ctx, control.Enable{Accel: 2, Steer: 1}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishCommand(ctx, control.Command{Accel: 1}); err != nil {
		t.Fatalf("command after enable failed: %v", err)
	}
}

func TestPlantAccelerates(t *testing.T) {
	p := newPlant(t, dynamo.VehicleState{})
	ctx := context.Background()
	_ = p.Enable(ctx, control.Enable{Accel: 2, Steer: 1})
	_ = p.PublishCommand(ctx, control.Command{Accel: 2})

	if err := p.Advance(1.0); err != nil {
		t.Fatal(err)
	}
	s := p.State()
	if math.Abs(s.Speed-2) > 1e-9 {
		t.Errorf("expected speed 2, got %f", s.Speed)
	}
	if math.Abs(s.X-1) > 1e-6 {
		t.Errorf("expected x 1, got %f", s.X)
	}
	if math.Abs(p.Time()-1) > 1e-9 {
		t.Errorf("expected t 1, got %f", p.Time())
	}
}

func TestPlantBrakesToRest(t *testing.T) {
	p := newPlant(t, dynamo.VehicleState{Speed: 1})
	ctx := context.Background()
	_ = p.Enable(ctx, control.Enable{Accel: 2, Steer: 1})
	_ = p.PublishCommand(ctx, control.Command{Accel: -1, Stop: true})

	if err := p.Advance(3); err != nil {
		t.Fatal(err)
	}
	s := p.State()
	if s.Speed != 0 {
		t.Errorf("expected rest, got speed %f", s.Speed)
	}
	if s.X < 0.4 || s.X > 0.6 {
		t.Errorf("expected ~0.5 m stopping distance, got %f", s.X)
	}
}

func TestPlantTurnsLeft(t *testing.T) {
	p := newPlant(t, dynamo.VehicleState{Speed: 5})
	ctx := context.Background()
	_ = p.Enable(ctx, control.Enable{Accel: 2, Steer: 1})
	_ = p.PublishCommand(ctx, control.Command{Steer: 0.1})

	_ = p.Advance(1)
	s := p.State()
	if s.Yaw <= 0 || s.Y <= 0 {
		t.Errorf("positive steer should turn left, got %v", s)
	}
}

func TestNewPlantValidates(t *testing.T) {
	if _, err := NewPlant(nil, integrators.NewRK4(), dynamo.VehicleState{}, 0); err == nil {
		t.Error("expected error for zero dt")
	}
	if _, err := NewPlant(nil, integrators.NewRK4(), dynamo.VehicleState{X: math.Inf(1)}, 0.01); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestPlantRun(t *testing.T) {
	p := newPlant(t, dynamo.VehicleState{Speed: 1})
	buf := statebuf.New()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx, buf); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	sample, ok := buf.Snapshot()
	if !ok {
		t.Fatal("plant never published")
	}
	if sample.State.X <= 0 {
		t.Errorf("plant did not move: %v", sample.State)
	}
}

type closedLoop struct {
	loop  *control.Loop
	plant *Plant
	buf   *statebuf.Buffer
}

func newClosedLoop(t *testing.T, speed float64) closedLoop {
	t.Helper()
	wps, err := reference.Generate("straight", reference.Origin{}, speed, 1)
	if err != nil {
		t.Fatal(err)
	}
	path, err := reference.NewPath(wps, reference.Origin{})
	if err != nil {
		t.Fatal(err)
	}
	params := mpc.DefaultParams()
	ref, err := reference.NewGPSReference(path, reference.Config{Horizon: params.Horizon, DT: params.DT, StopDistance: 2})
	if err != nil {
		t.Fatal(err)
	}
	solver, err := mpc.NewKinematic(params, physics.NewBicycle())
	if err != nil {
		t.Fatal(err)
	}

	plant := newPlant(t, dynamo.VehicleState{Y: 0.3, Speed: speed})
	buf := statebuf.New()
	arb := control.NewArbiter(plant, -1, control.Enable{Accel: 2, Steer: 1}, nil)
	loop, err := control.New(control.Config{RateHz: 50, DesiredSpeed: speed}, buf, ref, solver, arb, nil)
	if err != nil {
		t.Fatal(err)
	}
	return closedLoop{loop: loop, plant: plant, buf: buf}
}

func TestRunLockstepFollowsPath(t *testing.T) {
	if testing.Short() {
		t.Skip("closed-loop run")
	}
	cl := newClosedLoop(t, 5)

	res, err := RunLockstep(context.Background(), cl.loop, cl.plant, cl.buf, Config{
		Duration: 40,
		Period:   cl.loop.Period(),
		Settle:   true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !res.Stopped {
		t.Errorf("expected the loop to reach the end of the path, final %v", res.Final)
	}
	if res.Final.Speed != 0 {
		t.Errorf("expected the plant at rest, got %f", res.Final.Speed)
	}
	if res.Final.X < 90 {
		t.Errorf("expected to finish near x=100, got %f", res.Final.X)
	}
	for i, s := range res.Trace {
		if math.Abs(s.Y) > 1 {
			t.Fatalf("step %d: left the path: %v", i, s)
		}
	}
	// 10 s in, the initial 0.3 m offset should be gone.
	if len(res.Trace) > 500 {
		if y := res.Trace[500].Y; math.Abs(y) > 0.1 {
			t.Errorf("lateral offset not corrected: %f", y)
		}
	}
	if st := cl.loop.Stats(); st.Optimal == 0 {
		t.Errorf("no optimal solves: %+v", st)
	}
}

func TestRunLockstepValidates(t *testing.T) {
	cl := newClosedLoop(t, 5)
	if _, err := RunLockstep(context.Background(), cl.loop, cl.plant, cl.buf, Config{Duration: 1}); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestEnsemble(t *testing.T) {
	if testing.Short() {
		t.Skip("closed-loop run")
	}
	loops := []closedLoop{newClosedLoop(t, 3), newClosedLoop(t, 6)}
	e := NewEnsemble(len(loops), func(i int) (*Scenario, error) {
		cl := loops[i]
		return &Scenario{Name: "straight", Loop: cl.loop, Plant: cl.plant, Sink: cl.buf}, nil
	})

	results, err := e.Run(context.Background(), Config{Duration: 2, Period: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Final.X <= results[0].Final.X {
		t.Errorf("faster scenario should travel further: %f vs %f", results[1].Final.X, results[0].Final.X)
	}
}
