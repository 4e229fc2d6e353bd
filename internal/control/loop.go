package control

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/statebuf"
)

const DefaultRateHz = 50.0

type TrackingState int32

const (
	Tracking TrackingState = iota
	Stopped
)

func (s TrackingState) String() string {
	switch s {
	case Tracking:
		return "TRACKING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("TrackingState(%d)", int32(s))
	}
}

// WarmStartPolicy decides what a solve hands to the next one.
type WarmStartPolicy int

const (
	// WarmAlways carries every solve's output forward, failed or not.
	WarmAlways WarmStartPolicy = iota
	// WarmOptimalOnly carries only Optimal solves and cold-starts after
	// anything else.
	WarmOptimalOnly
)

func (p WarmStartPolicy) String() string {
	if p == WarmOptimalOnly {
		return "optimal_only"
	}
	return "always"
}

func ParseWarmStartPolicy(s string) (WarmStartPolicy, error) {
	switch strings.ToLower(s) {
	case "", "always":
		return WarmAlways, nil
	case "optimal_only":
		return WarmOptimalOnly, nil
	default:
		return WarmAlways, &dynamo.ConfigurationError{Field: "mpc.warm_start", Reason: fmt.Sprintf("unknown policy %q", s)}
	}
}

// StateSource is the loop's view of the state buffer.
type StateSource interface {
	Snapshot() (statebuf.Sample, bool)
}

type Config struct {
	RateHz float64
	// DesiredSpeed is replicated across the horizon in fixed-speed mode.
	DesiredSpeed float64
	WarmStart    WarmStartPolicy
	// StaleAfter logs a warning when the newest estimate is older than this.
	// Zero disables the check.
	StaleAfter time.Duration
}

// Period is the tick interval at RateHz.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.RateHz)
}

type Stats struct {
	Ticks   uint64
	Idle    uint64
	Solves  uint64
	Optimal uint64
	Stops   uint64
	Skipped uint64
}

// Loop runs the periodic solve cycle. Step and Run must be called from a
// single goroutine; State and Stats may be read from anywhere.
type Loop struct {
	cfg    Config
	state  StateSource
	ref    reference.Provider
	solver mpc.Solver
	arb    *Arbiter
	log    *logging.Logger

	tracking atomic.Int32
	warm     *mpc.WarmStart
	tick     uint64

	ticks, idle, solves, optimal, stops, skipped atomic.Uint64
}

func New(cfg Config, state StateSource, ref reference.Provider, solver mpc.Solver, arb *Arbiter, log *logging.Logger) (*Loop, error) {
	if cfg.RateHz <= 0 {
		return nil, &dynamo.ConfigurationError{Field: "rate_hz", Reason: "must be positive"}
	}
	if ref.Mode() == reference.FixedSpeed && cfg.DesiredSpeed <= 0 {
		return nil, &dynamo.ConfigurationError{Field: "target_vel", Reason: "must be positive in fixed-speed mode"}
	}
	if got, want := ref.Points(), solver.Horizon()+1; got != want {
		return nil, &dynamo.HorizonError{What: "reference provider", Got: got, Want: want}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Loop{
		cfg:    cfg,
		state:  state,
		ref:    ref,
		solver: solver,
		arb:    arb,
		log:    log,
	}, nil
}

func (l *Loop) State() TrackingState {
	return TrackingState(l.tracking.Load())
}

func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:   l.ticks.Load(),
		Idle:    l.idle.Load(),
		Solves:  l.solves.Load(),
		Optimal: l.optimal.Load(),
		Stops:   l.stops.Load(),
		Skipped: l.skipped.Load(),
	}
}

// WarmStart returns a copy of the warm start the next solve will receive.
func (l *Loop) WarmStart() *mpc.WarmStart {
	return l.warm.Clone()
}

func (l *Loop) Arbiter() *Arbiter { return l.arb }

func (l *Loop) Period() time.Duration { return l.cfg.Period() }

// Step runs one tick. Only a failure to publish a command is returned;
// everything else is recovered by the next tick.
func (l *Loop) Step(ctx context.Context) error {
	l.tick++
	l.ticks.Add(1)
	tick := l.tick

	sample, ok := l.state.Snapshot()
	if !ok {
		l.idle.Add(1)
		return nil
	}
	x := sample.State
	if l.cfg.StaleAfter > 0 {
		if age := sample.Age(time.Now()); age > l.cfg.StaleAfter {
			l.log.Warn("state estimate is %.1f ms old", age.Seconds()*1000)
		}
	}

	if l.State() == Stopped {
		return l.stop(ctx, tick)
	}

	h, err := l.ref.Waypoints(x, l.cfg.DesiredSpeed)
	if err != nil {
		l.skipped.Add(1)
		l.log.Error("reference: %v", err)
		return nil
	}
	if len(h.Points) != l.ref.Points() {
		l.skipped.Add(1)
		l.log.Error("reference: %v", &dynamo.HorizonError{What: "horizon", Got: len(h.Points), Want: l.ref.Points()})
		return nil
	}

	if h.Stop {
		l.tracking.Store(int32(Stopped))
		l.warm = nil
		l.log.Info("end of path reached at tick %d; %s -> %s", tick, Tracking, Stopped)
		return l.stop(ctx, tick)
	}

	refs := make([]dynamo.VehicleState, len(h.Points)-1)
	copy(refs, h.Points[1:])
	if l.ref.Mode() == reference.FixedSpeed {
		for i := range refs {
			refs[i].Speed = l.cfg.DesiredSpeed
		}
	}

	res := l.solver.Solve(x, refs, l.warm)
	l.solves.Add(1)

	switch {
	case l.cfg.WarmStart == WarmAlways, res.Status == mpc.Optimal:
		l.warm = res.WarmStart()
	default:
		l.warm = nil
	}

	u := res.First()
	l.solver.UpdatePreviousInput(u)
	l.log.Debug("Solve Status: %s, Acc: %.3f, SA: %.3f, ST: %.3f", res.Status, u.Accel, u.Steer, res.SolveTime.Seconds())
	if res.Err != nil {
		l.log.Warn("solver: %v", res.Err)
	}

	diag := NewDiagnostic(tick, x, res)
	if res.Status == mpc.Optimal {
		l.optimal.Add(1)
		cmd, err := l.arb.Drive(ctx, tick, u)
		if err != nil {
			return err
		}
		diag.Command = &cmd
	}
	l.arb.Diagnose(ctx, diag)
	return nil
}

func (l *Loop) stop(ctx context.Context, tick uint64) error {
	l.stops.Add(1)
	_, err := l.arb.Stop(ctx, tick)
	return err
}

// Run enables the actuators and ticks until ctx is cancelled or a command
// cannot be published. A tick that overruns the period delays the next one;
// missed ticks are not made up.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.arb.Enable(ctx); err != nil {
		return err
	}

	period := l.Period()
	l.log.Info("control loop started: rate=%.1f Hz horizon=%d mode=%s warm_start=%s",
		l.cfg.RateHz, l.solver.Horizon(), l.ref.Mode(), l.cfg.WarmStart)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("control loop stopped after %d ticks", l.ticks.Load())
			return ctx.Err()
		case <-timer.C:
		}

		start := time.Now()
		if err := l.Step(ctx); err != nil {
			l.log.Critical("tick %d: %v", l.tick, err)
			return err
		}

		wait := period - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
