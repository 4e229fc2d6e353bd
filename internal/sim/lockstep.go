package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

type Config struct {
	Duration float64       // s of simulated time
	Period   time.Duration // control period
	// Settle ends the run once the loop is STOPPED and the plant is at rest.
	Settle bool
}

type Result struct {
	Steps    int
	Time     float64
	Final    dynamo.VehicleState
	Stopped  bool
	Trace    []dynamo.VehicleState
	Commands []dynamo.Input
}

// RunLockstep alternates loop ticks and plant integration without waiting
// on the wall clock. The plant is sampled into sink before every tick.
func RunLockstep(ctx context.Context, loop *control.Loop, plant *Plant, sink StateSink, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	period := cfg.Period.Seconds()
	steps := int(cfg.Duration/period + 1e-9)
	res := &Result{
		Trace:    make([]dynamo.VehicleState, 0, steps+1),
		Commands: make([]dynamo.Input, 0, steps),
	}
	if err := loop.Arbiter().Enable(ctx); err != nil {
		return nil, err
	}

	res.Trace = append(res.Trace, plant.State())
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		sink.Update(plant.State())
		if err := loop.Step(ctx); err != nil {
			return res, fmt.Errorf("tick %d: %w", i+1, err)
		}
		res.Commands = append(res.Commands, plant.Input())
		if err := plant.Advance(period); err != nil {
			return res, err
		}

		res.Steps++
		res.Trace = append(res.Trace, plant.State())
		if cfg.Settle && loop.State() == control.Stopped && plant.State().Speed == 0 {
			break
		}
	}

	res.Final = plant.State()
	res.Time = plant.Time()
	res.Stopped = loop.State() == control.Stopped
	return res, nil
}

func validateConfig(cfg Config) error {
	if cfg.Period <= 0 {
		return fmt.Errorf("period must be positive, got %v", cfg.Period)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	return nil
}

// Scenario is one independent closed loop for an Ensemble.
type Scenario struct {
	Name  string
	Loop  *control.Loop
	Plant *Plant
	Sink  StateSink
}

// Ensemble runs scenarios concurrently in lockstep. Scenarios must not
// share loops, solvers or plants.
type Ensemble struct {
	build func(i int) (*Scenario, error)
	n     int
}

func NewEnsemble(n int, build func(i int) (*Scenario, error)) *Ensemble {
	return &Ensemble{build: build, n: n}
}

func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.n)
	errs := make([]error, e.n)

	var wg sync.WaitGroup
	for i := 0; i < e.n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sc, err := e.build(idx)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = RunLockstep(ctx, sc.Loop, sc.Plant, sc.Sink, cfg)
			if errs[idx] != nil {
				errs[idx] = fmt.Errorf("%s: %w", sc.Name, errs[idx])
			}
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
