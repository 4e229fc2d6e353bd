package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/DeepakIngole/genesis-path-follower/internal/config"
	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
	"github.com/DeepakIngole/genesis-path-follower/internal/metrics"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/storage"
	"github.com/DeepakIngole/genesis-path-follower/internal/viz"
)

// stack is one wired controller: provider, solver, arbiter, loop and the
// sinks hanging off the arbiter.
type stack struct {
	cfg     *config.Config
	log     *logging.Logger
	ref     *reference.GPSReference
	loop    *control.Loop
	metrics *metrics.Set
	store   *storage.Store
	runID   string
	feed    *viz.Feed
	monitor *viz.WebMonitor
}

func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Log.Level)
	switch {
	case cfg.Log.File != "":
		return logging.NewFileLogger(cfg.Log.File, level, !quiet)
	case quiet:
		return logging.New(io.Discard, level), nil
	default:
		return logging.New(os.Stderr, level), nil
	}
}

// buildReference loads the waypoint file, or generates the configured shape.
func buildReference(cfg *config.Config) (*reference.GPSReference, error) {
	if cfg.Waypoints != "" {
		return reference.LoadGPSReference(cfg.Waypoints, *cfg.Origin, cfg.ReferenceConfig())
	}
	wps, err := reference.Generate(cfg.Sim.Shape, *cfg.Origin, cfg.TargetVel, cfg.Sim.Spacing)
	if err != nil {
		return nil, err
	}
	path, err := reference.NewPath(wps, *cfg.Origin)
	if err != nil {
		return nil, err
	}
	return reference.NewGPSReference(path, cfg.ReferenceConfig())
}

func newStack(ctx context.Context, cfg *config.Config, log *logging.Logger, mode string, state control.StateSource, actuator control.CommandSink, record bool) (*stack, error) {
	ref, err := buildReference(cfg)
	if err != nil {
		return nil, err
	}
	params, err := cfg.MPCParams()
	if err != nil {
		return nil, err
	}
	solver, err := mpc.NewKinematic(params, cfg.Bicycle())
	if err != nil {
		return nil, err
	}

	arb := control.NewArbiter(actuator, cfg.StopAccel, cfg.Enable, log)
	s := &stack{
		cfg:     cfg,
		log:     log,
		ref:     ref,
		metrics: metrics.Default(cfg.MPC.SteerMax, cfg.RateHz),
	}
	arb.AddDiagnosticSink(s.metrics)

	if record && cfg.Storage.Record {
		if err := s.beginRecording(ctx, mode, arb); err != nil {
			return nil, err
		}
	}
	if dashboard {
		s.feed = viz.NewFeed()
		arb.AddCommandTap(s.feed)
		arb.AddDiagnosticSink(s.feed)
	}
	if monitorAddr != "" {
		s.monitor = viz.NewWebMonitor(log)
		arb.AddCommandTap(s.monitor)
		arb.AddDiagnosticSink(s.monitor)
	}

	s.loop, err = control.New(cfg.LoopConfig(), state, ref, solver, arb, log)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *stack) beginRecording(ctx context.Context, mode string, arb *control.Arbiter) error {
	st, err := storage.Open(s.cfg.Storage.Path)
	if err != nil {
		return err
	}
	snapshot, _ := yaml.Marshal(s.cfg)
	source := s.cfg.Waypoints
	if source == "" {
		source = "shape:" + s.cfg.Sim.Shape
	}
	id, err := st.BeginRun(ctx, storage.RunMetadata{
		Mode:      mode,
		Waypoints: source,
		Horizon:   s.cfg.Horizon,
		Dt:        s.cfg.Dt,
		RateHz:    s.cfg.RateHz,
		Config:    string(snapshot),
	})
	if err != nil {
		st.Close()
		return err
	}
	rec := st.Recorder(id)
	arb.AddCommandTap(rec)
	arb.AddDiagnosticSink(rec)
	s.store, s.runID = st, id
	s.log.Info("recording run %s to %s", id, s.cfg.Storage.Path)
	return nil
}

// serve runs the loop plus extra workers until one fails, ctx is cancelled
// or the dashboard is closed. Cancellation is not an error.
func (s *stack) serve(ctx context.Context, workers ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.loop.Run(gctx) })
	for _, w := range workers {
		w := w
		g.Go(func() error { return w(gctx) })
	}
	if s.monitor != nil {
		g.Go(func() error { return s.monitor.ListenAndServe(gctx, monitorAddr) })
	}
	if s.feed != nil {
		model := viz.NewModel(s.feed, viz.Options{
			Title:   strings.TrimSpace(s.cfg.Waypoints + " " + s.cfg.Sim.Shape),
			Path:    s.ref.Path(),
			Loop:    s.loop,
			Metrics: s.metrics.Values,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
		g.Go(func() error {
			_, err := p.Run()
			cancel()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// finish stores the final metrics and prints the summary.
func (s *stack) finish(ctx context.Context) error {
	defer s.close()
	vals := s.metrics.Values()
	st := s.loop.Stats()

	fmt.Printf("state: %s\n", s.loop.State())
	fmt.Printf("ticks: %d (idle %d, skipped %d)\n", st.Ticks, st.Idle, st.Skipped)
	fmt.Printf("solves: %d (optimal %d)\n", st.Solves, st.Optimal)
	if s.runID != "" {
		fmt.Printf("run id: %s\n", s.runID)
	}
	printMetrics(vals)

	if s.store == nil {
		return nil
	}
	return s.store.FinishRun(ctx, s.runID, vals)
}

func (s *stack) close() {
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
}

func printMetrics(vals map[string]float64) {
	names := make([]string, 0, len(vals))
	for k := range vals {
		names = append(names, k)
	}
	slices.Sort(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, vals[name])
	}
}

// startPose places the vehicle at the start of the path, shifted sideways.
func startPose(path *reference.Path, offset, v float64) dynamo.VehicleState {
	yaw := path.Yaw[0]
	return dynamo.VehicleState{
		X:     path.X[0] - offset*math.Sin(yaw),
		Y:     path.Y[0] + offset*math.Cos(yaw),
		Yaw:   yaw,
		Speed: v,
	}
}

func watchdog(d time.Duration, done func() bool) func(context.Context) error {
	return func(ctx context.Context) error {
		deadline := time.NewTimer(d)
		defer deadline.Stop()
		poll := time.NewTicker(100 * time.Millisecond)
		defer poll.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline.C:
				return context.DeadlineExceeded
			case <-poll.C:
				if done() {
					return context.Canceled
				}
			}
		}
	}
}
