package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/DeepakIngole/genesis-path-follower/internal/config"
	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/export"
	"github.com/DeepakIngole/genesis-path-follower/internal/integrators"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
	"github.com/DeepakIngole/genesis-path-follower/internal/metrics"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/sim"
	"github.com/DeepakIngole/genesis-path-follower/internal/statebuf"
	"github.com/DeepakIngole/genesis-path-follower/internal/storage"
	"github.com/DeepakIngole/genesis-path-follower/internal/transport"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runVehicle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Waypoints == "" {
		return &dynamo.ConfigurationError{Field: "waypoints", Reason: "run needs a waypoint file"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg, dashboard)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := signalContext()
	defer cancel()

	link, err := transport.Open(ctx, cfg.TransportOptions(), log)
	if err != nil {
		return err
	}
	defer link.Close()

	buf := statebuf.New()
	s, err := newStack(ctx, cfg, log, "run", buf, link, true)
	if err != nil {
		return err
	}
	log.Info("tracking %s at %.0f Hz over %s", cfg.Waypoints, cfg.RateHz, cfg.Transport.Kind)

	runErr := s.serve(ctx, func(ctx context.Context) error {
		return link.Run(ctx, buf)
	})
	ls := link.Stats()
	log.Info("link: received %d, dropped %d, errors %d, sent %d", ls.Received, ls.Dropped, ls.Errors, ls.Sent)
	if err := s.finish(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.ForSim()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg, dashboard)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if ensemble > 1 {
		return runEnsemble(ctx, cfg, ensemble)
	}

	ref, err := buildReference(cfg)
	if err != nil {
		return err
	}
	plant, err := sim.NewPlant(cfg.Bicycle(), integrators.NewRK4(),
		startPose(ref.Path(), cfg.Sim.LateralOffset, cfg.Sim.Speed0), cfg.Sim.PlantDt)
	if err != nil {
		return err
	}

	buf := statebuf.New()
	s, err := newStack(ctx, cfg, log, "sim", buf, plant, true)
	if err != nil {
		return err
	}

	start := time.Now()
	var runErr error
	if cfg.Sim.Realtime || dashboard || monitorAddr != "" {
		runErr = s.serve(ctx,
			func(ctx context.Context) error { return plant.Run(ctx, buf) },
			watchdog(time.Duration(cfg.Sim.Duration*float64(time.Second)), func() bool {
				return s.loop.State() == control.Stopped && plant.State().Speed == 0
			}),
		)
	} else {
		var res *sim.Result
		res, runErr = sim.RunLockstep(ctx, s.loop, plant, buf, sim.Config{
			Duration: cfg.Sim.Duration,
			Period:   s.loop.Period(),
			Settle:   true,
		})
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
		if res != nil {
			fmt.Printf("simulated %.1fs in %v (%d ticks)\n", res.Time, time.Since(start).Round(time.Millisecond), res.Steps)
			fmt.Printf("final: %s\n", res.Final)
		}
	}
	if err := s.finish(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// runEnsemble tracks the same path from offsets spread over
// [-offset, +offset] and prints one row per scenario.
func runEnsemble(ctx context.Context, cfg *config.Config, n int) error {
	spread := cfg.Sim.LateralOffset
	if spread == 0 {
		spread = 1
	}
	offsets := make([]float64, n)
	for i := range offsets {
		offsets[i] = -spread + 2*spread*float64(i)/float64(n-1)
	}

	sets := make([]*metrics.Set, n)
	build := func(i int) (*sim.Scenario, error) {
		sc, set, err := simScenario(cfg, offsets[i])
		sets[i] = set
		return sc, err
	}

	start := time.Now()
	results, err := sim.NewEnsemble(n, build).Run(ctx, sim.Config{
		Duration: cfg.Sim.Duration,
		Period:   cfg.LoopConfig().Period(),
		Settle:   true,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d scenarios in %v\n\n", n, time.Since(start).Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tTIME\tSTOPPED\tCROSS_TRACK\tSOLVE_RATE\tSOLVE_MS")
	for i, res := range results {
		vals := sets[i].Values()
		fmt.Fprintf(w, "%+.2f\t%.1fs\t%v\t%.3f\t%.3f\t%.2f\n",
			offsets[i], res.Time, res.Stopped, vals["cross_track"], vals["solve_rate"], vals["solve_time_ms"])
	}
	return w.Flush()
}

// simScenario builds an unrecorded, silent closed loop against a fresh
// plant offset sideways from the path start.
func simScenario(cfg *config.Config, offset float64) (*sim.Scenario, *metrics.Set, error) {
	ref, err := buildReference(cfg)
	if err != nil {
		return nil, nil, err
	}
	plant, err := sim.NewPlant(cfg.Bicycle(), integrators.NewRK4(),
		startPose(ref.Path(), offset, cfg.Sim.Speed0), cfg.Sim.PlantDt)
	if err != nil {
		return nil, nil, err
	}
	params, err := cfg.MPCParams()
	if err != nil {
		return nil, nil, err
	}
	solver, err := mpc.NewKinematic(params, cfg.Bicycle())
	if err != nil {
		return nil, nil, err
	}

	buf := statebuf.New()
	arb := control.NewArbiter(plant, cfg.StopAccel, cfg.Enable, logging.Nop())
	set := metrics.Default(cfg.MPC.SteerMax, cfg.RateHz)
	arb.AddDiagnosticSink(set)
	loop, err := control.New(cfg.LoopConfig(), buf, ref, solver, arb, logging.Nop())
	if err != nil {
		return nil, nil, err
	}
	sc := &sim.Scenario{
		Name:  fmt.Sprintf("offset %+.2f", offset),
		Loop:  loop,
		Plant: plant,
		Sink:  buf,
	}
	return sc, set, nil
}

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.Path)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tSTARTED\tDURATION\tWAYPOINTS\tSOLVE_RATE\tCROSS_TRACK")
	for _, run := range runs {
		duration := "-"
		if !run.Ended.IsZero() {
			duration = run.Ended.Sub(run.Started).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\t%.3f\n",
			run.ID[:8],
			run.Mode,
			run.Started.Format("2006-01-02 15:04:05"),
			duration,
			run.Waypoints,
			run.Metrics["solve_rate"],
			run.Metrics["cross_track"],
		)
	}
	return w.Flush()
}

// loadRun reads a run by ID or unique ID prefix.
func loadRun(cmd *cobra.Command, id string) (*export.ExportData, []control.Diagnostic, error) {
	st, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	ctx := cmd.Context()
	meta, err := st.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ticks, err := st.LoadTicks(ctx, meta.ID)
	if err != nil {
		return nil, nil, err
	}
	cmds, err := st.LoadCommands(ctx, meta.ID)
	if err != nil {
		return nil, nil, err
	}
	return export.Build(*meta, ticks, cmds), ticks, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	data, ticks, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	if data.Steps == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", data.Run.ID)
	fmt.Printf("mode: %s, waypoints: %s\n", data.Run.Mode, data.Run.Waypoints)
	fmt.Printf("samples: %d\n\n", data.Steps)

	speed := make([]float64, data.Steps)
	crossTrack := make([]float64, 0, data.Steps)
	solveMs := make([]float64, 0, data.Steps)
	ct := metrics.NewCrossTrack()
	for i, s := range data.States {
		speed[i] = s.Speed
	}
	for _, d := range ticks {
		ct.Reset()
		ct.PublishDiagnostic(cmd.Context(), d)
		crossTrack = append(crossTrack, ct.Value())
		solveMs = append(solveMs, float64(d.SolveTime.Microseconds())/1000)
	}

	for _, series := range []struct {
		caption string
		data    []float64
	}{
		{"speed (m/s)", speed},
		{"cross-track error (m)", crossTrack},
		{"solve time (ms)", solveMs},
	} {
		if len(series.data) == 0 {
			continue
		}
		graph := asciigraph.Plot(series.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(series.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	data, _, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	if err := export.ExportJSON(jsonOut, data); err != nil {
		return err
	}
	if jsonOut != "-" {
		fmt.Printf("exported to %s\n", jsonOut)
	}
	return nil
}

func exportPNG(cmd *cobra.Command, args []string) error {
	data, _, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	base := pngOut
	if base == "" {
		base = data.Run.ID[:8]
	}
	files, err := export.ExportPNG(base, data)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("wrote %s\n", f)
	}
	return nil
}

func generateWaypoints(cmd *cobra.Command, args []string) error {
	o := reference.Origin{Lat0: lat0, Lon0: lon0, Yaw0: yaw0}
	wps, err := reference.Generate(args[0], o, speed, spacing)
	if err != nil {
		return err
	}
	if waypointsOut == "-" {
		return reference.WriteCSV(os.Stdout, wps)
	}
	f, err := os.Create(waypointsOut)
	if err != nil {
		return err
	}
	if err := reference.WriteCSV(f, wps); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (origin %.6f, %.6f)\n", waypointsOut, o.Lat0, o.Lon0)
	return nil
}
