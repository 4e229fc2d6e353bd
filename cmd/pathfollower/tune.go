package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeepakIngole/genesis-path-follower/internal/config"
	"github.com/DeepakIngole/genesis-path-follower/internal/metrics"
	"github.com/DeepakIngole/genesis-path-follower/internal/optim"
	"github.com/DeepakIngole/genesis-path-follower/internal/sim"
)

var (
	tuneAxes    []string
	tuneMetric  string
	tuneWorkers int
	tuneTop     int
	tuneSave    string
)

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search MPC weights against the simulated vehicle",
		Long: "Runs one lockstep simulation per combination of --param values and ranks them by --metric.\n" +
			"Tunable parameters: " + strings.Join(config.TunableParams(), ", "),
		Example: "  pathfollower tune --shape oval --offset 1 --param q.y=1,5,10 --param r_delta.steer=10,100",
		Args:    cobra.NoArgs,
		RunE:    runTune,
	}
	f := cmd.Flags()
	f.StringArrayVar(&tuneAxes, "param", nil, "searched parameter as name=v1,v2,... (repeatable)")
	f.StringVar(&tuneMetric, "metric", "cross_track", "metric to rank by")
	f.IntVar(&tuneWorkers, "workers", 0, "concurrent simulations (0 = GOMAXPROCS)")
	f.IntVar(&tuneTop, "top", 5, "rows to print")
	f.StringVar(&tuneSave, "save", "", "write the best configuration to this yaml file")
	f.StringVar(&waypointsFile, "waypoints", "", "waypoint CSV (lat,lon[,t,v,psi])")
	f.StringVar(&shape, "shape", "", "generated path (instead of --waypoints)")
	f.Float64Var(&simDuration, "time", config.DefaultSimTime, "simulated seconds per trial")
	f.Float64Var(&lateralOffset, "offset", 0, "initial lateral offset from the path (m)")
	f.Float64Var(&speed0, "speed0", 0, "initial speed (m/s)")
	return cmd
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.ForSim()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(tuneAxes) == 0 {
		return fmt.Errorf("tune needs at least one --param name=v1,v2,...")
	}
	if !metrics.Default(0, 0).Has(tuneMetric) {
		return fmt.Errorf("unknown metric %q", tuneMetric)
	}

	axes := make([]optim.Axis, 0, len(tuneAxes))
	for _, s := range tuneAxes {
		a, err := optim.ParseAxis(s)
		if err != nil {
			return err
		}
		if err := cfg.Clone().SetParam(a.Name, a.Values[0]); err != nil {
			return err
		}
		axes = append(axes, a)
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := signalContext()
	defer cancel()

	g := optim.NewGridSearch(axes, tuneWorkers)
	log.Info("tuning %d combinations, ranking by %s", g.Size(), tuneMetric)

	start := time.Now()
	trials, err := g.Search(ctx, func(ctx context.Context, params map[string]float64) (float64, error) {
		c := cfg.Clone()
		if err := c.Apply(params); err != nil {
			return 0, err
		}
		if err := c.Validate(); err != nil {
			return 0, err
		}
		sc, set, err := simScenario(c, c.Sim.LateralOffset)
		if err != nil {
			return 0, err
		}
		res, err := sim.RunLockstep(ctx, sc.Loop, sc.Plant, sc.Sink, sim.Config{
			Duration: c.Sim.Duration,
			Period:   sc.Loop.Period(),
			Settle:   true,
		})
		if err != nil {
			return 0, err
		}
		if !res.Stopped {
			log.Debug("%v did not reach the end of the path in %.0fs", params, c.Sim.Duration)
		}
		return score(set.Values()[tuneMetric]), nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d trials in %v\n\n", len(trials), time.Since(start).Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := []string{"RANK"}
	for _, a := range axes {
		header = append(header, a.Name)
	}
	fmt.Fprintln(w, strings.Join(append(header, strings.ToUpper(tuneMetric)), "\t"))
	for i, tr := range trials[:min(tuneTop, len(trials))] {
		row := []string{fmt.Sprint(i + 1)}
		for _, a := range axes {
			row = append(row, fmt.Sprintf("%g", tr.Params[a.Name]))
		}
		if tr.Err != nil {
			row = append(row, "error: "+tr.Err.Error())
		} else {
			row = append(row, fmt.Sprintf("%.4f", score(tr.Score)))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	best := trials[0]
	if best.Err != nil {
		return fmt.Errorf("every trial failed: %w", best.Err)
	}
	if tuneSave == "" {
		return nil
	}
	tuned := cfg.Clone()
	if err := tuned.Apply(best.Params); err != nil {
		return err
	}
	if err := config.Save(tuneSave, tuned); err != nil {
		return err
	}
	fmt.Printf("\nsaved best configuration to %s\n", tuneSave)
	return nil
}

// score maps a metric value onto lower-is-better and back.
func score(v float64) float64 {
	if metrics.HigherIsBetter(tuneMetric) {
		return -v
	}
	return v
}
