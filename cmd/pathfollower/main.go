package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeepakIngole/genesis-path-follower/internal/config"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
)

var (
	configFile string
	preset     string
	dbPath     string
	logLevel   string
	logFile    string

	waypointsFile string
	targetVel     float64
	trackTime     bool
	horizon       int
	dt            float64
	rateHz        float64
	warmStart     string
	noRecord      bool
	dashboard     bool
	monitorAddr   string

	transportKind string
	canIface      string
	serialPort    string
	baud          int
	tcpAddr       string

	shape         string
	simDuration   float64
	lateralOffset float64
	speed0        float64
	realtime      bool
	ensemble      int

	jsonOut      string
	pngOut       string
	waypointsOut string
	lat0         float64
	lon0         float64
	yaw0         float64
	speed        float64
	spacing      float64
)

// main registers the pathfollower commands and exits with status 1 when the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "pathfollower",
		Short:         "MPC path-following controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "start from a named tuning preset")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath, "run database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace..critical)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also log to this file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "track a waypoint file on the vehicle",
		Args:  cobra.NoArgs,
		RunE:  runVehicle,
	}
	addLoopFlags(runCmd)
	runCmd.Flags().StringVar(&transportKind, "transport", "can", "state/command link (can, serial, tcp)")
	runCmd.Flags().StringVar(&canIface, "can-iface", "can0", "socketcan interface")
	runCmd.Flags().StringVar(&serialPort, "serial-port", "/dev/ttyUSB0", "serial device")
	runCmd.Flags().IntVar(&baud, "baud", 115200, "serial baud rate")
	runCmd.Flags().StringVar(&tcpAddr, "tcp-addr", "localhost:9000", "tcp bridge address")

	simCmd := &cobra.Command{
		Use:   "sim",
		Short: "track a path against the simulated vehicle",
		Args:  cobra.NoArgs,
		RunE:  runSim,
	}
	addLoopFlags(simCmd)
	simCmd.Flags().StringVar(&shape, "shape", "", fmt.Sprintf("generated path %v (instead of --waypoints)", reference.Shapes))
	simCmd.Flags().Float64Var(&simDuration, "time", config.DefaultSimTime, "simulated seconds")
	simCmd.Flags().Float64Var(&lateralOffset, "offset", 0, "initial lateral offset from the path (m)")
	simCmd.Flags().Float64Var(&speed0, "speed0", 0, "initial speed (m/s)")
	simCmd.Flags().BoolVar(&realtime, "realtime", false, "run on the wall clock instead of lockstep")
	simCmd.Flags().IntVar(&ensemble, "ensemble", 0, "run N lockstep scenarios with spread offsets")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&jsonOut, "out", "o", "-", "output file (- for stdout)")

	exportPNGCmd := &cobra.Command{
		Use:   "export-png [run_id]",
		Short: "plot path and speed profile to image files",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPNG,
	}
	exportPNGCmd.Flags().StringVarP(&pngOut, "out", "o", "", "output base name (default run id); .svg selects SVG")

	waypointsCmd := &cobra.Command{
		Use:   "waypoints [shape]",
		Short: "generate a waypoint CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  generateWaypoints,
	}
	waypointsCmd.Flags().StringVarP(&waypointsOut, "out", "o", "-", "output file (- for stdout)")
	waypointsCmd.Flags().Float64Var(&lat0, "lat0", config.DefaultOrigin.Lat0, "origin latitude")
	waypointsCmd.Flags().Float64Var(&lon0, "lon0", config.DefaultOrigin.Lon0, "origin longitude")
	waypointsCmd.Flags().Float64Var(&yaw0, "yaw0", config.DefaultOrigin.Yaw0, "origin heading offset (rad)")
	waypointsCmd.Flags().Float64Var(&speed, "speed", config.DefaultTargetVel, "speed used for the t column (m/s)")
	waypointsCmd.Flags().Float64Var(&spacing, "spacing", 1.0, "distance between waypoints (m)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list tuning presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("presets:")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Printf("  %-8s target %.1f m/s, horizon %d x %.2fs, steer max %.2f rad\n",
					name, p.TargetVel, p.Horizon, p.Dt, p.MPC.SteerMax)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, simCmd, newTuneCmd(), runsCmd, plotCmd, exportJSONCmd, exportPNGCmd, waypointsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addLoopFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&waypointsFile, "waypoints", "", "waypoint CSV (lat,lon[,t,v,psi])")
	cmd.Flags().Float64Var(&targetVel, "target-vel", config.DefaultTargetVel, "desired speed in fixed-speed mode (m/s)")
	cmd.Flags().BoolVar(&trackTime, "track-time", false, "follow the recorded timing instead of a fixed speed")
	cmd.Flags().IntVar(&horizon, "horizon", config.DefaultHorizon, "MPC horizon N")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "MPC step (s)")
	cmd.Flags().Float64Var(&rateHz, "rate", 50, "control rate (Hz)")
	cmd.Flags().StringVar(&warmStart, "warm-start", "always", "warm-start policy (always, optimal_only)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record the run")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "show the live terminal dashboard")
	cmd.Flags().StringVar(&monitorAddr, "monitor", "", "serve the websocket monitor on this address")
}

// loadConfig layers defaults, preset, config file and changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		if err := config.Overlay(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	f := cmd.Flags()
	if f.Changed("db") {
		cfg.Storage.Path = dbPath
	}
	if f.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if f.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if f.Changed("waypoints") {
		cfg.Waypoints = waypointsFile
	}
	if f.Changed("target-vel") {
		cfg.TargetVel = targetVel
	}
	if f.Changed("track-time") {
		cfg.TrackUsingTime = trackTime
	}
	if f.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("rate") {
		cfg.RateHz = rateHz
	}
	if f.Changed("warm-start") {
		cfg.MPC.WarmStart = warmStart
	}
	if f.Changed("no-record") {
		cfg.Storage.Record = !noRecord
	}
	if f.Changed("transport") {
		cfg.Transport.Kind = transportKind
	}
	if f.Changed("can-iface") {
		cfg.Transport.CANIface = canIface
	}
	if f.Changed("serial-port") {
		cfg.Transport.SerialPort = serialPort
	}
	if f.Changed("baud") {
		cfg.Transport.Baud = baud
	}
	if f.Changed("tcp-addr") {
		cfg.Transport.TCPAddr = tcpAddr
	}
	if f.Changed("shape") {
		cfg.Sim.Shape = shape
	}
	if f.Changed("time") {
		cfg.Sim.Duration = simDuration
	}
	if f.Changed("offset") {
		cfg.Sim.LateralOffset = lateralOffset
	}
	if f.Changed("speed0") {
		cfg.Sim.Speed0 = speed0
	}
	if f.Changed("realtime") {
		cfg.Sim.Realtime = realtime
	}
	return cfg, nil
}
