package config

import (
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/physics"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/sim"
	"github.com/DeepakIngole/genesis-path-follower/internal/transport"
)

const (
	DefaultTargetVel  = 3.0
	DefaultHorizon    = 10
	DefaultDt         = 0.2
	DefaultStopAccel  = -1.0
	DefaultStaleAfter = 0.5
	DefaultDBPath     = "runs/pathfollower.db"
	DefaultSimTime    = 60.0
)

// DefaultOrigin anchors generated paths when no origin is configured.
var DefaultOrigin = reference.Origin{Lat0: 37.8719, Lon0: -122.2585, Yaw0: 0}

type Config struct {
	Waypoints      string            `yaml:"waypoints"`
	TrackUsingTime bool              `yaml:"track_using_time"`
	TargetVel      float64           `yaml:"target_vel"`
	Origin         *reference.Origin `yaml:"origin"`
	Horizon        int               `yaml:"horizon"`
	Dt             float64           `yaml:"dt"`
	RateHz         float64           `yaml:"rate_hz"`
	StaleAfter     float64           `yaml:"stale_after"`
	StopAccel      float64           `yaml:"stop_accel"`
	Enable         control.Enable    `yaml:"enable"`
	MPC            MPCConfig         `yaml:"mpc"`
	Vehicle        VehicleConfig     `yaml:"vehicle"`
	Reference      ReferenceConfig   `yaml:"reference"`
	Transport      TransportConfig   `yaml:"transport"`
	Storage        StorageConfig     `yaml:"storage"`
	Log            LogConfig         `yaml:"log"`
	Sim            SimConfig         `yaml:"sim"`
}

type MPCConfig struct {
	Q              []float64 `yaml:"q"`
	R              []float64 `yaml:"r"`
	RDelta         []float64 `yaml:"r_delta"`
	SlackWeight    float64   `yaml:"slack_weight"`
	SlackTolerance float64   `yaml:"slack_tolerance"`
	AccelMin       float64   `yaml:"accel_min"`
	AccelMax       float64   `yaml:"accel_max"`
	SteerMax       float64   `yaml:"steer_max"`
	AccelRateMax   float64   `yaml:"accel_rate_max"`
	SteerRateMax   float64   `yaml:"steer_rate_max"`
	MaxIterations  int       `yaml:"max_iterations"`
	WarmStart      string    `yaml:"warm_start"`
}

type VehicleConfig struct {
	Lf float64 `yaml:"lf"`
	Lr float64 `yaml:"lr"`
}

type ReferenceConfig struct {
	StopDistance float64 `yaml:"stop_distance"`
}

type TransportConfig struct {
	Kind       string `yaml:"kind"`
	CANIface   string `yaml:"can_iface"`
	SerialPort string `yaml:"serial_port"`
	Baud       int    `yaml:"baud"`
	TCPAddr    string `yaml:"tcp_addr"`
}

type StorageConfig struct {
	Path   string `yaml:"path"`
	Record bool   `yaml:"record"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SimConfig drives the simulated plant. Shape generates the path instead
// of reading Waypoints; the vehicle starts at the first path point shifted
// sideways by LateralOffset.
type SimConfig struct {
	Shape         string  `yaml:"shape"`
	Duration      float64 `yaml:"duration"`
	PlantDt       float64 `yaml:"plant_dt"`
	LateralOffset float64 `yaml:"lateral_offset"`
	Speed0        float64 `yaml:"speed0"`
	Spacing       float64 `yaml:"spacing"`
	Realtime      bool    `yaml:"realtime"`
}

func DefaultConfig() *Config {
	p := mpc.DefaultParams()
	return &Config{
		TargetVel:  DefaultTargetVel,
		Horizon:    p.Horizon,
		Dt:         p.DT,
		RateHz:     control.DefaultRateHz,
		StaleAfter: DefaultStaleAfter,
		StopAccel:  DefaultStopAccel,
		Enable:     control.Enable{Accel: 2, Steer: 1},
		MPC: MPCConfig{
			Q:              p.Q[:],
			R:              p.R[:],
			RDelta:         p.RDelta[:],
			SlackWeight:    p.SlackWeight,
			SlackTolerance: p.SlackTolerance,
			AccelMin:       p.AccelMin,
			AccelMax:       p.AccelMax,
			SteerMax:       p.SteerMax,
			AccelRateMax:   p.AccelRateMax,
			SteerRateMax:   p.SteerRateMax,
			MaxIterations:  p.MaxIterations,
			WarmStart:      control.WarmAlways.String(),
		},
		Vehicle: VehicleConfig{
			Lf: physics.DefaultFrontAxle,
			Lr: physics.DefaultRearAxle,
		},
		Reference: ReferenceConfig{StopDistance: reference.DefaultStopDistance},
		Transport: TransportConfig{
			Kind:       "can",
			CANIface:   "can0",
			SerialPort: "/dev/ttyUSB0",
			Baud:       transport.DefaultBaud,
			TCPAddr:    "localhost:9000",
		},
		Storage: StorageConfig{Path: DefaultDBPath, Record: true},
		Log:     LogConfig{Level: "info"},
		Sim: SimConfig{
			Duration: DefaultSimTime,
			PlantDt:  sim.DefaultDt,
			Spacing:  1.0,
		},
	}
}

// Load overlays the YAML file at path on the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := Overlay(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay applies the YAML file at path on top of cfg; keys absent from
// the file keep their current values.
func Overlay(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func invalid(field, format string, args ...any) error {
	return &dynamo.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate reports the first parameter that would keep the loop from
// starting.
func (c *Config) Validate() error {
	switch {
	case c.Waypoints == "" && c.Sim.Shape == "":
		return invalid("waypoints", "no waypoint file given")
	case c.Sim.Shape != "" && !slices.Contains(reference.Shapes, c.Sim.Shape):
		return invalid("sim.shape", "unknown shape %q (want one of %v)", c.Sim.Shape, reference.Shapes)
	case c.Origin == nil:
		return invalid("origin", "lat0/lon0/yaw0 block is required")
	case !c.TrackUsingTime && !(c.TargetVel > 0):
		return invalid("target_vel", "must be positive when not tracking with time")
	case c.Horizon < 1:
		return invalid("horizon", "must be at least 1, got %d", c.Horizon)
	case !(c.Dt > 0):
		return invalid("dt", "must be positive")
	case !(c.RateHz > 0):
		return invalid("rate_hz", "must be positive")
	case c.StaleAfter < 0:
		return invalid("stale_after", "must not be negative")
	case len(c.MPC.Q) != dynamo.StateDim:
		return invalid("mpc.q", "want %d weights, got %d", dynamo.StateDim, len(c.MPC.Q))
	case len(c.MPC.R) != dynamo.ControlDim:
		return invalid("mpc.r", "want %d weights, got %d", dynamo.ControlDim, len(c.MPC.R))
	case len(c.MPC.RDelta) != dynamo.ControlDim:
		return invalid("mpc.r_delta", "want %d weights, got %d", dynamo.ControlDim, len(c.MPC.RDelta))
	case !(c.Vehicle.Lf > 0) || !(c.Vehicle.Lr > 0):
		return invalid("vehicle", "lf and lr must be positive")
	case c.Reference.StopDistance < 0:
		return invalid("reference.stop_distance", "must not be negative")
	case !slices.Contains(transport.Kinds, c.Transport.Kind):
		return invalid("transport.kind", "unknown kind %q (want one of %v)", c.Transport.Kind, transport.Kinds)
	}
	if _, err := control.ParseWarmStartPolicy(c.MPC.WarmStart); err != nil {
		return err
	}
	p, err := c.MPCParams()
	if err != nil {
		return err
	}
	return p.Validate()
}

func (c *Config) MPCParams() (mpc.Params, error) {
	p := mpc.DefaultParams()
	p.Horizon = c.Horizon
	p.DT = c.Dt
	if copy(p.Q[:], c.MPC.Q) != dynamo.StateDim {
		return p, invalid("mpc.q", "want %d weights, got %d", dynamo.StateDim, len(c.MPC.Q))
	}
	if copy(p.R[:], c.MPC.R) != dynamo.ControlDim {
		return p, invalid("mpc.r", "want %d weights, got %d", dynamo.ControlDim, len(c.MPC.R))
	}
	if copy(p.RDelta[:], c.MPC.RDelta) != dynamo.ControlDim {
		return p, invalid("mpc.r_delta", "want %d weights, got %d", dynamo.ControlDim, len(c.MPC.RDelta))
	}
	p.SlackWeight = c.MPC.SlackWeight
	p.SlackTolerance = c.MPC.SlackTolerance
	p.AccelMin = c.MPC.AccelMin
	p.AccelMax = c.MPC.AccelMax
	p.SteerMax = c.MPC.SteerMax
	p.AccelRateMax = c.MPC.AccelRateMax
	p.SteerRateMax = c.MPC.SteerRateMax
	p.MaxIterations = c.MPC.MaxIterations
	return p, nil
}

func (c *Config) Mode() reference.Mode {
	if c.TrackUsingTime {
		return reference.Timed
	}
	return reference.FixedSpeed
}

func (c *Config) ReferenceConfig() reference.Config {
	return reference.Config{
		Horizon:      c.Horizon,
		DT:           c.Dt,
		Mode:         c.Mode(),
		StopDistance: c.Reference.StopDistance,
	}
}

// LoopConfig assumes Validate has passed.
func (c *Config) LoopConfig() control.Config {
	policy, _ := control.ParseWarmStartPolicy(c.MPC.WarmStart)
	return control.Config{
		RateHz:       c.RateHz,
		DesiredSpeed: c.TargetVel,
		WarmStart:    policy,
		StaleAfter:   time.Duration(math.Round(c.StaleAfter * float64(time.Second))),
	}
}

func (c *Config) Bicycle() *physics.Bicycle {
	return &physics.Bicycle{Lf: c.Vehicle.Lf, Lr: c.Vehicle.Lr}
}

func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Kind:       c.Transport.Kind,
		CANIface:   c.Transport.CANIface,
		SerialPort: c.Transport.SerialPort,
		Baud:       c.Transport.Baud,
		TCPAddr:    c.Transport.TCPAddr,
	}
}
