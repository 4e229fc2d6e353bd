package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Waypoints = "path.csv"
	o := DefaultOrigin
	cfg.Origin = &o
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Horizon != 10 {
		t.Errorf("expected horizon 10, got %d", cfg.Horizon)
	}
	if cfg.Dt != 0.2 {
		t.Errorf("expected dt 0.2, got %f", cfg.Dt)
	}
	if cfg.RateHz != 50 {
		t.Errorf("expected rate 50, got %f", cfg.RateHz)
	}
	if cfg.Enable.Accel != 2 || cfg.Enable.Steer != 1 {
		t.Errorf("unexpected enable values %+v", cfg.Enable)
	}
	if cfg.StopAccel != -1 {
		t.Errorf("expected stop accel -1, got %f", cfg.StopAccel)
	}
	if cfg.Origin != nil {
		t.Error("default config should carry no origin")
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no waypoints", func(c *Config) { c.Waypoints = "" }, "waypoints"},
		{"no origin", func(c *Config) { c.Origin = nil }, "origin"},
		{"zero speed", func(c *Config) { c.TargetVel = 0 }, "target_vel"},
		{"horizon", func(c *Config) { c.Horizon = 0 }, "horizon"},
		{"dt", func(c *Config) { c.Dt = 0 }, "dt"},
		{"rate", func(c *Config) { c.RateHz = -1 }, "rate_hz"},
		{"q length", func(c *Config) { c.MPC.Q = []float64{1, 1} }, "mpc.q"},
		{"r length", func(c *Config) { c.MPC.R = nil }, "mpc.r"},
		{"r_delta length", func(c *Config) { c.MPC.RDelta = []float64{1, 2, 3} }, "mpc.r_delta"},
		{"transport", func(c *Config) { c.Transport.Kind = "udp" }, "transport.kind"},
		{"warm start", func(c *Config) { c.MPC.WarmStart = "sometimes" }, "mpc.warm_start"},
		{"accel bounds", func(c *Config) { c.MPC.AccelMin = 5 }, "mpc.accel_min"},
		{"vehicle", func(c *Config) { c.Vehicle.Lf = 0 }, "vehicle"},
		{"shape", func(c *Config) { c.Sim.Shape = "spiral" }, "sim.shape"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, dynamo.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var cerr *dynamo.ConfigurationError
			if !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateTimedAllowsZeroSpeed(t *testing.T) {
	cfg := validConfig()
	cfg.TrackUsingTime = true
	cfg.TargetVel = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("timed tracking should not need target_vel: %v", err)
	}
	if cfg.Mode() != reference.Timed {
		t.Errorf("expected timed mode, got %v", cfg.Mode())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yml := `
waypoints: lot.csv
target_vel: 2.5
origin:
  lat0: 37.9
  lon0: -122.3
  yaw0: 0.1
mpc:
  q: [2, 2, 5, 0]
  warm_start: optimal_only
transport:
  kind: serial
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
	if cfg.Origin == nil || cfg.Origin.Lat0 != 37.9 || cfg.Origin.Yaw0 != 0.1 {
		t.Errorf("origin not loaded: %+v", cfg.Origin)
	}
	if cfg.Horizon != 10 || cfg.MPC.R[1] != 100 {
		t.Error("defaults should survive the overlay")
	}

	p, err := cfg.MPCParams()
	if err != nil {
		t.Fatal(err)
	}
	if p.Q[0] != 2 || p.Q[2] != 5 {
		t.Errorf("unexpected Q %v", p.Q)
	}

	lc := cfg.LoopConfig()
	if lc.WarmStart != control.WarmOptimalOnly {
		t.Errorf("expected optimal_only, got %v", lc.WarmStart)
	}
	if lc.DesiredSpeed != 2.5 || lc.StaleAfter != 500*time.Millisecond {
		t.Errorf("unexpected loop config %+v", lc)
	}
	if cfg.TransportOptions().Kind != "serial" {
		t.Errorf("expected serial transport, got %s", cfg.TransportOptions().Kind)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := validConfig()
	cfg.TargetVel = 4.2
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.TargetVel != 4.2 || loaded.Waypoints != "path.csv" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("parking")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.TargetVel != 1.0 {
		t.Errorf("expected target 1.0, got %f", cfg.TargetVel)
	}
	if GetPreset("campus").TargetVel != DefaultTargetVel {
		t.Error("campus should be the defaults")
	}

	// presets hand out fresh copies
	cfg.TargetVel = 99
	if GetPreset("parking").TargetVel != 1.0 {
		t.Error("preset mutated through returned config")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	got := ListPresets()
	want := []string{"campus", "highway", "parking"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}

	for _, name := range got {
		cfg := GetPreset(name)
		cfg.ForSim()
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
}

func TestForSim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForSim()
	if cfg.Origin == nil || *cfg.Origin != DefaultOrigin {
		t.Errorf("expected default origin, got %+v", cfg.Origin)
	}
	if cfg.Sim.Shape != "straight" {
		t.Errorf("expected straight shape, got %q", cfg.Sim.Shape)
	}
}

func TestOverlayOnPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("horizon: 12\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := GetPreset("highway")
	if err := Overlay(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Horizon != 12 {
		t.Errorf("expected horizon 12, got %d", cfg.Horizon)
	}
	if cfg.TargetVel != 20 {
		t.Errorf("preset speed lost, got %f", cfg.TargetVel)
	}
}

func TestSetParam(t *testing.T) {
	cfg := validConfig()
	if err := cfg.SetParam("q.yaw", 12); err != nil {
		t.Fatal(err)
	}
	if cfg.MPC.Q[dynamo.IdxYaw] != 12 {
		t.Errorf("expected q.yaw 12, got %f", cfg.MPC.Q[dynamo.IdxYaw])
	}
	if err := cfg.SetParam("horizon", 15); err != nil {
		t.Fatal(err)
	}
	if cfg.Horizon != 15 {
		t.Errorf("expected horizon 15, got %d", cfg.Horizon)
	}
	if got := cfg.GetParams(); got["q.yaw"] != 12 || got["horizon"] != 15 {
		t.Errorf("GetParams does not reflect SetParam: %v", got)
	}

	for name, v := range map[string]float64{"horizon": 2.5, "wheelbase": 1, "q.x": math.NaN()} {
		if err := cfg.SetParam(name, v); !errors.Is(err, dynamo.ErrConfiguration) {
			t.Errorf("SetParam(%s, %f): expected configuration error, got %v", name, v, err)
		}
	}

	cfg.MPC.R = []float64{1}
	if err := cfg.SetParam("r.steer", 2); err == nil {
		t.Error("expected error for short weight vector")
	}
	if _, ok := cfg.GetParams()["r.steer"]; ok {
		t.Error("short weight vector should be skipped")
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := validConfig()
	c := cfg.Clone()
	if err := c.Apply(map[string]float64{"q.y": 99, "r_delta.steer": 7}); err != nil {
		t.Fatal(err)
	}
	c.Origin.Lat0 = 0

	if cfg.MPC.Q[dynamo.IdxY] == 99 || cfg.MPC.RDelta[dynamo.IdxSteer] == 7 {
		t.Error("Clone shares weight slices with the original")
	}
	if cfg.Origin.Lat0 == 0 {
		t.Error("Clone shares the origin with the original")
	}
	if c.MPC.Q[dynamo.IdxY] != 99 {
		t.Errorf("expected q.y 99 on the clone, got %f", c.MPC.Q[dynamo.IdxY])
	}
}
