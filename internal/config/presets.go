package config

import (
	"slices"

	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
)

// Presets are named tunings applied on top of the defaults.
var Presets = map[string]func(*Config){
	"campus": func(c *Config) {},
	"parking": func(c *Config) {
		c.TargetVel = 1.0
		c.Dt = 0.1
		c.MPC.SteerMax = 0.6
		c.MPC.SteerRateMax = 0.8
		c.MPC.AccelMax = 1.0
		c.MPC.AccelMin = -2.0
		c.MPC.Q = []float64{5, 5, 20, 0}
		c.MPC.R = []float64{10, 50}
		c.Reference.StopDistance = 0.3
	},
	"highway": func(c *Config) {
		c.TargetVel = 20.0
		c.Horizon = 15
		c.Dt = 0.2
		c.MPC.SteerMax = 0.1
		c.MPC.SteerRateMax = 0.1
		c.MPC.AccelMin = -4.0
		c.MPC.AccelMax = 2.5
		c.MPC.Q = []float64{1, 1, 20, 0.5}
		c.MPC.R = []float64{10, 1000}
		c.MPC.RDelta = []float64{1, 100}
		c.Reference.StopDistance = 5.0
		c.Sim.Spacing = 5.0
	},
}

// GetPreset returns a fresh config with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ForSim fills in what a simulated run may leave out: an origin for the
// generated path.
func (c *Config) ForSim() {
	if c.Origin == nil {
		o := DefaultOrigin
		c.Origin = &o
	}
	if c.Waypoints == "" && c.Sim.Shape == "" {
		c.Sim.Shape = reference.Shapes[0]
	}
}
