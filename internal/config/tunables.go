package config

import (
	"fmt"
	"math"
	"slices"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

var _ dynamo.Configurable = (*Config)(nil)

// tunable addresses one scalar of the config by dotted name. ptr returns
// nil when the weight vector is too short.
type tunable struct {
	name string
	ptr  func(c *Config) *float64
}

var tunables = []tunable{
	{"q.x", func(c *Config) *float64 { return at(c.MPC.Q, dynamo.IdxX) }},
	{"q.y", func(c *Config) *float64 { return at(c.MPC.Q, dynamo.IdxY) }},
	{"q.yaw", func(c *Config) *float64 { return at(c.MPC.Q, dynamo.IdxYaw) }},
	{"q.v", func(c *Config) *float64 { return at(c.MPC.Q, dynamo.IdxSpeed) }},
	{"r.accel", func(c *Config) *float64 { return at(c.MPC.R, dynamo.IdxAccel) }},
	{"r.steer", func(c *Config) *float64 { return at(c.MPC.R, dynamo.IdxSteer) }},
	{"r_delta.accel", func(c *Config) *float64 { return at(c.MPC.RDelta, dynamo.IdxAccel) }},
	{"r_delta.steer", func(c *Config) *float64 { return at(c.MPC.RDelta, dynamo.IdxSteer) }},
	{"slack_weight", func(c *Config) *float64 { return &c.MPC.SlackWeight }},
	{"target_vel", func(c *Config) *float64 { return &c.TargetVel }},
	{"dt", func(c *Config) *float64 { return &c.Dt }},
}

// TunableParams lists the names accepted by SetParam, plus "horizon".
func TunableParams() []string {
	names := make([]string, 0, len(tunables)+1)
	for _, t := range tunables {
		names = append(names, t.name)
	}
	return append(names, "horizon")
}

// GetParams returns every tunable value. Weight slices of the wrong length
// are skipped; Validate reports them.
func (c *Config) GetParams() map[string]float64 {
	out := map[string]float64{"horizon": float64(c.Horizon)}
	for _, t := range tunables {
		if v := t.ptr(c); v != nil {
			out[t.name] = *v
		}
	}
	return out
}

func (c *Config) SetParam(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return invalid(name, "must be finite")
	}
	if name == "horizon" {
		if value != math.Trunc(value) {
			return invalid(name, "must be an integer, got %g", value)
		}
		c.Horizon = int(value)
		return nil
	}
	i := slices.IndexFunc(tunables, func(t tunable) bool { return t.name == name })
	if i < 0 {
		return invalid(name, "not tunable (want one of %v)", TunableParams())
	}
	v := tunables[i].ptr(c)
	if v == nil {
		return invalid(name, "weight vector has the wrong length")
	}
	*v = value
	return nil
}

func at(s []float64, i int) *float64 {
	if i >= len(s) {
		return nil
	}
	return &s[i]
}

// Clone returns a deep copy, safe to modify alongside the original.
func (c *Config) Clone() *Config {
	out := *c
	out.MPC.Q = slices.Clone(c.MPC.Q)
	out.MPC.R = slices.Clone(c.MPC.R)
	out.MPC.RDelta = slices.Clone(c.MPC.RDelta)
	if c.Origin != nil {
		o := *c.Origin
		out.Origin = &o
	}
	return &out
}

// Apply sets every named parameter, stopping at the first failure.
func (c *Config) Apply(params map[string]float64) error {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := c.SetParam(name, params[name]); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
