package reference

import (
	"fmt"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

const (
	DefaultStopDistance = 1.0
	defaultSearchBack   = 5.0
	defaultSearchAhead  = 50.0
	defaultReacquire    = 10.0
)

type Config struct {
	Horizon      int     // N; every query returns N+1 points
	DT           float64 // s between horizon points
	Mode         Mode
	StopDistance float64 // m of path left at which Stop is raised
}

// GPSReference serves horizons from a recorded path. It remembers where the
// vehicle was last projected so that self-crossing paths are followed in
// order; it is not safe for concurrent use.
type GPSReference struct {
	path    *Path
	cfg     Config
	lastS   float64
	located bool
}

func NewGPSReference(path *Path, cfg Config) (*GPSReference, error) {
	if cfg.Horizon < 1 {
		return nil, &dynamo.ConfigurationError{Field: "horizon", Reason: "must be at least 1"}
	}
	if cfg.DT <= 0 {
		return nil, &dynamo.ConfigurationError{Field: "dt", Reason: "must be positive"}
	}
	if cfg.Mode == Timed && !path.Timed() {
		return nil, &dynamo.ConfigurationError{Field: "track_using_time", Reason: "waypoint source has no t column"}
	}
	if cfg.StopDistance <= 0 {
		cfg.StopDistance = DefaultStopDistance
	}
	return &GPSReference{path: path, cfg: cfg}, nil
}

// LoadGPSReference reads a waypoint CSV and builds a provider anchored at o.
func LoadGPSReference(file string, o Origin, cfg Config) (*GPSReference, error) {
	wps, err := LoadCSV(file)
	if err != nil {
		return nil, err
	}
	path, err := NewPath(wps, o)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return NewGPSReference(path, cfg)
}

func (g *GPSReference) Mode() Mode  { return g.cfg.Mode }
func (g *GPSReference) Points() int { return g.cfg.Horizon + 1 }
func (g *GPSReference) Path() *Path { return g.path }

func (g *GPSReference) Waypoints(pose dynamo.VehicleState, desiredSpeed float64) (Horizon, error) {
	if !pose.IsValid() {
		return Horizon{}, dynamo.ErrInvalidState
	}

	proj := g.locate(pose)
	pts := make([]dynamo.VehicleState, g.cfg.Horizon+1)

	switch g.cfg.Mode {
	case Timed:
		for i := range pts {
			pts[i] = g.path.AtT(proj.T + float64(i)*g.cfg.DT)
		}
	default:
		if desiredSpeed < 0 {
			desiredSpeed = 0
		}
		step := desiredSpeed * g.cfg.DT
		for i := range pts {
			pts[i] = g.path.AtS(proj.S + float64(i)*step)
			pts[i].Speed = 0
		}
	}

	offset := dynamo.NearestEquivalent(pts[0].Yaw, pose.Yaw) - pts[0].Yaw
	for i := range pts {
		pts[i].Yaw += offset
	}

	stop := g.path.Length()-proj.S <= g.cfg.StopDistance
	if g.cfg.Mode == Timed && proj.T >= g.path.T[len(g.path.T)-1] {
		stop = true
	}
	return Horizon{Points: pts, Stop: stop}, nil
}

func (g *GPSReference) locate(pose dynamo.VehicleState) Projection {
	last := len(g.path.X) - 1
	var proj Projection
	if g.located {
		lo := g.path.SegmentAt(g.lastS - defaultSearchBack)
		hi := g.path.SegmentAt(g.lastS+defaultSearchAhead) + 1
		proj = g.path.Project(pose.X, pose.Y, lo, hi)
	}
	if !g.located || proj.Distance > defaultReacquire {
		proj = g.path.Project(pose.X, pose.Y, 0, last)
	}
	g.lastS = proj.S
	g.located = true
	return proj
}
