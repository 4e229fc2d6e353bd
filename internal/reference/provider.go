// Package reference turns a recorded GPS path into the short local-frame
// horizon the MPC solver tracks.
//
// A [Provider] is queried once per control tick with the current pose and
// returns N+1 reference points, the first of which corresponds to the
// vehicle's projection onto the path, plus a stop flag once the path is
// exhausted. [GPSReference] is the implementation backed by a waypoint CSV.
package reference

import (
	"fmt"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

// Mode selects how reference speeds are produced.
type Mode int

const (
	// FixedSpeed returns path geometry only; the caller supplies a constant
	// desired speed and replicates it across the horizon.
	FixedSpeed Mode = iota
	// Timed follows the recorded trajectory timing and returns its speeds.
	Timed
)

func (m Mode) String() string {
	switch m {
	case FixedSpeed:
		return "fixed_speed"
	case Timed:
		return "timed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Horizon is one provider answer. Points has N+1 entries. In FixedSpeed mode
// the Speed fields are zero.
type Horizon struct {
	Points []dynamo.VehicleState
	Stop   bool
}

type Provider interface {
	Mode() Mode
	// Points is the number of points returned by every query (N+1).
	Points() int
	Waypoints(pose dynamo.VehicleState, desiredSpeed float64) (Horizon, error)
}
