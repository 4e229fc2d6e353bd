package reference

import (
	"fmt"
	"math"
	"sort"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

const minSegment = 1e-9

// Path is a waypoint set projected into the local frame with cumulative arc
// length. Yaw is unwrapped so consecutive entries never jump by 2*pi.
type Path struct {
	X, Y, Yaw, V []float64
	S            []float64
	T            []float64
	timed        bool
}

func NewPath(wps *Waypoints, o Origin) (*Path, error) {
	n := len(wps.Points)
	if n < 2 {
		return nil, dynamo.ErrEmptyPath
	}

	p := &Path{
		X:     make([]float64, n),
		Y:     make([]float64, n),
		Yaw:   make([]float64, n),
		V:     make([]float64, n),
		S:     make([]float64, n),
		T:     make([]float64, n),
		timed: wps.HasTime,
	}

	for i, wp := range wps.Points {
		p.X[i], p.Y[i] = o.Project(wp.Lat, wp.Lon)
		p.T[i] = wp.T
		p.V[i] = wp.V
		if i > 0 {
			p.S[i] = p.S[i-1] + math.Hypot(p.X[i]-p.X[i-1], p.Y[i]-p.Y[i-1])
			if wps.HasTime && p.T[i] <= p.T[i-1] {
				return nil, fmt.Errorf("waypoint %d: time %.3f not after %.3f", i, p.T[i], p.T[i-1])
			}
		}
	}
	if p.S[n-1] < minSegment {
		return nil, dynamo.ErrEmptyPath
	}

	p.fillYaw(wps, o)
	if !wps.HasSpeed && wps.HasTime {
		p.fillSpeed()
	}
	return p, nil
}

func (p *Path) fillYaw(wps *Waypoints, o Origin) {
	n := len(p.X)
	for i := 0; i < n; i++ {
		switch {
		case wps.HasHeading:
			p.Yaw[i] = o.LocalYaw(wps.Points[i].Psi)
		case i < n-1 && p.S[i+1]-p.S[i] > minSegment:
			p.Yaw[i] = math.Atan2(p.Y[i+1]-p.Y[i], p.X[i+1]-p.X[i])
		case i > 0:
			p.Yaw[i] = p.Yaw[i-1]
		}
		if i > 0 {
			p.Yaw[i] = dynamo.NearestEquivalent(p.Yaw[i], p.Yaw[i-1])
		}
	}
	// A leading run of stationary points inherits the first real heading.
	first := 0
	for first < n-1 && p.S[first+1]-p.S[first] <= minSegment {
		first++
	}
	for i := 0; i < first; i++ {
		p.Yaw[i] = p.Yaw[first]
	}
}

func (p *Path) fillSpeed() {
	n := len(p.X)
	for i := 0; i < n-1; i++ {
		p.V[i] = (p.S[i+1] - p.S[i]) / (p.T[i+1] - p.T[i])
	}
	p.V[n-1] = p.V[n-2]
}

func (p *Path) Length() float64 {
	return p.S[len(p.S)-1]
}

func (p *Path) Timed() bool {
	return p.timed
}

// Duration is the recorded time span, zero for untimed paths.
func (p *Path) Duration() float64 {
	if !p.timed {
		return 0
	}
	return p.T[len(p.T)-1] - p.T[0]
}

// Projection locates a point on the path.
type Projection struct {
	Segment  int
	Frac     float64
	Distance float64
	S        float64
	T        float64
}

// Project finds the closest point to (x, y) on segments [lo, hi).
func (p *Path) Project(x, y float64, lo, hi int) Projection {
	if lo < 0 {
		lo = 0
	}
	if hi > len(p.X)-1 {
		hi = len(p.X) - 1
	}

	best := Projection{Distance: math.Inf(1)}
	for i := lo; i < hi; i++ {
		dx := p.X[i+1] - p.X[i]
		dy := p.Y[i+1] - p.Y[i]
		l2 := dx*dx + dy*dy

		frac := 0.0
		if l2 > minSegment*minSegment {
			frac = ((x-p.X[i])*dx + (y-p.Y[i])*dy) / l2
			frac = math.Max(0, math.Min(1, frac))
		}
		d := math.Hypot(p.X[i]+frac*dx-x, p.Y[i]+frac*dy-y)
		if d < best.Distance {
			best = Projection{
				Segment:  i,
				Frac:     frac,
				Distance: d,
				S:        p.S[i] + frac*(p.S[i+1]-p.S[i]),
				T:        p.T[i] + frac*(p.T[i+1]-p.T[i]),
			}
		}
	}
	return best
}

// AtS interpolates the path at arc length s, clamped to the ends.
func (p *Path) AtS(s float64) dynamo.VehicleState {
	return p.at(p.S, s)
}

// AtT interpolates the path at trajectory time t, clamped to the ends.
func (p *Path) AtT(t float64) dynamo.VehicleState {
	return p.at(p.T, t)
}

func (p *Path) at(knots []float64, q float64) dynamo.VehicleState {
	i, frac := locate(knots, q)
	lerp := func(v []float64) float64 {
		if i == len(v)-1 {
			return v[i]
		}
		return v[i] + frac*(v[i+1]-v[i])
	}
	return dynamo.VehicleState{X: lerp(p.X), Y: lerp(p.Y), Yaw: lerp(p.Yaw), Speed: lerp(p.V)}
}

// locate returns the knot interval containing q and the fraction into it.
func locate(knots []float64, q float64) (int, float64) {
	n := len(knots)
	if q <= knots[0] {
		return 0, 0
	}
	if q >= knots[n-1] {
		return n - 1, 0
	}
	j := sort.SearchFloat64s(knots, q)
	// knots[j-1] < q <= knots[j]
	i := j - 1
	span := knots[j] - knots[i]
	if span <= 0 {
		return j, 0
	}
	return i, (q - knots[i]) / span
}

// SegmentAt returns the segment index containing arc length s.
func (p *Path) SegmentAt(s float64) int {
	i, _ := locate(p.S, s)
	if i >= len(p.S)-1 {
		return len(p.S) - 2
	}
	return i
}
