package reference

import (
	"fmt"
	"math"
	"sort"
)

// Shapes understood by Generate.
var Shapes = []string{"straight", "oval", "figure8"}

const denseSamples = 2000

// Generate synthesises a waypoint set with time, heading and speed columns.
// The curve starts at the origin heading along the local x axis; spacing is
// the arc length between consecutive points.
func Generate(shape string, o Origin, speed, spacing float64) (*Waypoints, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("generate: speed must be positive, got %g", speed)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("generate: spacing must be positive, got %g", spacing)
	}

	var curve func(u float64) (float64, float64)
	switch shape {
	case "straight":
		curve = func(u float64) (float64, float64) { return 100 * u, 0 }
	case "oval":
		curve = oval(40, 15)
	case "figure8":
		const a = 30.0
		curve = func(u float64) (float64, float64) {
			th := 2 * math.Pi * u
			return a * math.Sin(th), a * math.Sin(th) * math.Cos(th)
		}
	default:
		return nil, fmt.Errorf("generate: unknown shape %q (want one of %v)", shape, Shapes)
	}

	xs, ys, ss := densify(curve)
	total := ss[len(ss)-1]
	n := int(total/spacing+1e-9) + 1

	wps := &Waypoints{HasTime: true, HasHeading: true, HasSpeed: true}
	for k := 0; k < n; k++ {
		s := float64(k) * spacing
		j := sort.SearchFloat64s(ss, s)
		if j == 0 {
			j = 1
		}
		if j >= len(ss) {
			j = len(ss) - 1
		}
		i := j - 1
		f := (s - ss[i]) / (ss[j] - ss[i])
		x := xs[i] + f*(xs[j]-xs[i])
		y := ys[i] + f*(ys[j]-ys[i])
		heading := math.Atan2(ys[j]-ys[i], xs[j]-xs[i]) + o.Yaw0

		lat, lon := o.Unproject(x, y)
		wps.Points = append(wps.Points, Waypoint{
			T:   s / speed,
			Lat: lat,
			Lon: lon,
			Psi: heading,
			V:   speed,
		})
	}
	return wps, nil
}

// oval is a stadium: two straights of length l joined by half circles of
// radius r, driven counter-clockwise from the origin.
func oval(l, r float64) func(u float64) (float64, float64) {
	arc := math.Pi * r
	perim := 2*l + 2*arc
	return func(u float64) (float64, float64) {
		d := u * perim
		switch {
		case d < l:
			return d, 0
		case d < l+arc:
			th := (d - l) / r
			return l + r*math.Sin(th), r - r*math.Cos(th)
		case d < 2*l+arc:
			return l - (d - l - arc), 2 * r
		default:
			th := (d - 2*l - arc) / r
			return -r * math.Sin(th), r + r*math.Cos(th)
		}
	}
}

func densify(curve func(u float64) (float64, float64)) (xs, ys, ss []float64) {
	xs = make([]float64, denseSamples+1)
	ys = make([]float64, denseSamples+1)
	ss = make([]float64, denseSamples+1)
	for k := 0; k <= denseSamples; k++ {
		xs[k], ys[k] = curve(float64(k) / denseSamples)
		if k > 0 {
			ss[k] = ss[k-1] + math.Hypot(xs[k]-xs[k-1], ys[k]-ys[k-1])
		}
	}
	return xs, ys, ss
}
