package reference

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

var approx = cmpopts.EquateApprox(0, 1e-6)

func straightPath(t *testing.T) *Path {
	t.Helper()
	wps, err := Generate("straight", Origin{}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPath(wps, Origin{})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReadCSV(t *testing.T) {
	src := `# recorded 2019-05-02
t, lat, lon
0, 37.9, -122.3
1, 37.90001, -122.3
`
	wps, err := ReadCSV(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if !wps.HasTime || wps.HasHeading || wps.HasSpeed {
		t.Errorf("unexpected column flags: %+v", wps)
	}
	want := []Waypoint{
		{T: 0, Lat: 37.9, Lon: -122.3},
		{T: 1, Lat: 37.90001, Lon: -122.3},
	}
	if diff := cmp.Diff(want, wps.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing lon", "lat\n1\n"},
		{"bad number", "lat,lon\n1,x\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.src)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	wps, err := Generate("oval", Origin{Lat0: 37.87, Lon0: -122.26, Yaw0: 0.3}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, wps); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wps, got, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestOriginProjectUnproject(t *testing.T) {
	o := Origin{Lat0: 37.91, Lon0: -122.33, Yaw0: 0.7}

	x, y := o.Project(o.Lat0, o.Lon0)
	if math.Abs(x) > 1e-9 || math.Abs(y) > 1e-9 {
		t.Errorf("origin should project to (0,0), got (%f, %f)", x, y)
	}

	lat, lon := o.Unproject(120, -45)
	x, y = o.Project(lat, lon)
	if math.Abs(x-120) > 1e-6 || math.Abs(y+45) > 1e-6 {
		t.Errorf("round trip: got (%f, %f)", x, y)
	}

	// One thousandth of a degree north is about 111 m.
	_, n := Origin{Lat0: 0, Lon0: 0}.Project(0.001, 0)
	if math.Abs(n-111.32) > 0.1 {
		t.Errorf("expected ~111.32 m, got %f", n)
	}
}

func TestNewPath(t *testing.T) {
	p := straightPath(t)
	if math.Abs(p.Length()-100) > 1e-6 {
		t.Errorf("expected length 100, got %f", p.Length())
	}
	if !p.Timed() || math.Abs(p.Duration()-50) > 1e-6 {
		t.Errorf("expected timed path of 50 s, got %v %f", p.Timed(), p.Duration())
	}
	for i, yaw := range p.Yaw {
		if math.Abs(yaw) > 1e-9 {
			t.Fatalf("yaw[%d] = %f, want 0", i, yaw)
		}
	}

	one := &Waypoints{Points: []Waypoint{{Lat: 1, Lon: 1}}}
	if _, err := NewPath(one, Origin{}); !errors.Is(err, dynamo.ErrEmptyPath) {
		t.Errorf("expected ErrEmptyPath, got %v", err)
	}

	back := &Waypoints{HasTime: true, Points: []Waypoint{{T: 1, Lat: 0}, {T: 0, Lat: 0.001}}}
	if _, err := NewPath(back, Origin{}); err == nil {
		t.Error("expected error for non-increasing time")
	}
}

func TestPathYawUnwrapped(t *testing.T) {
	o := Origin{}
	var wps Waypoints
	// A full counter-clockwise circle must produce monotonically increasing yaw.
	for k := 0; k <= 72; k++ {
		th := 2 * math.Pi * float64(k) / 72
		lat, lon := o.Unproject(20*math.Sin(th), 20-20*math.Cos(th))
		wps.Points = append(wps.Points, Waypoint{Lat: lat, Lon: lon})
	}
	p, err := NewPath(&wps, o)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(p.Yaw); i++ {
		if d := p.Yaw[i] - p.Yaw[i-1]; d < -1e-9 || d > 0.5 {
			t.Fatalf("yaw jump at %d: %f -> %f", i, p.Yaw[i-1], p.Yaw[i])
		}
	}
}

func TestGPSReferenceFixedSpeed(t *testing.T) {
	ref, err := NewGPSReference(straightPath(t), Config{Horizon: 10, DT: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if ref.Points() != 11 || ref.Mode() != FixedSpeed {
		t.Fatalf("unexpected provider shape: %d %v", ref.Points(), ref.Mode())
	}

	h, err := ref.Waypoints(dynamo.VehicleState{X: 10, Y: 0.5, Speed: 4}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]dynamo.VehicleState, 11)
	for i := range want {
		want[i] = dynamo.VehicleState{X: 10 + float64(i)}
	}
	if diff := cmp.Diff(want, h.Points, approx); diff != "" {
		t.Errorf("horizon mismatch (-want +got):\n%s", diff)
	}
	if h.Stop {
		t.Error("stop raised mid-path")
	}
}

func TestGPSReferenceTimed(t *testing.T) {
	ref, err := NewGPSReference(straightPath(t), Config{Horizon: 5, DT: 0.2, Mode: Timed})
	if err != nil {
		t.Fatal(err)
	}
	h, err := ref.Waypoints(dynamo.VehicleState{X: 10}, 99)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]dynamo.VehicleState, 6)
	for i := range want {
		want[i] = dynamo.VehicleState{X: 10 + 0.4*float64(i), Speed: 2}
	}
	if diff := cmp.Diff(want, h.Points, approx); diff != "" {
		t.Errorf("horizon mismatch (-want +got):\n%s", diff)
	}
}

func TestGPSReferenceTimedNeedsTime(t *testing.T) {
	o := Origin{}
	var wps Waypoints
	for i := 0; i < 5; i++ {
		lat, lon := o.Unproject(float64(i), 0)
		wps.Points = append(wps.Points, Waypoint{Lat: lat, Lon: lon})
	}
	p, err := NewPath(&wps, o)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewGPSReference(p, Config{Horizon: 10, DT: 0.2, Mode: Timed})
	var cerr *dynamo.ConfigurationError
	if !errors.As(err, &cerr) || cerr.Field != "track_using_time" {
		t.Errorf("expected track_using_time configuration error, got %v", err)
	}
}

func TestGPSReferenceStop(t *testing.T) {
	ref, err := NewGPSReference(straightPath(t), Config{Horizon: 10, DT: 0.2, StopDistance: 1})
	if err != nil {
		t.Fatal(err)
	}
	h, err := ref.Waypoints(dynamo.VehicleState{X: 99.5}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Stop {
		t.Error("expected stop near end of path")
	}
	last := h.Points[len(h.Points)-1]
	if math.Abs(last.X-100) > 1e-6 {
		t.Errorf("horizon should clamp to path end, got %v", last)
	}

	if _, err := ref.Waypoints(dynamo.VehicleState{X: math.NaN()}, 5); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestGPSReferenceYawContinuity(t *testing.T) {
	o := Origin{}
	var wps Waypoints
	for i := 0; i < 50; i++ {
		lat, lon := o.Unproject(-float64(i), 0)
		wps.Points = append(wps.Points, Waypoint{Lat: lat, Lon: lon})
	}
	p, err := NewPath(&wps, o)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := NewGPSReference(p, Config{Horizon: 4, DT: 0.2})
	if err != nil {
		t.Fatal(err)
	}

	pose := dynamo.VehicleState{X: -3, Yaw: -math.Pi + 0.1}
	h, err := ref.Waypoints(pose, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, pt := range h.Points {
		if math.Abs(pt.Yaw-(-math.Pi)) > 1e-6 {
			t.Errorf("point %d yaw %f, want %f", i, pt.Yaw, -math.Pi)
		}
	}
}

func TestGPSReferenceFollowsCrossingInOrder(t *testing.T) {
	wps, err := Generate("figure8", Origin{}, 2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPath(wps, Origin{})
	if err != nil {
		t.Fatal(err)
	}
	ref, err := NewGPSReference(p, Config{Horizon: 10, DT: 0.2})
	if err != nil {
		t.Fatal(err)
	}

	prev := -1.0
	for i := 0; i < len(p.X)-1; i++ {
		pose := dynamo.VehicleState{X: p.X[i], Y: p.Y[i], Yaw: p.Yaw[i]}
		if _, err := ref.Waypoints(pose, 2); err != nil {
			t.Fatal(err)
		}
		if ref.lastS < prev-1e-9 {
			t.Fatalf("projection went backwards at point %d: %f -> %f", i, prev, ref.lastS)
		}
		prev = ref.lastS
	}
}

func TestGenerate(t *testing.T) {
	for _, shape := range Shapes {
		wps, err := Generate(shape, Origin{Lat0: 37.9, Lon0: -122.3}, 2, 1)
		if err != nil {
			t.Fatalf("%s: %v", shape, err)
		}
		if len(wps.Points) < 50 {
			t.Errorf("%s: only %d points", shape, len(wps.Points))
		}
		if wps.Points[0].T != 0 {
			t.Errorf("%s: first time %f", shape, wps.Points[0].T)
		}
	}
	if _, err := Generate("spiral", Origin{}, 2, 1); err == nil {
		t.Error("expected error for unknown shape")
	}
	if _, err := Generate("oval", Origin{}, 0, 1); err == nil {
		t.Error("expected error for zero speed")
	}
}
