package control_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/statebuf"
)

var errSink = errors.New("sink down")

type fakeState struct {
	mu    sync.Mutex
	state dynamo.VehicleState
	ok    bool
}

func (f *fakeState) set(s dynamo.VehicleState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state, f.ok = s, true
}

func (f *fakeState) Snapshot() (statebuf.Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return statebuf.Sample{State: f.state, Received: time.Now()}, f.ok
}

// fakeProvider returns a straight horizon along +x starting at the pose and
// raises stop from call stopFrom on (0 never).
type fakeProvider struct {
	mu       sync.Mutex
	n        int
	mode     reference.Mode
	speed    float64
	stopFrom int
	err      error
	calls    int
	desired  []float64
}

func (p *fakeProvider) Mode() reference.Mode { return p.mode }
func (p *fakeProvider) Points() int          { return p.n + 1 }

func (p *fakeProvider) Waypoints(pose dynamo.VehicleState, desired float64) (reference.Horizon, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.desired = append(p.desired, desired)
	if p.err != nil {
		return reference.Horizon{}, p.err
	}
	pts := make([]dynamo.VehicleState, p.n+1)
	for i := range pts {
		pts[i] = dynamo.VehicleState{X: pose.X + float64(i), Y: pose.Y}
		if p.mode == reference.Timed {
			pts[i].Speed = p.speed
		}
	}
	return reference.Horizon{Points: pts, Stop: p.stopFrom > 0 && p.calls >= p.stopFrom}, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeSolver returns a result unique to each call so carryover can be traced.
// statuses maps 1-based call numbers to non-Optimal outcomes; zero makes
// every control zero.
type fakeSolver struct {
	mu       sync.Mutex
	n        int
	statuses map[int]mpc.Status
	zero     bool

	calls   int
	warm    []*mpc.WarmStart
	refs    [][]dynamo.VehicleState
	prev    []dynamo.Input
	results []mpc.Result
}

func (s *fakeSolver) Horizon() int { return s.n }

func (s *fakeSolver) Solve(x0 dynamo.VehicleState, ref []dynamo.VehicleState, ws *mpc.WarmStart) mpc.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.warm = append(s.warm, ws.Clone())
	s.refs = append(s.refs, append([]dynamo.VehicleState(nil), ref...))

	k := float64(s.calls)
	if s.zero {
		k = 0
	}
	res := mpc.Result{
		Status:    s.statuses[s.calls],
		Controls:  make([]dynamo.Input, s.n),
		Predicted: make([]dynamo.VehicleState, s.n+1),
		Slack:     make([]float64, s.n),
		Reference: ref,
		SolveTime: time.Millisecond,
	}
	for i := range res.Controls {
		res.Controls[i] = dynamo.Input{Accel: 0.1 * k, Steer: 0.01 * k}
		res.Slack[i] = k
	}
	for i := range res.Predicted {
		res.Predicted[i] = dynamo.VehicleState{X: x0.X + k + float64(i)}
	}
	s.results = append(s.results, res)
	return res
}

func (s *fakeSolver) UpdatePreviousInput(u dynamo.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = append(s.prev, u)
}

func (s *fakeSolver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSink struct {
	mu       sync.Mutex
	commands []control.Command
	enables  []control.Enable
	diags    []control.Diagnostic
	err      error
}

func (r *recordingSink) PublishCommand(_ context.Context, cmd control.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *recordingSink) Enable(_ context.Context, e control.Enable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enables = append(r.enables, e)
	return nil
}

func (r *recordingSink) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, d)
	return r.err
}

func (r *recordingSink) Commands() []control.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]control.Command(nil), r.commands...)
}

func (r *recordingSink) Diagnostics() []control.Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]control.Diagnostic(nil), r.diags...)
}

func (r *recordingSink) Enables() []control.Enable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]control.Enable(nil), r.enables...)
}
