package viz

import (
	"context"
	"sync"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

const (
	historyCapacity = 120
	trailCapacity   = 4000
)

// Feed collects what the dashboard draws. It is attached to the arbiter as a
// command tap and a diagnostic sink and never blocks the loop for longer
// than a copy.
type Feed struct {
	mu      sync.Mutex
	diag    control.Diagnostic
	hasDiag bool
	cmd     control.Command
	hasCmd  bool
	solveMs []float64
	speed   []float64
	trail   []dynamo.VehicleState
}

func NewFeed() *Feed {
	return &Feed{
		solveMs: make([]float64, 0, historyCapacity),
		speed:   make([]float64, 0, historyCapacity),
		trail:   make([]dynamo.VehicleState, 0, 256),
	}
}

// FeedSnapshot is a private copy of the feed contents.
type FeedSnapshot struct {
	Diagnostic    control.Diagnostic
	HasDiagnostic bool
	Command       control.Command
	HasCommand    bool
	SolveMs       []float64
	Speed         []float64
	Trail         []dynamo.VehicleState
}

func (f *Feed) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diag, f.hasDiag = d, true
	f.solveMs = push(f.solveMs, float64(d.SolveTime.Microseconds())/1000, historyCapacity)
	f.speed = push(f.speed, d.State.Speed, historyCapacity)
	if len(f.trail) >= trailCapacity {
		// keep every other point so the whole drive stays visible
		kept := f.trail[:0]
		for i := 0; i < len(f.trail); i += 2 {
			kept = append(kept, f.trail[i])
		}
		f.trail = kept
	}
	f.trail = append(f.trail, d.State)
	return nil
}

func (f *Feed) PublishCommand(_ context.Context, c control.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmd, f.hasCmd = c, true
	return nil
}

func (f *Feed) Snapshot() FeedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FeedSnapshot{
		Diagnostic:    f.diag,
		HasDiagnostic: f.hasDiag,
		Command:       f.cmd,
		HasCommand:    f.hasCmd,
		SolveMs:       append([]float64(nil), f.solveMs...),
		Speed:         append([]float64(nil), f.speed...),
		Trail:         append([]dynamo.VehicleState(nil), f.trail...),
	}
}

func push(buf []float64, v float64, capacity int) []float64 {
	if len(buf) >= capacity {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	return append(buf, v)
}

func split(states []dynamo.VehicleState) (xs, ys []float64) {
	xs = make([]float64, len(states))
	ys = make([]float64, len(states))
	for i, s := range states {
		xs[i], ys[i] = s.X, s.Y
	}
	return xs, ys
}
