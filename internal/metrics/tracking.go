package metrics

import (
	"context"
	"math"
	"sync"

	"github.com/DeepakIngole/genesis-path-follower/internal/analysis"
	"github.com/DeepakIngole/genesis-path-follower/internal/control"
)

// CrossTrack is the mean absolute lateral distance, in meters, from the
// vehicle to the reference line through the first horizon point.
type CrossTrack struct{ mean }

func NewCrossTrack() *CrossTrack { return &CrossTrack{} }

func (c *CrossTrack) Name() string { return "cross_track" }

func (c *CrossTrack) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	if len(d.Reference) == 0 {
		return nil
	}
	r := d.Reference[0]
	lat := -(d.State.X-r.X)*math.Sin(r.Yaw) + (d.State.Y-r.Y)*math.Cos(r.Yaw)
	c.add(math.Abs(lat))
	return nil
}

// ControlEffort is the mean |accel| + |steer| over ticks that issued a drive
// command.
type ControlEffort struct{ mean }

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	if d.Command == nil {
		return nil
	}
	c.add(math.Abs(d.Command.Accel) + math.Abs(d.Command.Steer))
	return nil
}

// Saturation is the fraction of commanded ticks with the steering at or
// beyond threshold.
type Saturation struct {
	mean
	threshold float64
}

func NewSaturation(threshold float64) *Saturation {
	return &Saturation{threshold: threshold}
}

func (s *Saturation) Name() string { return "steer_saturation" }

func (s *Saturation) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	if d.Command == nil {
		return nil
	}
	if s.threshold > 0 && math.Abs(d.Command.Steer) >= s.threshold-1e-9 {
		s.add(1)
	} else {
		s.add(0)
	}
	return nil
}

// SteerOscillation is the dominant frequency in Hz of the recent steering
// commands. It reads 0 until enough ticks are seen, or when the steering
// swing is below minSwing rad.
type SteerOscillation struct {
	mu     sync.Mutex
	rateHz float64
	steer  []float64
}

const (
	oscillationWindow     = 512
	minOscillationSamples = 32
	minSwing              = 1e-3
)

func NewSteerOscillation(rateHz float64) *SteerOscillation {
	return &SteerOscillation{rateHz: rateHz}
}

func (s *SteerOscillation) Name() string { return "steer_osc_hz" }

func (s *SteerOscillation) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	if d.Command == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steer) == oscillationWindow {
		s.steer = append(s.steer[:0], s.steer[1:]...)
	}
	s.steer = append(s.steer, d.Command.Steer)
	return nil
}

func (s *SteerOscillation) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steer) < minOscillationSamples || s.rateHz <= 0 {
		return 0
	}
	lo, hi := s.steer[0], s.steer[0]
	for _, v := range s.steer {
		lo, hi = min(lo, v), max(hi, v)
	}
	if hi-lo < minSwing {
		return 0
	}
	freq, _ := analysis.DominantFrequency(s.steer, s.rateHz)
	return freq
}

func (s *SteerOscillation) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steer = s.steer[:0]
}
