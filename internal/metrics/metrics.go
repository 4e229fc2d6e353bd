// Package metrics scores a run from its diagnostic stream. Every metric is a
// control.DiagnosticSink and can be attached to the arbiter directly.
package metrics

import (
	"context"
	"sync"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
)

type Metric interface {
	control.DiagnosticSink
	Name() string
	Value() float64
	Reset()
}

// Set fans diagnostics out to several metrics.
type Set struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewSet(ms ...Metric) *Set {
	return &Set{metrics: ms}
}

// Default is the set recorded with every run. rateHz is the control rate
// the commands arrive at.
func Default(steerLimit, rateHz float64) *Set {
	return NewSet(
		NewCrossTrack(),
		NewControlEffort(),
		NewSolveRate(),
		NewSolveTime(),
		NewSaturation(steerLimit),
		NewSteerOscillation(rateHz),
	)
}

// Has reports whether name is one of the metrics in the set.
func (s *Set) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		if m.Name() == name {
			return true
		}
	}
	return false
}

// HigherIsBetter reports whether a larger value of the named metric means a
// better run.
func HigherIsBetter(name string) bool {
	return name == "solve_rate"
}

func (s *Set) PublishDiagnostic(ctx context.Context, d control.Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		if err := m.PublishDiagnostic(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Values returns the current value of every metric keyed by name.
func (s *Set) Values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Reset()
	}
}

// mean is the running average shared by most metrics.
type mean struct {
	mu      sync.Mutex
	sum     float64
	samples int
}

func (m *mean) add(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += v
	m.samples++
}

func (m *mean) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *mean) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum = 0
	m.samples = 0
}
