package metrics

import (
	"context"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
)

// SolveRate is the fraction of solves that came back Optimal.
type SolveRate struct{ mean }

func NewSolveRate() *SolveRate { return &SolveRate{} }

func (s *SolveRate) Name() string { return "solve_rate" }

func (s *SolveRate) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	if d.Status == mpc.Optimal.String() {
		s.add(1)
	} else {
		s.add(0)
	}
	return nil
}

// SolveTime is the mean solve duration in milliseconds.
type SolveTime struct{ mean }

func NewSolveTime() *SolveTime { return &SolveTime{} }

func (s *SolveTime) Name() string { return "solve_time_ms" }

func (s *SolveTime) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	s.add(float64(d.SolveTime.Microseconds()) / 1000)
	return nil
}
