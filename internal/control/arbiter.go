package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
)

// Command is one outbound actuator command.
type Command struct {
	Tick  uint64    `json:"tick"`
	Time  time.Time `json:"time"`
	Accel float64   `json:"acc"`
	Steer float64   `json:"df"`
	Stop  bool      `json:"stop"`
}

// Diagnostic is the per-tick record of a solve.
type Diagnostic struct {
	Tick      uint64                `json:"tick"`
	Time      time.Time             `json:"time"`
	Status    string                `json:"status"`
	SolveTime time.Duration         `json:"solve_time"`
	State     dynamo.VehicleState   `json:"state"`
	Predicted []dynamo.VehicleState `json:"predicted"`
	Reference []dynamo.VehicleState `json:"reference"`
	Controls  []dynamo.Input        `json:"controls"`
	Slack     []float64             `json:"slack"`
	// Command is the drive command issued this tick, nil when none was.
	Command *Command `json:"command,omitempty"`
}

// Enable holds the one-shot actuator enable values.
type Enable struct {
	Accel int `yaml:"accel" json:"accel"`
	Steer int `yaml:"steer" json:"steer"`
}

type CommandSink interface {
	PublishCommand(ctx context.Context, cmd Command) error
}

// Enabler is implemented by command sinks that need the actuators switched
// on before the first command.
type Enabler interface {
	Enable(ctx context.Context, e Enable) error
}

type DiagnosticSink interface {
	PublishDiagnostic(ctx context.Context, d Diagnostic) error
}

// Arbiter turns loop decisions into outbound commands. The actuator sink's
// errors are returned; taps and diagnostic sinks only log theirs.
type Arbiter struct {
	actuator  CommandSink
	taps      []CommandSink
	diags     []DiagnosticSink
	stopAccel float64
	enable    Enable
	log       *logging.Logger

	once      sync.Once
	enableErr error
}

func NewArbiter(actuator CommandSink, stopAccel float64, enable Enable, log *logging.Logger) *Arbiter {
	if log == nil {
		log = logging.Nop()
	}
	return &Arbiter{
		actuator:  actuator,
		stopAccel: stopAccel,
		enable:    enable,
		log:       log,
	}
}

// AddCommandTap mirrors every published command to s.
func (a *Arbiter) AddCommandTap(s CommandSink)        { a.taps = append(a.taps, s) }
func (a *Arbiter) AddDiagnosticSink(s DiagnosticSink) { a.diags = append(a.diags, s) }

// Enable sends the enable signals once. Later calls return the first
// call's result.
func (a *Arbiter) Enable(ctx context.Context) error {
	a.once.Do(func() {
		en, ok := a.actuator.(Enabler)
		if !ok {
			return
		}
		if err := en.Enable(ctx, a.enable); err != nil {
			a.enableErr = fmt.Errorf("enable actuators: %w", err)
			return
		}
		a.log.Info("actuators enabled: accel=%d steer=%d", a.enable.Accel, a.enable.Steer)
	})
	return a.enableErr
}

func (a *Arbiter) Drive(ctx context.Context, tick uint64, u dynamo.Input) (Command, error) {
	cmd := Command{Tick: tick, Time: time.Now(), Accel: u.Accel, Steer: u.Steer}
	return cmd, a.publish(ctx, cmd)
}

// Stop publishes the fixed braking command.
func (a *Arbiter) Stop(ctx context.Context, tick uint64) (Command, error) {
	cmd := Command{Tick: tick, Time: time.Now(), Accel: a.stopAccel, Stop: true}
	return cmd, a.publish(ctx, cmd)
}

func (a *Arbiter) StopAccel() float64 { return a.stopAccel }

func (a *Arbiter) publish(ctx context.Context, cmd Command) error {
	if err := a.actuator.PublishCommand(ctx, cmd); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	for _, t := range a.taps {
		if err := t.PublishCommand(ctx, cmd); err != nil {
			a.log.Warn("command tap: %v", err)
		}
	}
	return nil
}

func (a *Arbiter) Diagnose(ctx context.Context, d Diagnostic) {
	for _, s := range a.diags {
		if err := s.PublishDiagnostic(ctx, d); err != nil {
			a.log.Warn("diagnostic sink: %v", err)
		}
	}
}

// NewDiagnostic builds the record for one solve.
func NewDiagnostic(tick uint64, x dynamo.VehicleState, res mpc.Result) Diagnostic {
	return Diagnostic{
		Tick:      tick,
		Time:      time.Now(),
		Status:    res.Status.String(),
		SolveTime: res.SolveTime,
		State:     x,
		Predicted: res.Predicted,
		Reference: res.Reference,
		Controls:  res.Controls,
		Slack:     res.Slack,
	}
}
