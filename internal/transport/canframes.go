package transport

import (
	"fmt"
	"math"

	"go.einride.tech/can"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

// Signal is a little-endian scaled integer inside a CAN payload.
type Signal struct {
	Name   string
	Start  uint8
	Length uint8
	Signed bool
	Factor float64
	Offset float64
}

func (s Signal) encode(d *can.Data, v float64) {
	raw := math.Round((v - s.Offset) / s.Factor)
	if s.Signed {
		lim := float64(int64(1) << (s.Length - 1))
		raw = math.Max(-lim, math.Min(lim-1, raw))
		d.SetSignedBitsLittleEndian(s.Start, s.Length, int64(raw))
		return
	}
	lim := float64(uint64(1)<<s.Length - 1)
	raw = math.Max(0, math.Min(lim, raw))
	d.SetUnsignedBitsLittleEndian(s.Start, s.Length, uint64(raw))
}

func (s Signal) decode(d *can.Data) float64 {
	if s.Signed {
		return float64(d.SignedBitsLittleEndian(s.Start, s.Length))*s.Factor + s.Offset
	}
	return float64(d.UnsignedBitsLittleEndian(s.Start, s.Length))*s.Factor + s.Offset
}

type FrameLayout struct {
	Name    string
	ID      uint32
	Length  uint8
	Signals []Signal
}

func (f FrameLayout) Encode(values map[string]float64) can.Frame {
	frame := can.Frame{ID: f.ID, Length: f.Length}
	for _, s := range f.Signals {
		s.encode(&frame.Data, values[s.Name])
	}
	return frame
}

func (f FrameLayout) Decode(frame can.Frame) (map[string]float64, error) {
	if frame.ID != f.ID {
		return nil, fmt.Errorf("%s: unexpected id 0x%X", f.Name, frame.ID)
	}
	if frame.Length < f.Length {
		return nil, fmt.Errorf("%s: expects length %d, got %d", f.Name, f.Length, frame.Length)
	}
	out := make(map[string]float64, len(f.Signals))
	for _, s := range f.Signals {
		out[s.Name] = s.decode(&frame.Data)
	}
	return out, nil
}

// Vehicle CAN map.
var (
	StatePoseFrame = FrameLayout{Name: "STATE_EST_POSE", ID: 0x400, Length: 8, Signals: []Signal{
		{Name: "x", Start: 0, Length: 32, Signed: true, Factor: 0.001},
		{Name: "y", Start: 32, Length: 32, Signed: true, Factor: 0.001},
	}}
	StateMotionFrame = FrameLayout{Name: "STATE_EST_MOTION", ID: 0x401, Length: 6, Signals: []Signal{
		{Name: "yaw", Start: 0, Length: 32, Signed: true, Factor: 1e-6},
		{Name: "v", Start: 32, Length: 16, Signed: true, Factor: 0.01},
	}}
	AccelCmdFrame = FrameLayout{Name: "ACCEL_CMD", ID: 0x200, Length: 2, Signals: []Signal{
		{Name: "acc", Start: 0, Length: 16, Signed: true, Factor: 0.001},
	}}
	SteerCmdFrame = FrameLayout{Name: "STEER_CMD", ID: 0x201, Length: 2, Signals: []Signal{
		{Name: "df", Start: 0, Length: 16, Signed: true, Factor: 0.0001},
	}}
	AccelEnableFrame = FrameLayout{Name: "ACCEL_ENABLE", ID: 0x210, Length: 1, Signals: []Signal{
		{Name: "enable", Start: 0, Length: 8, Factor: 1},
	}}
	SteerEnableFrame = FrameLayout{Name: "STEER_ENABLE", ID: 0x211, Length: 1, Signals: []Signal{
		{Name: "enable", Start: 0, Length: 8, Factor: 1},
	}}
)

func CommandFrames(cmd control.Command) []can.Frame {
	return []can.Frame{
		AccelCmdFrame.Encode(map[string]float64{"acc": cmd.Accel}),
		SteerCmdFrame.Encode(map[string]float64{"df": cmd.Steer}),
	}
}

func EnableFrames(e control.Enable) []can.Frame {
	return []can.Frame{
		AccelEnableFrame.Encode(map[string]float64{"enable": float64(e.Accel)}),
		SteerEnableFrame.Encode(map[string]float64{"enable": float64(e.Steer)}),
	}
}

// stateAssembler pairs pose and motion frames into one estimate. An estimate
// is emitted on every motion frame that follows a pose frame.
type stateAssembler struct {
	pose    dynamo.VehicleState
	hasPose bool
}

func (a *stateAssembler) handle(frame can.Frame) (dynamo.VehicleState, bool, error) {
	switch frame.ID {
	case StatePoseFrame.ID:
		v, err := StatePoseFrame.Decode(frame)
		if err != nil {
			return dynamo.VehicleState{}, false, err
		}
		a.pose.X, a.pose.Y = v["x"], v["y"]
		a.hasPose = true
		return dynamo.VehicleState{}, false, nil
	case StateMotionFrame.ID:
		v, err := StateMotionFrame.Decode(frame)
		if err != nil {
			return dynamo.VehicleState{}, false, err
		}
		if !a.hasPose {
			return dynamo.VehicleState{}, false, nil
		}
		s := a.pose
		s.Yaw, s.Speed = v["yaw"], v["v"]
		a.hasPose = false
		return s, true, nil
	default:
		return dynamo.VehicleState{}, false, nil
	}
}
