package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
)

const DefaultBaud = 115200

// SerialLink speaks a newline-delimited text protocol:
//
//	in:  S,x,y,yaw,v   (the S tag is optional)
//	out: C,acc,df,stop
//	out: E,accel_enable,steer_enable
type SerialLink struct {
	port io.ReadWriteCloser
	log  *logging.Logger

	mu sync.Mutex
	counters
}

func OpenSerial(path string, baud int, log *logging.Logger) (*SerialLink, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return NewSerialLink(port, log), nil
}

// NewSerialLink wraps an already open port.
func NewSerialLink(port io.ReadWriteCloser, log *logging.Logger) *SerialLink {
	if log == nil {
		log = logging.Nop()
	}
	return &SerialLink{port: port, log: log}
}

func (l *SerialLink) Run(ctx context.Context, sink StateSink) error {
	stop := context.AfterFunc(ctx, func() { l.port.Close() })
	defer stop()

	sc := bufio.NewScanner(l.port)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := ParseStateLine(line)
		if err != nil {
			l.errors.Add(1)
			l.log.Warn("serial: %v", err)
			continue
		}
		l.deliver(sink, s)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("serial read: %w", err)
	}
	return io.EOF
}

// ParseStateLine decodes "x,y,yaw,v" with an optional leading "S" tag.
func ParseStateLine(line string) (dynamo.VehicleState, error) {
	fields := strings.Split(line, ",")
	if len(fields) == 5 && strings.EqualFold(strings.TrimSpace(fields[0]), "S") {
		fields = fields[1:]
	}
	if len(fields) != 4 {
		return dynamo.VehicleState{}, fmt.Errorf("state line %q: want 4 fields, got %d", line, len(fields))
	}
	var vals [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return dynamo.VehicleState{}, fmt.Errorf("state line %q: field %d: %w", line, i, err)
		}
		vals[i] = v
	}
	s := dynamo.VehicleState{X: vals[0], Y: vals[1], Yaw: vals[2], Speed: vals[3]}
	if !s.IsValid() {
		return dynamo.VehicleState{}, fmt.Errorf("state line %q: %w", line, dynamo.ErrInvalidState)
	}
	return s, nil
}

func FormatCommand(cmd control.Command) string {
	stop := 0
	if cmd.Stop {
		stop = 1
	}
	return fmt.Sprintf("C,%.4f,%.5f,%d\n", cmd.Accel, cmd.Steer, stop)
}

func (l *SerialLink) PublishCommand(_ context.Context, cmd control.Command) error {
	return l.write(FormatCommand(cmd))
}

func (l *SerialLink) Enable(_ context.Context, e control.Enable) error {
	return l.write(fmt.Sprintf("E,%d,%d\n", e.Accel, e.Steer))
}

func (l *SerialLink) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.port, s); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	l.sent.Add(1)
	return nil
}

func (l *SerialLink) Stats() Stats { return l.snapshot() }

func (l *SerialLink) Close() error { return l.port.Close() }
