package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
)

const maxMessage = 1 << 20

// Message is the JSON body of one TCP frame.
type Message struct {
	Type string `json:"type"` // state, cmd, enable

	X   float64 `json:"x,omitempty"`
	Y   float64 `json:"y,omitempty"`
	Yaw float64 `json:"yaw,omitempty"`
	V   float64 `json:"v,omitempty"`

	Acc  float64 `json:"acc,omitempty"`
	Df   float64 `json:"df,omitempty"`
	Stop bool    `json:"stop,omitempty"`

	AccelEnable int `json:"accel_enable,omitempty"`
	SteerEnable int `json:"steer_enable,omitempty"`
}

// TCPLink exchanges 4-byte big-endian length-prefixed JSON messages with a
// simulator or gateway over a single connection.
type TCPLink struct {
	conn net.Conn
	log  *logging.Logger

	mu sync.Mutex
	counters
}

func DialTCP(ctx context.Context, addr string, log *logging.Logger) (*TCPLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCPLink(conn, log), nil
}

func NewTCPLink(conn net.Conn, log *logging.Logger) *TCPLink {
	if log == nil {
		log = logging.Nop()
	}
	return &TCPLink{conn: conn, log: log}
}

func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessage {
		return Message{}, fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, fmt.Errorf("failed to read message: %w", err)
	}
	var m Message
	if err := json.Unmarshal(buf, &m); err != nil {
		return Message{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return m, nil
}

func WriteMessage(w io.Writer, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (l *TCPLink) Run(ctx context.Context, sink StateSink) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	for {
		m, err := ReadMessage(l.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if m.Type != "state" {
			l.log.Trace("tcp: ignoring %q message", m.Type)
			continue
		}
		s := dynamo.VehicleState{X: m.X, Y: m.Y, Yaw: m.Yaw, Speed: m.V}
		if !s.IsValid() {
			l.errors.Add(1)
			l.log.Warn("tcp: %v", dynamo.ErrInvalidState)
			continue
		}
		l.deliver(sink, s)
	}
}

func (l *TCPLink) PublishCommand(_ context.Context, cmd control.Command) error {
	return l.write(Message{Type: "cmd", Acc: cmd.Accel, Df: cmd.Steer, Stop: cmd.Stop})
}

func (l *TCPLink) Enable(_ context.Context, e control.Enable) error {
	return l.write(Message{Type: "enable", AccelEnable: e.Accel, SteerEnable: e.Steer})
}

func (l *TCPLink) write(m Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := WriteMessage(l.conn, m); err != nil {
		return err
	}
	l.sent.Add(1)
	return nil
}

func (l *TCPLink) Stats() Stats { return l.snapshot() }

func (l *TCPLink) Close() error { return l.conn.Close() }
