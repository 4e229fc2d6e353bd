package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
)

// CANLink talks to the vehicle over SocketCAN. Transmit and receive use
// separate sockets on the same interface.
type CANLink struct {
	iface  string
	txConn net.Conn
	rxConn net.Conn
	tx     *socketcan.Transmitter
	rx     *socketcan.Receiver
	log    *logging.Logger

	mu  sync.Mutex
	asm stateAssembler
	counters
}

func DialCAN(ctx context.Context, iface string, log *logging.Logger) (*CANLink, error) {
	txConn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	rxConn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		txConn.Close()
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &CANLink{
		iface:  iface,
		txConn: txConn,
		rxConn: rxConn,
		tx:     socketcan.NewTransmitter(txConn),
		rx:     socketcan.NewReceiver(rxConn),
		log:    log,
	}, nil
}

func (l *CANLink) Run(ctx context.Context, sink StateSink) error {
	l.log.Debug("CAN RX loop started on %s", l.iface)
	defer l.log.Debug("CAN RX loop stopped")

	// Receive blocks in the kernel; closing the socket is the only way out.
	stop := context.AfterFunc(ctx, func() { l.rxConn.Close() })
	defer stop()

	for l.rx.Receive() {
		frame := l.rx.Frame()
		l.log.Trace("RX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
		l.handle(frame, sink)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := l.rx.Err(); err != nil {
		return fmt.Errorf("can receive: %w", err)
	}
	return nil
}

func (l *CANLink) handle(frame can.Frame, sink StateSink) {
	s, ok, err := l.asm.handle(frame)
	if err != nil {
		l.errors.Add(1)
		l.log.Warn("CAN decode: %v", err)
		return
	}
	if ok {
		l.deliver(sink, s)
	}
}

func (l *CANLink) PublishCommand(ctx context.Context, cmd control.Command) error {
	return l.transmit(ctx, CommandFrames(cmd))
}

func (l *CANLink) Enable(ctx context.Context, e control.Enable) error {
	return l.transmit(ctx, EnableFrames(e))
}

func (l *CANLink) transmit(ctx context.Context, frames []can.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range frames {
		if err := l.tx.TransmitFrame(ctx, f); err != nil {
			return fmt.Errorf("can transmit 0x%X: %w", f.ID, err)
		}
		l.sent.Add(1)
	}
	return nil
}

func (l *CANLink) Stats() Stats { return l.snapshot() }

// Close shuts both sockets. The RX socket may already be closed by a
// cancelled Run, so its error is ignored.
func (l *CANLink) Close() error {
	_ = l.rxConn.Close()
	return l.txConn.Close()
}
