// Package transport connects the controller to the vehicle: it feeds state
// estimates into the state buffer and carries commands back out. Three links
// are provided: SocketCAN, a serial line and length-prefixed JSON over TCP.
package transport

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
)

// StateSink receives decoded estimates. It reports false when the estimate
// was dropped.
type StateSink interface {
	Update(s dynamo.VehicleState) bool
}

type Stats struct {
	Received uint64 // estimates decoded
	Dropped  uint64 // estimates refused by the sink
	Errors   uint64 // undecodable input
	Sent     uint64 // frames or messages written
}

// Link is a bidirectional vehicle connection. Run blocks, feeding sink until
// ctx is cancelled or the link fails.
type Link interface {
	control.CommandSink
	control.Enabler
	Run(ctx context.Context, sink StateSink) error
	Stats() Stats
	Close() error
}

type Options struct {
	Kind       string // can, serial, tcp
	CANIface   string
	SerialPort string
	Baud       int
	TCPAddr    string
}

// Kinds lists the values accepted by Open.
var Kinds = []string{"can", "serial", "tcp"}

func Open(ctx context.Context, opts Options, log *logging.Logger) (Link, error) {
	if log == nil {
		log = logging.Nop()
	}
	switch opts.Kind {
	case "can":
		return DialCAN(ctx, opts.CANIface, log)
	case "serial":
		return OpenSerial(opts.SerialPort, opts.Baud, log)
	case "tcp":
		return DialTCP(ctx, opts.TCPAddr, log)
	default:
		return nil, &dynamo.ConfigurationError{Field: "transport.kind", Reason: fmt.Sprintf("unknown kind %q", opts.Kind)}
	}
}

type counters struct {
	received, dropped, errors, sent atomic.Uint64
}

func (c *counters) deliver(sink StateSink, s dynamo.VehicleState) {
	c.received.Add(1)
	if !sink.Update(s) {
		c.dropped.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received: c.received.Load(),
		Dropped:  c.dropped.Load(),
		Errors:   c.errors.Load(),
		Sent:     c.sent.Load(),
	}
}
