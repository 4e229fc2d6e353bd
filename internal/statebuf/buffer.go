// Package statebuf holds the latest vehicle state estimate shared between the
// asynchronous ingestion path and the periodic control loop.
//
// The writer never waits: if the reader holds the buffer when an estimate
// arrives, the estimate is dropped and counted. Estimates arrive much faster
// than the loop ticks, so the next one supersedes it.
package statebuf

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

// Sample is a copy of the buffer contents taken under the lock.
type Sample struct {
	State    dynamo.VehicleState
	Seq      uint64
	Received time.Time
}

// Age is the time since the sample was written.
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.Received)
}

type Buffer struct {
	mu       sync.Mutex
	state    dynamo.VehicleState
	received time.Time
	seq      uint64
	set      bool

	accepted atomic.Uint64
	dropped  atomic.Uint64
	now      func() time.Time
}

func New() *Buffer {
	return &Buffer{now: time.Now}
}

// Update stores s if the buffer is free and reports whether it was stored.
func (b *Buffer) Update(s dynamo.VehicleState) bool {
	if !b.mu.TryLock() {
		b.dropped.Add(1)
		return false
	}
	b.state = s
	b.received = b.now()
	b.seq++
	b.set = true
	b.mu.Unlock()

	b.accepted.Add(1)
	return true
}

// Snapshot copies the latest state. ok is false until the first Update has
// been stored.
func (b *Buffer) Snapshot() (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set {
		return Sample{}, false
	}
	return Sample{State: b.state, Seq: b.seq, Received: b.received}, true
}

// Received reports whether any estimate has been stored.
func (b *Buffer) Received() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set
}

// Stats returns the number of stored and dropped updates.
func (b *Buffer) Stats() (accepted, dropped uint64) {
	return b.accepted.Load(), b.dropped.Load()
}
