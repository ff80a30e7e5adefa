// Package clock provides the trace collector's injected monotonic
// tick source, matching the constructor/validation shape the rest of
// this repo's components use.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/obstrace/obstrace/internal/trace"
)

// Monotonic is the default trace.Clock, backed by CLOCK_MONOTONIC so
// timestamps are immune to wall-clock adjustments. It carries a
// logger purely for symmetry with this repo's other injected
// dependencies; Now() itself never logs on the happy path.
type Monotonic struct {
	log logrus.FieldLogger
}

var _ trace.Clock = (*Monotonic)(nil)

// NewMonotonic creates a Monotonic clock.
func NewMonotonic(log logrus.FieldLogger) *Monotonic {
	return &Monotonic{log: log.WithField("component", "clock")}
}

// Now returns the current monotonic tick in nanoseconds.
func (m *Monotonic) Now() trace.Timestamp {
	var ts unix.Timespec

	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		m.log.WithError(err).Warn("clock_gettime failed, falling back to time.Now")

		return trace.Timestamp(time.Now().UnixNano())
	}

	return trace.Timestamp(ts.Nano())
}

// Fake is a settable trace.Clock for deterministic tests, matching
// the begin_event_at_time testing hook the collector exposes at the
// API layer.
type Fake struct {
	now atomic.Int64
}

var _ trace.Clock = (*Fake)(nil)

// NewFake creates a Fake clock starting at the given offset.
func NewFake(start time.Duration) *Fake {
	f := &Fake{}
	f.now.Store(int64(start))

	return f
}

// Now returns the fake clock's current value.
func (f *Fake) Now() trace.Timestamp {
	return trace.Timestamp(f.now.Load())
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.now.Add(int64(d))
}

// Set pins the fake clock to an absolute offset.
func (f *Fake) Set(d time.Duration) {
	f.now.Store(int64(d))
}
