// Package timing measures how long a unit of work takes.
package timing

import "time"

// A Clock is a monotonic time source.
//
// Now returns the time elapsed since some arbitrary,
// fixed origin. Only differences between two readings
// are meaningful.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Duration

// Now calls f.
func (f ClockFunc) Now() time.Duration {
	return f()
}

type wallClock struct {
	origin time.Time
}

// WallClock creates a Clock backed by the monotonic
// reading of the system clock.
func WallClock() Clock {
	return wallClock{origin: time.Now()}
}

func (w wallClock) Now() time.Duration {
	return time.Since(w.origin)
}

// A Stopwatch times work against a Clock and reports
// results at a fixed resolution.
type Stopwatch struct {
	Clock Clock

	// Unit is the resolution of results.
	// If it is 0, time.Millisecond is used.
	Unit time.Duration
}

// NewStopwatch creates a Stopwatch.
func NewStopwatch(clock Clock, unit time.Duration) Stopwatch {
	return Stopwatch{Clock: clock, Unit: unit}
}

// Count runs work once and returns the number of whole
// units that elapsed while it ran.
func (s Stopwatch) Count(work func()) int64 {
	return int64(s.Duration(work) / s.unit())
}

// Duration runs work once and returns the elapsed time,
// truncated to the stopwatch's unit.
func (s Stopwatch) Duration(work func()) time.Duration {
	start := s.Clock.Now()
	work()
	return s.truncate(s.Clock.Now() - start)
}

// Execute runs work(arg) once and returns the elapsed
// time as a count of s.Unit.
func Execute[A any](s Stopwatch, work func(A), arg A) int64 {
	return s.Count(func() {
		work(arg)
	})
}

// Measure runs work once and returns both its result and
// the elapsed time truncated to s.Unit.
func Measure[R any](s Stopwatch, work func() R) (R, time.Duration) {
	var res R
	elapsed := s.Duration(func() {
		res = work()
	})
	return res, elapsed
}

func (s Stopwatch) unit() time.Duration {
	if s.Unit <= 0 {
		return time.Millisecond
	}
	return s.Unit
}

func (s Stopwatch) truncate(d time.Duration) time.Duration {
	return d.Truncate(s.unit())
}
