package bench

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/unixpickle/alltoall-bench/report"
	"github.com/unixpickle/alltoall-bench/timing"
)

// IterationResult is the outcome of one measurement.
type IterationResult struct {
	Elapsed      time.Duration
	Milliseconds int64
	DataVolume   float64
}

// A Runner takes the measurements of a run.
type Runner struct {
	Config    Config
	Topology  Topology
	Exchanger Exchanger
	Clock     timing.Clock
	Reporter  *report.Reporter

	// Summary, if set, collects every measurement except
	// the warm-up.
	Summary *report.Summary

	// availableMemory is swapped out in tests.
	availableMemory func() (uint64, error)
}

// Run takes one warm-up measurement followed by
// r.Config.Iterations more, reporting each of them.
//
// It returns ErrTooFewProcesses without allocating
// anything if the group is too small. An exchange failure
// ends the run immediately.
func (r *Runner) Run() error {
	coordinator := r.Topology.IsCoordinator()
	n := r.Topology.ProcessCount

	r.Reporter.ProcessCount(coordinator, n)
	if n < 2 {
		r.Reporter.TooFewProcesses(true, n)
		return ErrTooFewProcesses
	}
	if err := r.Config.Validate(); err != nil {
		return err
	}

	r.preflight()
	buffers, err := NewBuffers(r.Config, r.Topology)
	if err != nil {
		return err
	}
	r.Reporter.Initializing(coordinator)

	driver := NewDriver(r.Config, r.Exchanger, buffers)
	stopwatch := timing.NewStopwatch(r.Clock, time.Millisecond)
	volume := report.DataVolume(r.Config.MessageSize, n, r.Config.ExchangesPerIteration)

	for i := 0; i <= r.Config.Iterations; i++ {
		exchangeErr, elapsed := timing.Measure(stopwatch, driver.Iterate)
		if exchangeErr != nil {
			return errors.Wrapf(exchangeErr, "iteration %d", i)
		}
		res := IterationResult{
			Elapsed:      elapsed,
			Milliseconds: elapsed.Milliseconds(),
			DataVolume:   volume,
		}
		r.Reporter.Iteration(coordinator, res.Milliseconds, res.DataVolume)
		if r.Summary != nil && i > 0 {
			r.Summary.Add(res.Milliseconds, res.DataVolume)
		}
	}
	return nil
}

// preflight warns when the buffers will not fit in the
// memory that is currently available.
func (r *Runner) preflight() {
	size, err := r.Config.BufferSize(r.Topology.ProcessCount)
	if err != nil {
		return
	}
	need := 2 * uint64(size)

	available := r.availableMemory
	if available == nil {
		available = systemAvailableMemory
	}
	free, err := available()
	if err != nil {
		grip.Debug(message.WrapError(err, message.Fields{
			"message": "could not read available memory",
		}))
		return
	}
	fields := message.Fields{
		"message":   "allocating exchange buffers",
		"rank":      r.Topology.Rank,
		"buffers":   humanize.Bytes(need),
		"available": humanize.Bytes(free),
	}
	if need > free {
		fields["message"] = "exchange buffers exceed available memory"
		grip.Warning(fields)
		return
	}
	grip.Debug(fields)
}

func systemAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
