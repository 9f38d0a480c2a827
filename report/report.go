// Package report turns measured exchange times into
// bandwidth figures.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
)

// DataVolume computes the number of bytes one process
// moves during an iteration.
//
// Every exchange sends messageSize bytes to each of the
// other processCount-1 processes and receives the same
// amount from each of them.
func DataVolume(messageSize, processCount, exchanges int) float64 {
	perExchange := float64(messageSize) * float64(processCount-1) * 2
	return perExchange * float64(exchanges)
}

// Bandwidth converts a data volume and an elapsed time in
// milliseconds into gigabytes per second.
//
// A zero elapsed time yields +Inf.
func Bandwidth(volume float64, milliseconds int64) float64 {
	return volume / float64(milliseconds) * 1000 / 1000 / 1000
}

// FormatBandwidth renders a bandwidth with six
// significant digits.
func FormatBandwidth(bw float64) string {
	switch {
	case math.IsInf(bw, 1):
		return "inf"
	case math.IsInf(bw, -1):
		return "-inf"
	case math.IsNaN(bw):
		return "nan"
	}
	return strconv.FormatFloat(bw, 'g', 6, 64)
}

// A Reporter writes benchmark progress and results.
//
// Every method takes a coordinator flag; when it is false
// the call writes nothing, so that a group of processes
// produces exactly one copy of each line.
type Reporter struct {
	Out io.Writer
}

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{Out: w}
}

// Iteration reports one measured iteration.
func (r *Reporter) Iteration(coordinator bool, milliseconds int64, volume float64) {
	if !coordinator {
		return
	}
	fmt.Fprintf(r.Out, "mili-sec: %d - bw: %s\n", milliseconds,
		FormatBandwidth(Bandwidth(volume, milliseconds)))
}

// ProcessCount announces the size of the group.
func (r *Reporter) ProcessCount(coordinator bool, n int) {
	if coordinator {
		fmt.Fprintf(r.Out, "Running with %d processes.\n", n)
	}
}

// TooFewProcesses explains why a run was refused.
//
// Unlike the other methods, every process is expected to
// call this with coordinator set.
func (r *Reporter) TooFewProcesses(coordinator bool, n int) {
	if coordinator {
		fmt.Fprintf(r.Out, "You must use >= 2 processes. You are using %d processes.\n", n)
	}
}

// Initializing announces the start of the measurements.
func (r *Reporter) Initializing(coordinator bool) {
	if coordinator {
		fmt.Fprintln(r.Out, "Starting initialization ...")
	}
}
