package report

import (
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
)

// A Summary aggregates bandwidth over many iterations.
type Summary struct {
	iterations int
	volume     float64
	totalMS    int64

	minBW float64
	maxBW float64
	sumBW float64
}

// Add records one iteration.
func (s *Summary) Add(milliseconds int64, volume float64) {
	bw := Bandwidth(volume, milliseconds)
	if s.iterations == 0 {
		s.minBW, s.maxBW = bw, bw
	} else {
		s.minBW = math.Min(s.minBW, bw)
		s.maxBW = math.Max(s.maxBW, bw)
	}
	s.iterations++
	s.volume += volume
	s.totalMS += milliseconds
	s.sumBW += bw
}

// Iterations returns the number of recorded iterations.
func (s *Summary) Iterations() int {
	return s.iterations
}

// Mean returns the average of the per-iteration
// bandwidths, or 0 if nothing was recorded.
func (s *Summary) Mean() float64 {
	if s.iterations == 0 {
		return 0
	}
	return s.sumBW / float64(s.iterations)
}

// Min returns the lowest per-iteration bandwidth.
func (s *Summary) Min() float64 {
	return s.minBW
}

// Max returns the highest per-iteration bandwidth.
func (s *Summary) Max() float64 {
	return s.maxBW
}

// Print writes the summary as a table, if coordinator is
// set.
func (s *Summary) Print(coordinator bool, w io.Writer) {
	if !coordinator {
		return
	}
	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
	t.AddHeader("Iterations", "Data", "Total ms", "Min bw", "Mean bw", "Max bw")
	t.AddLine(
		strconv.Itoa(s.iterations),
		humanize.Bytes(uint64(s.volume)),
		strconv.FormatInt(s.totalMS, 10),
		FormatBandwidth(s.Min()),
		FormatBandwidth(s.Mean()),
		FormatBandwidth(s.Max()),
	)
	t.Print()
}
