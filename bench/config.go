// Package bench measures the bandwidth of repeated
// all-to-all exchanges.
package bench

import (
	"math"

	"github.com/pkg/errors"
)

// Default benchmark parameters.
const (
	DefaultIterations            = 10000
	DefaultExchangesPerIteration = 100
	DefaultMessageSize           = 50000000
)

// ErrTooFewProcesses is returned when a group is too small
// to exchange anything.
var ErrTooFewProcesses = errors.New("at least 2 processes are required")

// Config holds the parameters of a run.
type Config struct {
	// Iterations is the number of measurements taken
	// after the warm-up measurement.
	Iterations int

	// ExchangesPerIteration is the number of all-to-all
	// exchanges inside one measurement.
	ExchangesPerIteration int

	// MessageSize is the number of bytes sent to each
	// peer in one exchange.
	MessageSize int
}

// DefaultConfig returns the default parameters.
func DefaultConfig() Config {
	return Config{
		Iterations:            DefaultIterations,
		ExchangesPerIteration: DefaultExchangesPerIteration,
		MessageSize:           DefaultMessageSize,
	}
}

// Validate checks that every parameter is in range.
func (c Config) Validate() error {
	if c.Iterations < 0 {
		return errors.Errorf("iterations must be >= 0, got %d", c.Iterations)
	}
	if c.ExchangesPerIteration < 1 {
		return errors.Errorf("exchanges per iteration must be >= 1, got %d", c.ExchangesPerIteration)
	}
	if c.MessageSize < 1 {
		return errors.Errorf("message size must be >= 1, got %d", c.MessageSize)
	}
	return nil
}

// BufferSize returns the size of each of the send and
// receive buffers for a group of processCount processes.
func (c Config) BufferSize(processCount int) (int, error) {
	if processCount > 0 && c.MessageSize > math.MaxInt/processCount {
		return 0, errors.Errorf("buffer of %d x %d bytes does not fit in memory",
			c.MessageSize, processCount)
	}
	return c.MessageSize * processCount, nil
}

// Topology describes the group a process belongs to.
type Topology struct {
	ProcessCount int
	Rank         int
}

// IsCoordinator reports whether this process is the one
// that emits results.
func (t Topology) IsCoordinator() bool {
	return t.Rank == 0
}
