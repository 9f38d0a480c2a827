package bench

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/alltoall-bench/report"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	now time.Duration
}

func (f *fakeClock) Now() time.Duration {
	return f.now
}

func newTestRunner(t *testing.T, cfg Config, topo Topology) (*Runner, *MockExchanger, *fakeClock, *bytes.Buffer) {
	ctrl := gomock.NewController(t)
	ex := NewMockExchanger(ctrl)
	clock := &fakeClock{}
	out := &bytes.Buffer{}
	r := &Runner{
		Config:          cfg,
		Topology:        topo,
		Exchanger:       ex,
		Clock:           clock,
		Reporter:        report.NewReporter(out),
		availableMemory: func() (uint64, error) { return math.MaxUint64, nil },
	}
	return r, ex, clock, out
}

// countMemoryChecks makes r count its memory preflights,
// which happen right before the buffers are allocated.
func countMemoryChecks(r *Runner) *int {
	calls := new(int)
	r.availableMemory = func() (uint64, error) {
		*calls++
		return math.MaxUint64, nil
	}
	return calls
}

func lines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRunnerReportsEveryIteration(t *testing.T) {
	cfg := Config{Iterations: 3, ExchangesPerIteration: 2, MessageSize: 1000}
	r, ex, clock, out := newTestRunner(t, cfg, Topology{ProcessCount: 4, Rank: 0})

	ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 1000).
		DoAndReturn(func(send, recv []byte, count int) error {
			clock.now += 5 * time.Millisecond
			return nil
		}).
		Times(2 * 4)

	require.NoError(t, r.Run())

	expected := []string{
		"Running with 4 processes.",
		"Starting initialization ...",
		"mili-sec: 10 - bw: 1.2",
		"mili-sec: 10 - bw: 1.2",
		"mili-sec: 10 - bw: 1.2",
		"mili-sec: 10 - bw: 1.2",
	}
	assert.Equal(t, expected, lines(out))
}

func TestRunnerNonCoordinatorSilent(t *testing.T) {
	cfg := Config{Iterations: 2, ExchangesPerIteration: 3, MessageSize: 16}
	r, ex, _, out := newTestRunner(t, cfg, Topology{ProcessCount: 3, Rank: 2})

	ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 16).Return(nil).Times(3 * 3)

	require.NoError(t, r.Run())
	assert.Empty(t, out.String())
}

func TestRunnerWarmupOnly(t *testing.T) {
	cfg := Config{Iterations: 0, ExchangesPerIteration: 1, MessageSize: 8}
	r, ex, clock, out := newTestRunner(t, cfg, Topology{ProcessCount: 2, Rank: 0})

	ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 8).
		DoAndReturn(func(send, recv []byte, count int) error {
			clock.now += 2 * time.Millisecond
			return nil
		})

	require.NoError(t, r.Run())
	results := 0
	for _, line := range lines(out) {
		if strings.HasPrefix(line, "mili-sec:") {
			results++
		}
	}
	assert.Equal(t, 1, results)
}

func TestRunnerTooFewProcesses(t *testing.T) {
	r, _, _, out := newTestRunner(t, DefaultConfig(), Topology{ProcessCount: 1, Rank: 0})
	checks := countMemoryChecks(r)

	// The mock fails the test on any exchange.
	err := r.Run()
	assert.Equal(t, ErrTooFewProcesses, err)
	assert.Equal(t, 0, *checks, "buffers were about to be allocated")
	assert.Equal(t, []string{
		"Running with 1 processes.",
		"You must use >= 2 processes. You are using 1 processes.",
	}, lines(out))
}

func TestRunnerExchangeFailure(t *testing.T) {
	cfg := Config{Iterations: 5, ExchangesPerIteration: 4, MessageSize: 10}
	r, ex, _, out := newTestRunner(t, cfg, Topology{ProcessCount: 2, Rank: 0})

	failure := errors.New("link down")
	gomock.InOrder(
		ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 10).Return(nil).Times(5),
		ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 10).Return(failure),
	)

	err := r.Run()
	require.Error(t, err)
	assert.Equal(t, failure, errors.Cause(err))
	assert.Contains(t, err.Error(), "iteration 1")

	// Only the warm-up was reported.
	assert.Len(t, lines(out), 3)
}

func TestRunnerReusesBuffers(t *testing.T) {
	cfg := Config{Iterations: 4, ExchangesPerIteration: 3, MessageSize: 7}
	r, ex, _, _ := newTestRunner(t, cfg, Topology{ProcessCount: 5, Rank: 1})

	var sendPtr, recvPtr *byte
	ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 7).
		DoAndReturn(func(send, recv []byte, count int) error {
			assert.Len(t, send, 35)
			assert.Len(t, recv, 35)
			if sendPtr == nil {
				sendPtr, recvPtr = &send[0], &recv[0]
			}
			assert.True(t, sendPtr == &send[0], "send buffer was reallocated")
			assert.True(t, recvPtr == &recv[0], "receive buffer was reallocated")
			return nil
		}).
		Times(5 * 3)

	require.NoError(t, r.Run())
}

func TestRunnerSummarySkipsWarmup(t *testing.T) {
	cfg := Config{Iterations: 3, ExchangesPerIteration: 1, MessageSize: 1000}
	r, ex, clock, _ := newTestRunner(t, cfg, Topology{ProcessCount: 4, Rank: 0})
	r.Summary = &report.Summary{}

	step := 0
	ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 1000).
		DoAndReturn(func(send, recv []byte, count int) error {
			step++
			clock.now += time.Duration(step) * time.Millisecond
			return nil
		}).
		Times(4)

	require.NoError(t, r.Run())
	assert.Equal(t, 3, r.Summary.Iterations())
	assert.InDelta(t, report.Bandwidth(6000, 2), r.Summary.Max(), 1e-12)
	assert.InDelta(t, report.Bandwidth(6000, 4), r.Summary.Min(), 1e-12)
}

func TestRunnerInvalidConfig(t *testing.T) {
	cfg := Config{Iterations: 1, ExchangesPerIteration: 0, MessageSize: 1}
	r, _, _, _ := newTestRunner(t, cfg, Topology{ProcessCount: 2, Rank: 0})
	checks := countMemoryChecks(r)
	assert.Error(t, r.Run())
	assert.Equal(t, 0, *checks, "buffers were about to be allocated")
}

func TestRunnerChecksMemoryOnce(t *testing.T) {
	cfg := Config{Iterations: 2, ExchangesPerIteration: 1, MessageSize: 8}
	r, ex, _, _ := newTestRunner(t, cfg, Topology{ProcessCount: 3, Rank: 2})
	checks := countMemoryChecks(r)
	ex.EXPECT().Alltoall(gomock.Any(), gomock.Any(), 8).Return(nil).Times(3)

	require.NoError(t, r.Run())
	assert.Equal(t, 1, *checks)
}

func TestDriverIterate(t *testing.T) {
	ctrl := gomock.NewController(t)
	ex := NewMockExchanger(ctrl)
	cfg := Config{Iterations: 1, ExchangesPerIteration: 3, MessageSize: 2}
	buffers, err := NewBuffers(cfg, Topology{ProcessCount: 2})
	require.NoError(t, err)

	ex.EXPECT().Alltoall(buffers.Send, buffers.Recv, 2).Return(nil).Times(6)

	d := NewDriver(cfg, ex, buffers)
	require.NoError(t, d.Iterate())
	require.NoError(t, d.Iterate())
}

func TestNewBuffers(t *testing.T) {
	cfg := Config{MessageSize: 100}
	buffers, err := NewBuffers(cfg, Topology{ProcessCount: 3})
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{SendFill}, 300), buffers.Send)
	assert.Equal(t, bytes.Repeat([]byte{RecvFill}, 300), buffers.Recv)

	_, err = NewBuffers(Config{MessageSize: math.MaxInt / 2}, Topology{ProcessCount: 3})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Iterations: 0, ExchangesPerIteration: 1, MessageSize: 1}.Validate())
	assert.Error(t, Config{Iterations: -1, ExchangesPerIteration: 1, MessageSize: 1}.Validate())
	assert.Error(t, Config{Iterations: 0, ExchangesPerIteration: 0, MessageSize: 1}.Validate())
	assert.Error(t, Config{Iterations: 0, ExchangesPerIteration: 1, MessageSize: 0}.Validate())
}

func TestTopologyCoordinator(t *testing.T) {
	assert.True(t, Topology{ProcessCount: 2, Rank: 0}.IsCoordinator())
	assert.False(t, Topology{ProcessCount: 2, Rank: 1}.IsCoordinator())
}
