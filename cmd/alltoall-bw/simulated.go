package main

import (
	"io"
	"math"
	"time"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/unixpickle/alltoall-bench/bench"
	"github.com/unixpickle/alltoall-bench/collcomm"
	"github.com/unixpickle/alltoall-bench/collcomm/alltoall"
	"github.com/unixpickle/alltoall-bench/report"
	"github.com/unixpickle/alltoall-bench/simulator"
)

// runSimulated runs every rank of the group as a Goroutine
// on a simulated switched network. Times are virtual.
func runSimulated(cfg bench.Config, opts *options, stdout io.Writer) error {
	alg, err := alltoall.ByName(opts.simAlgorithm)
	if err != nil {
		return configError{err}
	}
	if opts.simRate <= 0 || opts.simLatency < 0 {
		return configError{errors.Errorf("invalid simulated network: rate %g, latency %g",
			opts.simRate, opts.simLatency)}
	}

	n := opts.simProcs
	grip.Info(message.Fields{
		"message":   "simulating group",
		"processes": n,
		"rate":      opts.simRate,
		"latency":   opts.simLatency,
		"algorithm": opts.simAlgorithm,
	})

	loop := simulator.NewLoop()
	hosts := make([]*simulator.Host, n)
	for i := range hosts {
		hosts[i] = simulator.NewHost()
	}
	latency := time.Duration(math.Round(opts.simLatency * float64(time.Second)))
	network := simulator.NewSwitchedNetwork(simulator.NewFairShareSwitch(n, opts.simRate), hosts, latency)

	reporter := report.NewReporter(stdout)
	errs := make([]error, n)
	collcomm.SpawnComms(loop, network, hosts, func(c *collcomm.Comms) {
		runner := &bench.Runner{
			Config:    cfg,
			Topology:  bench.Topology{ProcessCount: c.Size(), Rank: c.Rank()},
			Exchanger: alltoall.NewGroup(c, alg),
			Clock:     c.Clock(),
			Reporter:  reporter,
		}
		errs[c.Rank()] = runWithSummary(runner, opts, stdout)
	})
	loopErr := loop.Run()

	for rank, err := range errs {
		if err != nil {
			if err == bench.ErrTooFewProcesses {
				return err
			}
			return errors.Wrapf(err, "rank %d", rank)
		}
	}
	return errors.Wrap(loopErr, "simulation")
}
