package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/grip/send"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"github.com/unixpickle/alltoall-bench/bench"
	"github.com/unixpickle/alltoall-bench/mpicomm"
	"github.com/unixpickle/alltoall-bench/report"
	"github.com/unixpickle/alltoall-bench/timing"
)

// errUsage asks for the usage text and a clean exit.
var errUsage = errors.New("usage requested")

// configError is an out-of-range setting. It is reported
// with the usage text and a clean exit.
type configError struct {
	error
}

type options struct {
	iter    string
	perIter string
	size    string

	summary  bool
	logLevel string

	mpiAddr    string
	mpiAllAddr string

	simProcs     int
	simRate      float64
	simLatency   float64
	simAlgorithm string
}

// execute runs the command line and returns the process
// exit status.
func execute(program string, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout, program)
		return 0
	}

	// Replaced by run once --log-level is known.
	if err := loggingSetup(program, "info", stderr); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	opts := &options{}
	cmd := newRootCommand(opts, stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	switch cause := errors.Cause(err); {
	case err == nil:
		return 0
	case cause == errUsage:
		printUsage(stdout, program)
		return 0
	case cause == bench.ErrTooFewProcesses:
		return 0
	}
	if cfgErr, ok := errors.Cause(err).(configError); ok {
		fmt.Fprintln(stdout, cfgErr.Error())
		printUsage(stdout, program)
		return 0
	}
	grip.Critical(message.WrapError(err, message.Fields{
		"message": "benchmark aborted",
	}))
	return 1
}

func newRootCommand(opts *options, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alltoall-bw",
		Short: "Measure all-to-all exchange bandwidth across a process group.",
		Args:  cobra.ArbitraryArgs,

		SilenceErrors:      true,
		SilenceUsage:       true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},

		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, stdout, stderr)
		},
	}
	cmd.SetFlagErrorFunc(func(*cobra.Command, error) error {
		return errUsage
	})
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		printUsage(c.OutOrStdout(), c.Name())
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.iter, "iter", strconv.Itoa(bench.DefaultIterations), "number of iterations")
	flags.StringVar(&opts.perIter, "per-iter", strconv.Itoa(bench.DefaultExchangesPerIteration),
		"communications per iteration")
	flags.StringVar(&opts.size, "size", strconv.Itoa(bench.DefaultMessageSize), "message size in bytes")
	flags.BoolVar(&opts.summary, "summary", false, "print a bandwidth summary after the run")
	flags.StringVar(&opts.logLevel, "log-level", "info", "diagnostic log level")
	flags.StringVar(&opts.mpiAddr, "mpi-addr", "", "address this process listens on")
	flags.StringVar(&opts.mpiAllAddr, "mpi-alladdr", "", "comma-separated addresses of every process")
	flags.IntVar(&opts.simProcs, "sim-procs", 0, "simulate this many processes in-process")
	flags.Float64Var(&opts.simRate, "sim-rate", 12.5e9, "simulated NIC rate in bytes per second")
	flags.Float64Var(&opts.simLatency, "sim-latency", 1e-6, "simulated message latency in seconds")
	flags.StringVar(&opts.simAlgorithm, "sim-algorithm", "pairwise", "simulated all-to-all algorithm")
	return cmd
}

func printUsage(w io.Writer, program string) {
	fmt.Fprintf(w, "%s supports the following flags:\n", program)
	fmt.Fprintf(w, "\t --iter \t Number of iterations. \t\t\t Default: %d\n", bench.DefaultIterations)
	fmt.Fprintf(w, "\t --per-iter \t Communications per iteration. \t\t\t Default: %d\n",
		bench.DefaultExchangesPerIteration)
	fmt.Fprintf(w, "\t --size \t Message size in bytes. \t\t\t Default: %d\n", bench.DefaultMessageSize)
	fmt.Fprintln(w, "Additional flags:")
	fmt.Fprintln(w, "\t --summary \t Print min/mean/max bandwidth after the run.")
	fmt.Fprintln(w, "\t --log-level \t Diagnostic log level on stderr. \t\t\t Default: info")
	fmt.Fprintln(w, "\t --mpi-addr \t Address this process listens on.")
	fmt.Fprintln(w, "\t --mpi-alladdr \t Comma-separated addresses of every process, in rank order.")
	fmt.Fprintln(w, "\t --sim-procs \t Simulate this many processes instead of joining a TCP group.")
	fmt.Fprintln(w, "\t --sim-rate \t Simulated NIC rate in bytes per second. \t Default: 1.25e+10")
	fmt.Fprintln(w, "\t --sim-latency \t Simulated message latency in seconds. \t Default: 1e-06")
	fmt.Fprintln(w, "\t --sim-algorithm  pairwise or direct. \t\t\t\t Default: pairwise")
}

// parseConfig converts the count flags. A value that is
// not a number is an error; a number out of range is a
// configError.
func parseConfig(opts *options) (bench.Config, error) {
	var cfg bench.Config
	fields := []struct {
		name  string
		value string
		dst   *int
	}{
		{"--iter", opts.iter, &cfg.Iterations},
		{"--per-iter", opts.perIter, &cfg.ExchangesPerIteration},
		{"--size", opts.size, &cfg.MessageSize},
	}
	for _, f := range fields {
		n, err := strconv.Atoi(f.value)
		if err != nil {
			return cfg, errors.Wrapf(err, "parse %s", f.name)
		}
		*f.dst = n
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configError{err}
	}
	return cfg, nil
}

func loggingSetup(name, l string, w io.Writer) error {
	if err := grip.SetSender(send.WrapWriterLogger(w)); err != nil {
		return err
	}
	grip.SetName(name)

	sender := grip.GetSender()
	info := sender.Level()
	info.Threshold = level.FromString(l)

	return sender.SetLevel(info)
}

func run(opts *options, stdout, stderr io.Writer) error {
	cfg, err := parseConfig(opts)
	if err != nil {
		return err
	}
	if err := loggingSetup("alltoall-bw", opts.logLevel, stderr); err != nil {
		return errors.Wrap(err, "set up logging")
	}

	if opts.simProcs > 0 {
		return runSimulated(cfg, opts, stdout)
	}
	return runMPI(cfg, opts, stdout)
}

func runMPI(cfg bench.Config, opts *options, stdout io.Writer) error {
	groupCfg, err := mpicomm.LoadConfig(opts.mpiAddr, opts.mpiAllAddr)
	if err != nil {
		return err
	}
	group, err := mpicomm.Join(groupCfg)
	if err != nil {
		return err
	}
	atexit.Register(group.Close)

	topo := bench.Topology{ProcessCount: group.Size(), Rank: group.Rank()}
	runner := &bench.Runner{
		Config:    cfg,
		Topology:  topo,
		Exchanger: group,
		Clock:     timing.WallClock(),
		Reporter:  report.NewReporter(stdout),
	}
	return runWithSummary(runner, opts, stdout)
}

func runWithSummary(runner *bench.Runner, opts *options, stdout io.Writer) error {
	if opts.summary {
		runner.Summary = &report.Summary{}
	}
	if err := runner.Run(); err != nil {
		return err
	}
	if runner.Summary != nil {
		runner.Summary.Print(runner.Topology.IsCoordinator(), stdout)
	}
	return nil
}
