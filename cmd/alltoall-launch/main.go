// Command alltoall-launch starts a group of local processes
// and tells each of them its own and its peers' MPI
// addresses, much like mpirun does for MPI programs.
//
//	alltoall-launch -n 4 -- alltoall-bw --iter 100 --size 1000000
package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"github.com/unixpickle/alltoall-bench/mpicomm"
	"golang.org/x/sync/errgroup"
)

// Launch describes a group of processes to start.
type Launch struct {
	NumProcs int
	Host     string
	BasePort int
	Args     []string

	Stdout io.Writer
	Stderr io.Writer

	start func(rank int, cmd *exec.Cmd) error
}

// Peers returns the listen address of every rank.
func (l *Launch) Peers() []string {
	peers := make([]string, l.NumProcs)
	for i := range peers {
		peers[i] = net.JoinHostPort(l.Host, strconv.Itoa(l.BasePort+i))
	}
	return peers
}

// Command returns the command line of a rank: the user's
// command followed by the flags that place it in the
// group.
func (l *Launch) Command(rank int) []string {
	peers := l.Peers()
	cfg := mpicomm.Config{Addr: peers[rank], AllAddrs: peers}
	return append(append([]string{}, l.Args...), cfg.Args()...)
}

// Run starts every rank and waits for all of them.
//
// If one rank fails, or cannot be started, the others are
// killed and that failure is returned.
func (l *Launch) Run(ctx context.Context) error {
	if l.NumProcs < 1 {
		return errors.Errorf("need at least one process, got %d", l.NumProcs)
	}
	if len(l.Args) == 0 {
		return errors.New("no command given")
	}
	jobID := uuid.NewString()

	grip.Info(message.Fields{
		"message":   "launching group",
		"job":       jobID,
		"processes": l.NumProcs,
		"command":   l.Args,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var startErr error
	eg, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < l.NumProcs; rank++ {
		args := l.Command(rank)
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Env = append(os.Environ(), mpicomm.EnvJobID+"="+jobID)
		cmd.Stdout = l.Stdout
		cmd.Stderr = l.Stderr
		cmd.WaitDelay = time.Second
		if err := l.startRank(rank, cmd); err != nil {
			startErr = errors.Wrapf(err, "start rank %d", rank)
			cancel()
			break
		}
		rank := rank
		eg.Go(func() error {
			return errors.Wrapf(cmd.Wait(), "rank %d", rank)
		})
	}
	waitErr := eg.Wait()
	if startErr != nil {
		return startErr
	}
	return waitErr
}

func (l *Launch) startRank(rank int, cmd *exec.Cmd) error {
	if l.start != nil {
		return l.start(rank, cmd)
	}
	return cmd.Start()
}

// exitCode picks the status to exit with after err.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := errors.Cause(err).(*exec.ExitError); ok && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}

func newRootCommand(launch *Launch) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alltoall-launch [flags] -- command [args...]",
		Short: "Start a local group of processes for alltoall-bw.",
		Args:  cobra.MinimumNArgs(1),

		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			launch.Args = args
			return launch.Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&launch.NumProcs, "np", "n", 2, "number of processes")
	flags.StringVar(&launch.Host, "host", "127.0.0.1", "address the processes listen on")
	flags.IntVar(&launch.BasePort, "base-port", 47100, "port of rank 0; rank i uses base-port+i")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	launch := &Launch{Stdout: os.Stdout, Stderr: os.Stderr}
	err := newRootCommand(launch).ExecuteContext(ctx)
	atexit.Exit(exitCode(err))
}
