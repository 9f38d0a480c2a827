// Command alltoall-bw measures the bandwidth of all-to-all
// exchanges across a group of processes.
//
// Processes join a TCP group described by the ALLTOALL_*
// environment variables (see alltoall-launch), or run as
// virtual ranks on a simulated network with --sim-procs.
package main

import (
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(execute(os.Args[0], os.Args[1:], os.Stdout, os.Stderr))
}
