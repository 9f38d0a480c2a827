// Package mpicomm exchanges the benchmark's buffers between
// real processes using github.com/btracey/mpi, a pure-Go
// MPI work-alike that talks TCP.
package mpicomm

import (
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Environment variables consulted by LoadConfig when the
// corresponding flag was not given.
const (
	EnvAddr    = "ALLTOALL_MPI_ADDR"
	EnvAllAddr = "ALLTOALL_MPI_ALLADDR"
	EnvJobID   = "ALLTOALL_JOB_ID"
)

// Config describes one process's place in a group.
type Config struct {
	// Addr is the address this process listens on.
	Addr string

	// AllAddrs lists every process's address. A process's
	// rank is the index of its Addr. An empty list means
	// the process is alone.
	AllAddrs []string

	// JobID is informational; the launcher sets it so the
	// logs of one run can be matched up.
	JobID string
}

// Size returns the number of processes in the group.
func (c Config) Size() int {
	if len(c.AllAddrs) == 0 {
		return 1
	}
	return len(c.AllAddrs)
}

// Rank returns the index of Addr in AllAddrs, or -1 if it
// is not listed.
func (c Config) Rank() int {
	if len(c.AllAddrs) == 0 {
		return 0
	}
	for i, addr := range c.AllAddrs {
		if addr == c.Addr {
			return i
		}
	}
	return -1
}

// Validate checks that the addresses are well formed and
// that this process appears exactly once.
func (c Config) Validate() error {
	if len(c.AllAddrs) == 0 {
		return nil
	}
	seen := map[string]bool{}
	for i, addr := range c.AllAddrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return errors.Wrapf(err, "address %d", i)
		}
		if seen[addr] {
			return errors.Errorf("address %s is listed twice", addr)
		}
		seen[addr] = true
	}
	if c.Rank() < 0 {
		return errors.Errorf("own address %q is not among the %d group addresses", c.Addr, len(c.AllAddrs))
	}
	return nil
}

// Args returns the command-line flags that make a process
// join the group with this config.
func (c Config) Args() []string {
	return []string{
		"--mpi-addr=" + c.Addr,
		"--mpi-alladdr=" + strings.Join(c.AllAddrs, ","),
	}
}

// SplitAddrs parses a comma-separated address list.
func SplitAddrs(s string) []string {
	var res []string
	for _, addr := range strings.Split(s, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			res = append(res, addr)
		}
	}
	return res
}

// LoadConfig builds a Config from flag values, falling
// back to the environment for any that are empty.
//
// Variables are first loaded from the given files, or from
// ./.env if no files are given and it exists. Variables
// already present in the environment take precedence.
func LoadConfig(addr, allAddr string, files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, errors.Wrap(err, "load environment files")
		}
	}
	if addr == "" {
		addr = os.Getenv(EnvAddr)
	}
	if allAddr == "" {
		allAddr = os.Getenv(EnvAllAddr)
	}
	cfg := Config{
		Addr:     strings.TrimSpace(addr),
		AllAddrs: SplitAddrs(allAddr),
		JobID:    os.Getenv(EnvJobID),
	}
	return cfg, cfg.Validate()
}
