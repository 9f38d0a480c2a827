package alltoall

import "github.com/unixpickle/alltoall-bench/collcomm"

// A Group is a simulated rank that exposes a blocking
// all-to-all primitive.
type Group struct {
	Comms     *collcomm.Comms
	Algorithm Alltoaller

	calls int
}

// NewGroup creates a Group around a rank's Comms.
func NewGroup(c *collcomm.Comms, algorithm Alltoaller) *Group {
	return &Group{Comms: c, Algorithm: algorithm}
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	return g.Comms.Size()
}

// Rank returns this rank's index.
func (g *Group) Rank() int {
	return g.Comms.Rank()
}

// Alltoall exchanges count bytes with every rank.
//
// Each call uses a fresh tag. Since every rank performs
// the same sequence of calls, the tags agree.
func (g *Group) Alltoall(send, recv []byte, count int) error {
	g.calls++
	return g.Algorithm.Alltoall(g.Comms, send, recv, count, g.calls)
}
