// Package alltoall implements all-to-all exchanges between
// simulated ranks.
package alltoall

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/alltoall-bench/collcomm"
)

// An Alltoaller is an algorithm for an all-to-all
// exchange.
//
// Rank i's send buffer is split into Size() segments of
// count bytes; segment j goes to rank j and lands in
// segment i of rank j's receive buffer.
//
// Every rank must call Alltoall with the same count and
// tag, and tags must not be reused while messages of an
// earlier call may still be in flight.
type Alltoaller interface {
	Alltoall(c *collcomm.Comms, send, recv []byte, count, tag int) error
}

// ByName looks up an algorithm by its command-line name.
func ByName(name string) (Alltoaller, error) {
	switch name {
	case "direct":
		return DirectAlltoaller{}, nil
	case "pairwise":
		return PairwiseAlltoaller{}, nil
	}
	return nil, errors.Errorf("unknown all-to-all algorithm %q", name)
}

func checkBuffers(c *collcomm.Comms, send, recv []byte, count int) error {
	if count < 0 {
		return errors.Errorf("negative count %d", count)
	}
	need := count * c.Size()
	if len(send) < need {
		return errors.Errorf("send buffer has %d bytes but %d are needed", len(send), need)
	}
	if len(recv) < need {
		return errors.Errorf("receive buffer has %d bytes but %d are needed", len(recv), need)
	}
	return nil
}

func segment(buf []byte, idx, count int) []byte {
	return buf[idx*count : (idx+1)*count]
}

func receive(c *collcomm.Comms, recv []byte, src, count, tag int) error {
	data := c.Recv(src, tag)
	if len(data) != count {
		return errors.Errorf("rank %d sent %d bytes but %d were expected", src, len(data), count)
	}
	copy(segment(recv, src, count), data)
	return nil
}
