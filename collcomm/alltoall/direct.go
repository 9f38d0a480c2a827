package alltoall

import (
	"github.com/unixpickle/alltoall-bench/collcomm"
	"github.com/unixpickle/alltoall-bench/simulator"
)

// A DirectAlltoaller posts every outgoing segment at once
// and then collects the incoming ones.
type DirectAlltoaller struct{}

// Alltoall performs the exchange.
func (d DirectAlltoaller) Alltoall(c *collcomm.Comms, send, recv []byte, count, tag int) error {
	if err := checkBuffers(c, send, recv, count); err != nil {
		return err
	}
	rank := c.Rank()

	msgs := make([]*simulator.Message, 0, c.Size()-1)
	for dst := 0; dst < c.Size(); dst++ {
		if dst != rank {
			msgs = append(msgs, c.Message(dst, tag, segment(send, dst, count)))
		}
	}
	c.Send(msgs...)

	copy(segment(recv, rank, count), segment(send, rank, count))

	for src := 0; src < c.Size(); src++ {
		if src == rank {
			continue
		}
		if err := receive(c, recv, src, count, tag); err != nil {
			return err
		}
	}
	return nil
}
