package alltoall

import "github.com/unixpickle/alltoall-bench/collcomm"

// A PairwiseAlltoaller runs Size()-1 rounds. In round k,
// every rank sends to the rank k places after it and
// receives from the rank k places before it, so each host
// has exactly one outgoing and one incoming transfer at a
// time.
type PairwiseAlltoaller struct{}

// Alltoall performs the exchange.
func (p PairwiseAlltoaller) Alltoall(c *collcomm.Comms, send, recv []byte, count, tag int) error {
	if err := checkBuffers(c, send, recv, count); err != nil {
		return err
	}
	rank, size := c.Rank(), c.Size()

	copy(segment(recv, rank, count), segment(send, rank, count))

	for k := 1; k < size; k++ {
		dst := (rank + k) % size
		src := (rank - k + size) % size
		c.Send(c.Message(dst, tag, segment(send, dst, count)))
		if err := receive(c, recv, src, count, tag); err != nil {
			return err
		}
	}
	return nil
}
