package bench

import "bytes"

// Fill patterns for fresh buffers. Their values do not
// matter; only their volume does.
const (
	SendFill byte = 23
	RecvFill byte = 42
)

// Buffers are the send and receive regions of one process.
//
// Both are allocated once and reused by every exchange.
type Buffers struct {
	Send []byte
	Recv []byte
}

// NewBuffers allocates and fills buffers for a run.
func NewBuffers(cfg Config, topo Topology) (*Buffers, error) {
	size, err := cfg.BufferSize(topo.ProcessCount)
	if err != nil {
		return nil, err
	}
	return &Buffers{
		Send: bytes.Repeat([]byte{SendFill}, size),
		Recv: bytes.Repeat([]byte{RecvFill}, size),
	}, nil
}
