package mpicomm

import (
	"flag"
	"strings"
	"sync"

	"github.com/btracey/mpi"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// A Transport moves tagged point-to-point messages between
// the ranks of a group. A message sent with a tag is only
// received by a Receive for the same source and tag.
//
// Send and Receive may be called concurrently with each
// other.
type Transport interface {
	Rank() int
	Size() int
	Send(data []byte, dest, tag int) error
	Receive(data *[]byte, src, tag int) error
}

// mpiTransport sends through the process-wide MPI network.
type mpiTransport struct{}

func (mpiTransport) Rank() int { return mpi.Rank() }
func (mpiTransport) Size() int { return mpi.Size() }

func (mpiTransport) Send(data []byte, dest, tag int) error {
	return mpi.Send(data, dest, tag)
}

func (mpiTransport) Receive(data *[]byte, src, tag int) error {
	return mpi.Receive(data, src, tag)
}

// aloneTransport is the Transport of a group of one.
type aloneTransport struct{}

func (aloneTransport) Rank() int { return 0 }
func (aloneTransport) Size() int { return 1 }

func (aloneTransport) Send([]byte, int, int) error {
	return errors.New("no peers to send to")
}

func (aloneTransport) Receive(*[]byte, int, int) error {
	return errors.New("no peers to receive from")
}

// A Group runs all-to-all exchanges over a Transport.
//
// A Group must not be used by more than one Goroutine at
// a time.
type Group struct {
	transport Transport
	exchanges int

	finalize  func()
	closeOnce sync.Once
}

// NewGroup creates a Group on top of t.
func NewGroup(t Transport) *Group {
	return &Group{transport: t}
}

// Join initializes MPI for the group described by cfg. It
// blocks until every peer is reachable.
//
// A config without peers yields a group of one without
// touching the network.
func Join(cfg Config) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Size() == 1 {
		return NewGroup(aloneTransport{}), nil
	}

	if err := flag.Set("mpi-addr", cfg.Addr); err != nil {
		return nil, errors.Wrap(err, "configure MPI address")
	}
	if err := flag.Set("mpi-alladdr", strings.Join(cfg.AllAddrs, ",")); err != nil {
		return nil, errors.Wrap(err, "configure MPI peers")
	}
	if err := mpi.Init(); err != nil {
		return nil, errors.Wrapf(err, "join group as %s", cfg.Addr)
	}
	g := NewGroup(mpiTransport{})
	g.finalize = func() { mpi.Finalize() }

	if g.Rank() != cfg.Rank() || g.Size() != cfg.Size() {
		g.Close()
		return nil, errors.Errorf("MPI placed this process at rank %d of %d, expected %d of %d",
			g.Rank(), g.Size(), cfg.Rank(), cfg.Size())
	}

	grip.Info(message.Fields{
		"message": "joined group",
		"rank":    g.Rank(),
		"size":    g.Size(),
		"addr":    cfg.Addr,
		"job":     cfg.JobID,
	})
	return g, nil
}

// Size returns the number of processes in the group.
func (g *Group) Size() int {
	return g.transport.Size()
}

// Rank returns this process's rank.
func (g *Group) Rank() int {
	return g.transport.Rank()
}

// Alltoall exchanges count bytes with every process.
//
// The exchange runs Size()-1 steps. In step k this process
// sends to rank+k and receives from rank-k, both at once.
// Each exchange uses its own tag, so a peer that has moved
// on to the next exchange cannot be mistaken for this one.
func (g *Group) Alltoall(send, recv []byte, count int) error {
	size, rank := g.Size(), g.Rank()
	if count < 0 {
		return errors.Errorf("negative count %d", count)
	}
	if need := count * size; len(send) < need || len(recv) < need {
		return errors.Errorf("buffers of %d and %d bytes are too small for %d x %d bytes",
			len(send), len(recv), size, count)
	}

	g.exchanges++
	tag := g.exchanges
	copy(segment(recv, rank, count), segment(send, rank, count))

	for k := 1; k < size; k++ {
		dst := (rank + k) % size
		src := (rank - k + size) % size

		var eg errgroup.Group
		eg.Go(func() error {
			return errors.Wrapf(g.transport.Send(segment(send, dst, count), dst, tag),
				"send to rank %d", dst)
		})
		eg.Go(func() error {
			return g.receive(recv, src, count, tag)
		})
		if err := eg.Wait(); err != nil {
			return errors.Wrapf(err, "exchange %d step %d", tag, k)
		}
	}
	return nil
}

// receive reads rank src's segment straight into recv.
func (g *Group) receive(recv []byte, src, count, tag int) error {
	dst := segment(recv, src, count)
	got := dst
	if err := g.transport.Receive(&got, src, tag); err != nil {
		return errors.Wrapf(err, "receive from rank %d", src)
	}
	if len(got) != count {
		return errors.Errorf("rank %d sent %d bytes, expected %d", src, len(got), count)
	}
	copy(dst, got)
	return nil
}

// Close leaves the group. Later calls do nothing.
func (g *Group) Close() {
	g.closeOnce.Do(func() {
		if g.finalize != nil {
			g.finalize()
		}
	})
}

// segment returns the idx-th count-byte slice of buf,
// capped so that appending to it cannot spill into the
// next segment.
func segment(buf []byte, idx, count int) []byte {
	return buf[idx*count : (idx+1)*count : (idx+1)*count]
}
