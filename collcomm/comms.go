// Package collcomm connects simulated ranks for
// collective operations.
package collcomm

import (
	"github.com/unixpickle/alltoall-bench/simulator"
	"github.com/unixpickle/alltoall-bench/timing"
)

// Comms is one rank's view of a simulated process group.
//
// Messages carry a tag so that a rank can wait for a
// specific message from a specific peer while others are
// still in flight, which lets one Comms be reused for many
// consecutive collectives.
type Comms struct {
	// Proc is the rank's virtual process.
	Proc *simulator.Proc

	// Port is the rank's own port.
	Port *simulator.Port

	// Ports holds every rank's port, indexed by rank.
	Ports []*simulator.Port

	// Network connects the ports.
	Network simulator.Network

	stash []*simulator.Message
}

// A Packet is the payload of a simulated message.
type Packet struct {
	Tag  int
	Data []byte
}

// SpawnComms creates a Comms for every host and runs f for
// each of them in its own Goroutine on the loop.
//
// Rank i is attached to hosts[i].
func SpawnComms(loop *simulator.Loop, network simulator.Network, hosts []*simulator.Host,
	f func(c *Comms)) {
	ports := make([]*simulator.Port, len(hosts))
	for i, host := range hosts {
		ports[i] = host.Port(loop)
	}
	for i := range hosts {
		port := ports[i]
		loop.Spawn(func(p *simulator.Proc) {
			f(&Comms{
				Proc:    p,
				Port:    port,
				Ports:   ports,
				Network: network,
			})
		})
	}
}

// Size returns the number of ranks.
func (c *Comms) Size() int {
	return len(c.Ports)
}

// Rank returns this rank's index in Ports.
func (c *Comms) Rank() int {
	return c.IndexOf(c.Port)
}

// IndexOf returns the rank that owns a port.
func (c *Comms) IndexOf(p *simulator.Port) int {
	for i, port := range c.Ports {
		if port == p {
			return i
		}
	}
	panic("unknown port")
}

// Clock returns a clock that reads the loop's virtual
// time.
func (c *Comms) Clock() timing.Clock {
	return timing.ClockFunc(c.Proc.Now)
}

// Message builds a message carrying data to rank dst.
//
// The data is not copied; it must stay unchanged until the
// receiver has consumed it.
func (c *Comms) Message(dst, tag int, data []byte) *simulator.Message {
	return &simulator.Message{
		Source:  c.Port,
		Dest:    c.Ports[dst],
		Payload: &Packet{Tag: tag, Data: data},
		Size:    float64(len(data)),
	}
}

// Send hands messages to the network without blocking.
func (c *Comms) Send(msgs ...*simulator.Message) {
	c.Network.Send(c.Proc, msgs...)
}

// Recv blocks until the message with the given tag from
// rank src arrives and returns its data.
func (c *Comms) Recv(src, tag int) []byte {
	from := c.Ports[src]
	for i, msg := range c.stash {
		if msg.Source == from && msg.Payload.(*Packet).Tag == tag {
			c.stash = append(c.stash[:i], c.stash[i+1:]...)
			return msg.Payload.(*Packet).Data
		}
	}
	for {
		msg := c.Port.Recv(c.Proc)
		packet := msg.Payload.(*Packet)
		if msg.Source == from && packet.Tag == tag {
			return packet.Data
		}
		c.stash = append(c.stash, msg)
	}
}
