package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// A Host is a machine attached to a virtual network.
// Hosts are compared by identity.
type Host struct {
	_ int
}

// NewHost creates a new, unique Host.
func NewHost() *Host {
	return &Host{}
}

// Port opens a new Port on the Host.
func (h *Host) Port(loop *Loop) *Port {
	return &Port{Host: h, Inbox: loop.NewMailbox()}
}

// A Port is an endpoint on a Host that messages are sent
// from and delivered to.
type Port struct {
	Host *Host

	// Inbox receives *Message values.
	Inbox *Mailbox
}

// Recv blocks proc until the next message arrives.
func (p *Port) Recv(proc *Proc) *Message {
	return proc.Wait(p.Inbox).Message.(*Message)
}

// A Message is a unit of data in flight between Ports.
type Message struct {
	Source  *Port
	Dest    *Port
	Payload interface{}

	// Size is the number of bytes the message occupies
	// on the wire.
	Size float64
}

// A Network moves messages between Ports.
type Network interface {
	// Send schedules messages for delivery on their
	// destinations' inboxes and returns immediately.
	//
	// Passing all concurrent messages in one call lets a
	// Network plan their transmission once.
	Send(p *Proc, msgs ...*Message)
}

// A RandomNetwork delivers every message after a random
// delay of up to MaxDelay, so messages overtake each
// other.
type RandomNetwork struct {
	MaxDelay time.Duration
}

// Send schedules the messages.
func (r RandomNetwork) Send(p *Proc, msgs ...*Message) {
	for _, msg := range msgs {
		var delay time.Duration
		if r.MaxDelay > 0 {
			delay = time.Duration(rand.Int63n(int64(r.MaxDelay)))
		}
		p.After(msg.Dest.Inbox, msg, delay)
	}
}

// A SwitchedNetwork connects Hosts through a Switch.
//
// Messages in flight at the same time share bandwidth as
// the Switch dictates, so sending a new message can delay
// the ones already on the wire.
type SwitchedNetwork struct {
	lock sync.Mutex

	sw      Switch
	index   map[*Host]int
	latency time.Duration

	plan []*planSegment
}

// NewSwitchedNetwork creates a SwitchedNetwork over hosts.
//
// Every message pays the latency once before its bytes
// start to flow. Latency occupies a link just like data
// does, which overstates congestion somewhat.
func NewSwitchedNetwork(sw Switch, hosts []*Host, latency time.Duration) *SwitchedNetwork {
	index := make(map[*Host]int, len(hosts))
	for i, host := range hosts {
		index[host] = i
	}
	return &SwitchedNetwork{sw: sw, index: index, latency: latency}
}

// Send adds the messages to the network and re-plans
// every delivery.
func (s *SwitchedNetwork) Send(p *Proc, msgs ...*Message) {
	s.lock.Lock()
	defer s.lock.Unlock()

	inFlight := s.suspend(p)
	for _, msg := range msgs {
		inFlight = append(inFlight, &flow{
			msg:              msg,
			remainingLatency: s.latency.Seconds(),
			remainingSize:    msg.Size,
		})
	}
	s.replan(p, inFlight)
}

// suspend cancels the current plan and returns the state
// of every message that has not been delivered yet.
func (s *SwitchedNetwork) suspend(p *Proc) []*flow {
	now := p.Now()
	var inFlight []*flow
	for _, seg := range s.plan {
		if now >= seg.end {
			continue
		}
		if now >= seg.start {
			for _, f := range seg.flows {
				inFlight = append(inFlight, f.advance((now - seg.start).Seconds()))
			}
		}
		for _, timer := range seg.timers {
			p.Stop(timer)
		}
	}
	return inFlight
}

func (s *SwitchedNetwork) assignRates(flows []*flow) {
	n := len(s.index)
	active := NewConnMat(n)
	counts := NewConnMat(n)
	for _, f := range flows {
		src, dst := s.endpoints(f)
		active.Set(src, dst, 1)
		counts.Set(src, dst, counts.Get(src, dst)+1)
	}
	s.sw.Rates(active)
	for _, f := range flows {
		src, dst := s.endpoints(f)
		f.rate = active.Get(src, dst) / counts.Get(src, dst)
	}
}

func (s *SwitchedNetwork) endpoints(f *flow) (int, int) {
	return s.index[f.msg.Source.Host], s.index[f.msg.Dest.Host]
}

// replan splits the future into segments, each ending
// when the next batch of messages arrives.
func (s *SwitchedNetwork) replan(p *Proc, flows []*flow) {
	s.plan = make([]*planSegment, 0, len(flows))
	now := p.Now()
	start := now
	for len(flows) > 0 {
		s.assignRates(flows)

		done, rest, eta := splitSoonest(flows)
		end := start + seconds(eta)

		timers := make([]*Timer, len(done))
		for i, f := range done {
			timers[i] = p.After(f.msg.Dest.Inbox, f.msg, end-now)
		}

		s.plan = append(s.plan, &planSegment{
			start:  start,
			end:    end,
			timers: timers,
			flows:  flows,
		})

		for i, f := range rest {
			rest[i] = f.advance((end - start).Seconds())
		}
		flows = rest
		start = end
	}
}

// seconds converts a float number of seconds to the
// nearest nanosecond.
func seconds(t float64) time.Duration {
	if math.IsInf(t, 0) || math.IsNaN(t) {
		panic(fmt.Sprintf("invalid transfer time: %f", t))
	}
	return time.Duration(math.Round(t * float64(time.Second)))
}

// A flow is the transmission state of one message. Its
// times are in seconds, its sizes in bytes.
type flow struct {
	msg *Message

	remainingLatency float64
	remainingSize    float64
	rate             float64
}

// eta is the time left until the message arrives at the
// current rate.
func (f *flow) eta() float64 {
	return math.Max(0, f.remainingLatency+f.remainingSize/f.rate)
}

// advance returns the flow's state after t more seconds
// at the current rate.
func (f *flow) advance(t float64) *flow {
	res := *f
	if t < res.remainingLatency {
		res.remainingLatency -= t
		return &res
	}
	t -= res.remainingLatency
	res.remainingLatency = 0
	res.remainingSize -= res.rate * t
	return &res
}

// A planSegment is a stretch of time during which every
// flow's rate is constant. It ends with at least one
// delivery.
type planSegment struct {
	start  time.Duration
	end    time.Duration
	timers []*Timer
	flows  []*flow
}

func splitSoonest(flows []*flow) (soonest, rest []*flow, eta float64) {
	etas := make([]float64, len(flows))
	eta = math.Inf(1)
	for i, f := range flows {
		etas[i] = f.eta()
		eta = math.Min(eta, etas[i])
	}
	rest = make([]*flow, 0, len(flows)-1)
	for i, f := range flows {
		if etas[i] == eta {
			soonest = append(soonest, f)
		} else {
			rest = append(rest, f)
		}
	}
	return soonest, rest, eta
}
