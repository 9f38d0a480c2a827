// Package simulator runs virtual processes on a virtual
// network. A shared virtual clock advances only while
// every process is blocked waiting for a message.
package simulator

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/unixpickle/essentials"
)

// ErrDeadlock is returned by Loop.Run when every process
// is waiting and nothing is scheduled to wake one.
var ErrDeadlock = errors.New("simulator: every process is waiting and no delivery is pending")

// A Mailbox queues messages for whichever process waits
// on it. It belongs to the Loop that created it.
type Mailbox struct {
	loop   *Loop
	queued []interface{}
}

// A Delivery is a message taken out of a Mailbox.
type Delivery struct {
	Message interface{}
	Mailbox *Mailbox
}

// A Timer is a delivery scheduled for a virtual time.
type Timer struct {
	at       time.Duration
	seq      uint64
	index    int
	delivery *Delivery
}

// At returns the virtual time the timer fires at.
func (t *Timer) At() time.Duration {
	return t.at
}

// timerQueue orders timers by deadline, then by the order
// they were scheduled in.
type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() interface{} {
	old := *q
	t := old[len(old)-1]
	old[len(old)-1] = nil
	t.index = -1
	*q = old[:len(old)-1]
	return t
}

// A Proc is a virtual process. Each Proc is driven by a
// single Goroutine and must not be shared.
type Proc struct {
	*Loop

	// Non-nil while the process is blocked in Wait.
	waitingOn []*Mailbox
	wake      chan *Delivery
}

// Wait blocks until one of the mailboxes has a message,
// preferring them in the order given.
func (p *Proc) Wait(boxes ...*Mailbox) *Delivery {
	if len(boxes) == 0 {
		panic("Wait needs at least one mailbox")
	}
	wake := make(chan *Delivery, 1)
	p.update(true, func() {
		if p.waitingOn != nil {
			panic("Proc is used by more than one Goroutine")
		}
		for _, box := range boxes {
			if len(box.queued) > 0 {
				msg := box.queued[0]
				essentials.OrderedDelete(&box.queued, 0)
				wake <- &Delivery{Message: msg, Mailbox: box}
				return
			}
		}
		p.waitingOn = boxes
		p.wake = wake
	})
	return <-wake
}

// After delivers msg to box once delay of virtual time
// has passed.
func (p *Proc) After(box *Mailbox, msg interface{}, delay time.Duration) *Timer {
	if box.loop != p.Loop {
		panic("Mailbox belongs to a different Loop")
	}
	if delay < 0 {
		panic("negative delay")
	}
	t := &Timer{delivery: &Delivery{Message: msg, Mailbox: box}}
	p.update(false, func() {
		t.at = p.now + delay
		t.seq = p.seq
		p.seq++
		heap.Push(&p.queue, t)
	})
	return t
}

// Stop cancels a timer. It reports whether the timer was
// still pending.
func (p *Proc) Stop(t *Timer) bool {
	var stopped bool
	p.update(false, func() {
		if t.index >= 0 && t.index < len(p.queue) && p.queue[t.index] == t {
			heap.Remove(&p.queue, t.index)
			stopped = true
		}
	})
	return stopped
}

// A Loop owns the virtual clock and the processes that
// share it.
type Loop struct {
	lock  sync.Mutex
	now   time.Duration
	seq   uint64
	queue timerQueue
	procs []*Proc

	running bool
	wakeup  chan struct{}
}

// NewLoop creates a Loop at virtual time zero.
func NewLoop() *Loop {
	return &Loop{wakeup: make(chan struct{}, 1)}
}

// NewMailbox creates an empty mailbox on the loop.
func (l *Loop) NewMailbox() *Mailbox {
	return &Mailbox{loop: l}
}

// Spawn starts f as a new process on its own Goroutine.
func (l *Loop) Spawn(f func(p *Proc)) {
	p := &Proc{Loop: l}
	l.lock.Lock()
	l.procs = append(l.procs, p)
	l.lock.Unlock()
	go func() {
		defer l.exit(p)
		f(p)
	}()
}

// Now returns the current virtual time.
func (l *Loop) Now() time.Duration {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.now
}

// Run advances the clock until every process has
// returned, or returns ErrDeadlock if they never will.
func (l *Loop) Run() error {
	l.lock.Lock()
	if l.running {
		l.lock.Unlock()
		panic("Loop is already running")
	}
	l.running = true
	l.lock.Unlock()

	defer func() {
		l.lock.Lock()
		l.running = false
		l.lock.Unlock()
	}()

	for {
		if done, err := l.advance(); done {
			return err
		}
		<-l.wakeup
	}
}

func (l *Loop) exit(p *Proc) {
	l.update(true, func() {
		for i, proc := range l.procs {
			if proc == p {
				essentials.OrderedDelete(&l.procs, i)
				return
			}
		}
		panic("unknown Proc")
	})
}

// update runs f with the loop locked. If waiting may have
// changed, the loop is woken afterwards.
func (l *Loop) update(waiting bool, f func()) {
	l.lock.Lock()
	f()
	l.lock.Unlock()
	if waiting {
		select {
		case l.wakeup <- struct{}{}:
		default:
		}
	}
}

// advance fires timers until one of them wakes a process.
// It reports true once no process can ever run again.
func (l *Loop) advance() (bool, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(l.procs) == 0 {
		return true, nil
	}
	for _, p := range l.procs {
		if p.waitingOn == nil {
			return false, nil
		}
	}
	for l.queue.Len() > 0 {
		t := heap.Pop(&l.queue).(*Timer)
		if t.at > l.now {
			l.now = t.at
		}
		if l.deliver(t.delivery) {
			return false, nil
		}
	}
	return true, ErrDeadlock
}

// deliver wakes the first process waiting on the
// delivery's mailbox, or queues the message if there is
// none.
func (l *Loop) deliver(d *Delivery) bool {
	for _, p := range l.procs {
		for _, box := range p.waitingOn {
			if box == d.Mailbox {
				p.wake <- d
				p.waitingOn = nil
				p.wake = nil
				return true
			}
		}
	}
	d.Mailbox.queued = append(d.Mailbox.queued, d.Message)
	return false
}
