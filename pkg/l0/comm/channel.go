package comm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
	"github.com/robotalks/relay.go/pkg/l0/queue"
)

// Sink accepts bytes for transmission.
type Sink interface {
	Transmit(byte) error
}

// Stats are counters since the channel was created.
type Stats struct {
	Queued  uint64 // bytes accepted by Transmit
	Sent    uint64 // bytes written to the transmit register
	Dropped uint64 // bytes lost to overflow
	Arms    uint64
	Disarms uint64
}

// Channel pairs one transmit queue with one peripheral transmit path and
// its interrupt-enable bit.
type Channel struct {
	Name     string
	Policy   OverflowPolicy
	Notifier Notifier

	tx     periph.Transmitter
	ctl    *irq.Controller
	vector irq.Vector
	halt   *Halt

	queue *queue.Queue
	armed bool
	stats Stats
	lock  sync.Mutex
}

// Backoff bounds for TransmitContext.
const (
	MinRetryInterval = 100 * time.Microsecond
	MaxRetryInterval = 50 * time.Millisecond
)

// policyRetry leaves a full queue and the byte untouched for TransmitContext.
const policyRetry OverflowPolicy = -1

var errQueueFull = errors.New("queue full")

// NewChannel creates a Channel. The channel's transmit-complete interrupt is
// raised on vector, which is masked during every queue update. halt may be
// shared between channels; nil creates a private one.
func NewChannel(name string, tx periph.Transmitter, ctl *irq.Controller, vector irq.Vector, capacity int, halt *Halt) *Channel {
	if halt == nil {
		halt = NewHalt(ctl)
	}
	return &Channel{
		Name:   name,
		tx:     tx,
		ctl:    ctl,
		vector: vector,
		halt:   halt,
		queue:  queue.New(capacity),
	}
}

// Halt returns the fail-stop latch of the channel.
func (c *Channel) Halt() *Halt {
	return c.halt
}

// Vector returns the transmit-complete vector.
func (c *Channel) Vector() irq.Vector {
	return c.vector
}

// enter starts the critical section: TX vector masked, then lock held.
// The returned func releases them in reverse order.
func (c *Channel) enter() (leave func()) {
	restore := c.ctl.Mask(c.vector)
	c.lock.Lock()
	return func() {
		c.lock.Unlock()
		restore()
	}
}

// Transmit hands one byte to the channel. It never blocks. When the queue is
// full the channel's Policy applies.
func (c *Channel) Transmit(b byte) error {
	return c.transmit(b, c.Policy)
}

// TransmitContext retries with exponential backoff while the queue is full
// until the byte is accepted or ctx is done. A full queue is never fatal
// here and a rejected attempt is neither counted nor reported as a drop.
func (c *Channel) TransmitContext(ctx context.Context, b byte) error {
	interval := MinRetryInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		err := c.transmit(b, policyRetry)
		if err != errQueueFull {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.halt.Done():
			return ErrHalted
		case <-timer.C:
		}
		if interval *= 2; interval > MaxRetryInterval {
			interval = MaxRetryInterval
		}
		timer.Reset(interval)
	}
}

// Write implements io.Writer. It stops at the first rejected byte.
func (c *Channel) Write(p []byte) (int, error) {
	for n, b := range p {
		if err := c.Transmit(b); err != nil {
			return n, err
		}
	}
	return len(p), nil
}

func (c *Channel) transmit(b byte, policy OverflowPolicy) (err error) {
	var (
		events []Event
		arm    bool
	)
	leave := c.enter()
	func() {
		defer leave()
		if c.halt.Halted() {
			err = ErrHalted
			return
		}
		if !c.queue.Push(b) {
			switch policy {
			case policyRetry:
				err = errQueueFull
			case PolicyDropOldest:
				old, _ := c.queue.Pop()
				c.queue.Push(b)
				c.stats.Dropped++
				c.stats.Queued++
				events = append(events, Event{Channel: c.Name, Kind: EventDropped, Byte: old, Size: c.queue.Size()})
			case PolicyReport:
				c.stats.Dropped++
				err = &OverflowError{Channel: c.Name, Byte: b, Size: c.queue.Size()}
				events = append(events, Event{Channel: c.Name, Kind: EventOverflow, Byte: b, Size: c.queue.Size()})
			default:
				c.stats.Dropped++
				err = &OverflowError{Channel: c.Name, Byte: b, Size: c.queue.Size()}
				// Stop all interrupt delivery before the TX mask is lifted.
				c.halt.Trip(err)
				events = append(events,
					Event{Channel: c.Name, Kind: EventOverflow, Byte: b, Size: c.queue.Size()},
					Event{Channel: c.Name, Kind: EventHalted, Byte: b, Size: c.queue.Size()})
			}
			return
		}
		c.stats.Queued++
		// Size 1 with armed set means the previous last byte is still
		// shifting out; the interrupt is already enabled.
		if c.queue.Size() == 1 && !c.armed {
			arm, c.armed = true, true
			c.stats.Arms++
			events = append(events, Event{Channel: c.Name, Kind: EventArmed, Byte: b, Size: 1})
		}
		// The arm itself happens outside the lock and inside the TX mask: the
		// peripheral may raise immediately, and that must only be delivered
		// once the mask is restored.
		if arm {
			c.lock.Unlock()
			c.tx.ArmTransmitInterrupt()
			c.lock.Lock()
		}
	}()

	if glog.V(2) {
		glog.Infof("%s: TX queue 0x%02x err=%v", c.Name, b, err)
	}
	c.notify(events)
	return err
}

// ServiceTransmit is the transmit-complete handler body. It writes the next
// queued byte to the peripheral, or disarms the interrupt when the queue is
// empty. It returns true if a byte was written.
func (c *Channel) ServiceTransmit() bool {
	c.lock.Lock()
	b, ok := c.queue.Pop()
	var events []Event
	if ok {
		c.stats.Sent++
	} else if c.armed {
		c.armed = false
		c.stats.Disarms++
		c.tx.DisarmTransmitInterrupt()
		events = append(events, Event{Channel: c.Name, Kind: EventDisarmed})
	} else {
		c.tx.DisarmTransmitInterrupt()
	}
	c.lock.Unlock()

	if ok {
		if glog.V(2) {
			glog.Infof("%s: TX write 0x%02x", c.Name, b)
		}
		c.tx.WriteTransmitRegister(b)
	}
	c.notify(events)
	return ok
}

// TransmitPending reports the channel's flag on a shared TX vector: the
// peripheral is ready and its transmit interrupt is armed.
func (c *Channel) TransmitPending() bool {
	return c.tx.TransmitArmed() && c.tx.TransmitReady()
}

// TransmitSource returns the channel as a Source of a shared TX vector.
func (c *Channel) TransmitSource() Source {
	return &SourceFuncs{
		SourceName: c.Name + ".tx",
		PendingFn:  c.TransmitPending,
		ServiceFn: func() error {
			c.ServiceTransmit()
			return nil
		},
	}
}

// Size returns the number of queued bytes.
func (c *Channel) Size() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.queue.Size()
}

// Cap returns the queue capacity.
func (c *Channel) Cap() int {
	return c.queue.Cap()
}

// State returns the transmit-side state.
func (c *Channel) State() State {
	if c.halt.Halted() {
		return StateHalted
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.armed {
		return StateArmed
	}
	return StateIdle
}

// Stats returns a copy of the counters.
func (c *Channel) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

func (c *Channel) notify(events []Event) {
	for _, ev := range events {
		switch ev.Kind {
		case EventOverflow, EventDropped:
			glog.Warningf("%s: %s 0x%02x (queue %d/%d)", c.Name, ev.Kind, ev.Byte, ev.Size, c.queue.Cap())
		default:
			glog.V(2).Infof("%s: %s", c.Name, ev.Kind)
		}
		if n := c.Notifier; n != nil {
			n.Notify(ev)
		}
	}
}
