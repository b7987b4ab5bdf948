package comm

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
)

// Source is one channel's interrupt source on a (possibly shared) vector.
type Source interface {
	// Pending reports the source's own flag.
	Pending() bool
	// Service handles one event of the source.
	Service() error
}

// SourceFuncs builds a Source from funcs.
type SourceFuncs struct {
	SourceName string
	PendingFn  func() bool
	ServiceFn  func() error
}

// Pending implements Source.
func (s *SourceFuncs) Pending() bool { return s.PendingFn() }

// Service implements Source.
func (s *SourceFuncs) Service() error { return s.ServiceFn() }

// Name implements fx.Named.
func (s *SourceFuncs) Name() string { return s.SourceName }

// SharedVector multiplexes several sources on one interrupt vector. Each
// invocation checks every source's flag independently, so one source can't
// starve or clobber another.
type SharedVector struct {
	Name    string
	Sources []Source
	// OnError receives errors from Handle; nil logs them.
	OnError func(error)
}

// NewSharedVector creates a SharedVector.
func NewSharedVector(name string, sources ...Source) *SharedVector {
	return &SharedVector{Name: name, Sources: sources}
}

// Service services every pending source once and aggregates errors.
func (s *SharedVector) Service() error {
	var errs fx.AggregatedError
	for _, src := range s.Sources {
		if src.Pending() {
			errs.Add(src.Service())
		}
	}
	return errs.Aggregate()
}

// Handle implements irq.Handler.
func (s *SharedVector) Handle(irq.Vector) {
	if err := s.Service(); err != nil {
		if s.OnError != nil {
			s.OnError(err)
		} else {
			glog.Errorf("%s: %v", s.Name, err)
		}
	}
}

type receiver struct {
	name string
	rx   periph.Receiver
	dst  Sink
	dstN string
}

// Dispatcher routes received bytes to a transmit Sink: the same channel for
// echo, the other channel for relay.
type Dispatcher struct {
	Notifier Notifier

	receivers map[string]*receiver
	unrouted  uint64
	lock      sync.RWMutex
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{receivers: make(map[string]*receiver)}
}

// AddReceiver registers a receive path by name.
func (d *Dispatcher) AddReceiver(name string, rx periph.Receiver) *Dispatcher {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.receivers[name] = &receiver{name: name, rx: rx}
	return d
}

// Route sends bytes received on from to dst. A nil dst removes the route.
func (d *Dispatcher) Route(from, toName string, dst Sink) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	r := d.receivers[from]
	if r == nil {
		return fmt.Errorf("%w: %q", ErrNoRoute, from)
	}
	r.dst, r.dstN = dst, toName
	glog.V(1).Infof("route %s -> %s", from, toName)
	return nil
}

// Routes returns the current wiring as receiver -> destination name.
func (d *Dispatcher) Routes() map[string]string {
	d.lock.RLock()
	defer d.lock.RUnlock()
	routes := make(map[string]string, len(d.receivers))
	for name, r := range d.receivers {
		routes[name] = r.dstN
	}
	return routes
}

// Unrouted returns how many received bytes had no destination.
func (d *Dispatcher) Unrouted() uint64 {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.unrouted
}

// ReceivePending reports whether the named receiver has a byte.
func (d *Dispatcher) ReceivePending(name string) bool {
	d.lock.RLock()
	r := d.receivers[name]
	d.lock.RUnlock()
	return r != nil && r.rx.ReceivePending()
}

// ServiceReceive is the receive handler body for one receiver: read the
// arrived byte, which clears the hardware condition, and hand it to the
// routed Sink. Unrouted bytes are dropped.
func (d *Dispatcher) ServiceReceive(name string) error {
	d.lock.RLock()
	r := d.receivers[name]
	var dst Sink
	if r != nil {
		dst = r.dst
	}
	d.lock.RUnlock()
	if r == nil || !r.rx.ReceivePending() {
		return nil
	}
	b := r.rx.ReadReceiveRegister()
	if glog.V(2) {
		glog.Infof("%s: RX 0x%02x", name, b)
	}
	if dst == nil {
		d.lock.Lock()
		d.unrouted++
		d.lock.Unlock()
		if n := d.Notifier; n != nil {
			n.Notify(Event{Channel: name, Kind: EventUnrouted, Byte: b})
		}
		return nil
	}
	return dst.Transmit(b)
}

// ReceiveSource returns the named receiver as a Source of a shared RX vector.
func (d *Dispatcher) ReceiveSource(name string) Source {
	return &SourceFuncs{
		SourceName: name + ".rx",
		PendingFn:  func() bool { return d.ReceivePending(name) },
		ServiceFn:  func() error { return d.ServiceReceive(name) },
	}
}
