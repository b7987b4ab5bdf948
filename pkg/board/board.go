// Package board is the relay firmware: a UART channel and an SPI channel
// sharing one transmit and one receive vector, with receive routing between
// them. Nothing here allocates after construction.
package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/l0/comm"
	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
	"github.com/robotalks/relay.go/pkg/l0/periph/sim"
)

// Options configures New.
type Options struct {
	ID       string
	Capacity int
	Policy   comm.OverflowPolicy
}

// Board owns the two channels and their interrupt wiring.
type Board struct {
	ID         string
	Ctl        *irq.Controller
	Halt       *comm.Halt
	Dispatcher *comm.Dispatcher
	// Clock is set when the board runs simulated peripherals.
	Clock *sim.Clock

	channels  map[string]*comm.Channel
	periphs   map[string]periph.Peripheral
	backends  []fx.Runnable
	notifiers comm.Notifiers
	lock      sync.RWMutex
}

var _ fx.RunnerAdder = (*Board)(nil)

// New builds the board on top of two peripherals raising on ctl. Both
// peripherals must use periph.DefaultVectors.
func New(ctl *irq.Controller, uart, spi periph.Peripheral, opts Options) (*Board, error) {
	b := &Board{
		ID:         opts.ID,
		Ctl:        ctl,
		Halt:       comm.NewHalt(ctl),
		Dispatcher: comm.NewDispatcher(),
		channels:   make(map[string]*comm.Channel),
		periphs:    map[string]periph.Peripheral{ChannelUART: uart, ChannelSPI: spi},
	}
	b.Dispatcher.Notifier = b

	var txSources, rxSources []comm.Source
	for _, name := range []string{ChannelUART, ChannelSPI} {
		ch := comm.NewChannel(name, b.periphs[name], ctl, periph.VectorTX, opts.Capacity, b.Halt)
		ch.Policy = opts.Policy
		ch.Notifier = b
		b.channels[name] = ch
		b.Dispatcher.AddReceiver(name, b.periphs[name])
		txSources = append(txSources, ch.TransmitSource())
		rxSources = append(rxSources, b.Dispatcher.ReceiveSource(name))
	}

	txVec := comm.NewSharedVector("usci-tx", txSources...)
	rxVec := comm.NewSharedVector("usci-rx", rxSources...)
	txVec.OnError, rxVec.OnError = b.vectorError, b.vectorError
	if err := ctl.Register(periph.VectorTX, txVec.Name, irq.PriorityNormal, txVec.Handle); err != nil {
		return nil, err
	}
	if err := ctl.Register(periph.VectorRX, rxVec.Name, irq.PriorityHigh, rxVec.Handle); err != nil {
		return nil, err
	}
	glog.V(1).Infof("board %s: transmit vectors %v", b.ID, b.TransmitVectors())
	return b, nil
}

// TransmitVectors maps each channel to the name of its transmit vector.
func (b *Board) TransmitVectors() map[string]string {
	names := make(map[string]string, len(b.channels))
	for name, ch := range b.channels {
		names[name] = b.Ctl.Name(ch.Vector())
	}
	return names
}

func (b *Board) vectorError(err error) {
	if errors.Is(err, comm.ErrQueueOverflow) || errors.Is(err, comm.ErrHalted) {
		// already reported by the channel
		glog.V(1).Infof("board %s: %v", b.ID, err)
		return
	}
	glog.Errorf("board %s: %v", b.ID, err)
}

// Channel returns the named channel or nil.
func (b *Board) Channel(name string) *comm.Channel {
	return b.channels[name]
}

// Peripheral returns the peripheral behind the named channel or nil.
func (b *Board) Peripheral(name string) periph.Peripheral {
	return b.periphs[name]
}

// ChannelNames returns the sorted channel names.
func (b *Board) ChannelNames() []string {
	names := make([]string, 0, len(b.channels))
	for name := range b.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wire replaces the receive routing.
func (b *Board) Wire(w Wiring) error {
	for from, to := range w {
		if b.channels[from] == nil {
			return fmt.Errorf("%w: %q", comm.ErrNoRoute, from)
		}
		if b.channels[to] == nil {
			return fmt.Errorf("unknown channel %q", to)
		}
	}
	for _, name := range b.ChannelNames() {
		to, ok := w[name]
		var err error
		if ok {
			err = b.Dispatcher.Route(name, to, b.channels[to])
		} else {
			err = b.Dispatcher.Route(name, "", nil)
		}
		if err != nil {
			return err
		}
	}
	glog.Infof("board %s: wiring %s", b.ID, w)
	return nil
}

// Wiring returns the current routing.
func (b *Board) Wiring() Wiring {
	w := make(Wiring)
	for from, to := range b.Dispatcher.Routes() {
		if to != "" {
			w[from] = to
		}
	}
	return w
}

// Stats returns per-channel counters.
func (b *Board) Stats() map[string]comm.Stats {
	stats := make(map[string]comm.Stats, len(b.channels))
	for name, ch := range b.channels {
		stats[name] = ch.Stats()
	}
	return stats
}

// Subscribe adds a notifier receiving events of all channels.
func (b *Board) Subscribe(n comm.Notifier) {
	b.lock.Lock()
	b.notifiers = append(b.notifiers, n)
	b.lock.Unlock()
}

// Notify implements comm.Notifier.
func (b *Board) Notify(ev comm.Event) {
	b.lock.RLock()
	notifiers := b.notifiers
	b.lock.RUnlock()
	notifiers.Notify(ev)
}

// AddBackend adds runnables driving the peripherals.
func (b *Board) AddBackend(runners ...fx.Runnable) {
	b.backends = append(b.backends, runners...)
}

// AddToRunner implements RunnerAdder.
func (b *Board) AddToRunner(r *fx.Runner) {
	r.Go(b.backends...)
	r.Go(fx.NamedRun("board", b))
}

// Run implements Runnable. It returns the halt cause when the system halts.
func (b *Board) Run(ctx context.Context) error {
	glog.Infof("board %s running", b.ID)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.Halt.Done():
		return b.Halt.Err()
	}
}
