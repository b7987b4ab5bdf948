package board

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/l0/periph"
)

// DefaultPollInterval is how often busy-wait loops look at the flags.
const DefaultPollInterval = 50 * time.Microsecond

type pollRoute struct {
	name string
	rx   periph.Receiver
	tx   periph.Transmitter
}

// Poller is the baseline firmware without queues or interrupts. One loop
// busy-waits for a received byte, then busy-waits until the destination can
// take it, writes it and repeats. A byte arriving while the loop waits on
// the transmitter overruns the receiver.
type Poller struct {
	Interval time.Duration
	// Delay is inserted after each written byte.
	Delay time.Duration

	routes   []pollRoute
	backends []fx.Runnable
}

var _ fx.RunnerAdder = (*Poller)(nil)

// NewPoller creates a Poller copying bytes along the wiring.
func NewPoller(periphs map[string]periph.Peripheral, w Wiring) (*Poller, error) {
	p := &Poller{Interval: DefaultPollInterval}
	for _, from := range sortedKeys(periphs) {
		to, ok := w[from]
		if !ok {
			continue
		}
		dst := periphs[to]
		if dst == nil {
			return nil, fmt.Errorf("unknown channel %q", to)
		}
		p.routes = append(p.routes, pollRoute{name: from + "->" + to, rx: periphs[from], tx: dst})
	}
	for from := range w {
		if periphs[from] == nil {
			return nil, fmt.Errorf("unknown channel %q", from)
		}
	}
	return p, nil
}

// PollingEcho echoes every byte received by p back out of p.
func PollingEcho(ctx context.Context, p periph.Peripheral, delay time.Duration) error {
	poller, err := NewPoller(map[string]periph.Peripheral{p.Name(): p}, Wiring{p.Name(): p.Name()})
	if err != nil {
		return err
	}
	poller.Delay = delay
	return poller.Run(ctx)
}

// AddBackend adds runnables driving the peripherals.
func (p *Poller) AddBackend(runners ...fx.Runnable) {
	p.backends = append(p.backends, runners...)
}

// AddToRunner implements RunnerAdder.
func (p *Poller) AddToRunner(r *fx.Runner) {
	r.Go(p.backends...)
	r.Go(fx.NamedRun("poller", p))
}

// Run implements Runnable.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	wait := func(cond func() bool) error {
		for !cond() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		return nil
	}

	for {
		idle := true
		for _, r := range p.routes {
			if !r.rx.ReceivePending() {
				continue
			}
			idle = false
			b := r.rx.ReadReceiveRegister()
			if err := wait(r.tx.TransmitReady); err != nil {
				return err
			}
			if glog.V(2) {
				glog.Infof("poll %s: 0x%02x", r.name, b)
			}
			r.tx.WriteTransmitRegister(b)
			if p.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.Delay):
				}
			}
		}
		if idle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

func sortedKeys(periphs map[string]periph.Peripheral) []string {
	names := make([]string, 0, len(periphs))
	for name := range periphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
