// Package stream implements a peripheral on top of an io.ReadWriter such as a
// serial port or a socket. A pump goroutine plays the shifter: it writes the
// transmit register out and raises the completion interrupt, and it delivers
// each read byte to the receive register.
package stream

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
)

// Counters of the peripheral.
type Counters struct {
	Written  uint64
	Read     uint64
	Collided uint64
}

// Peripheral implements periph.Peripheral over an io.ReadWriter.
type Peripheral struct {
	name    string
	rw      io.ReadWriter
	ctl     *irq.Controller
	vectors periph.Vectors

	armed     bool
	ready     bool
	rxPending bool
	rxbuf     byte
	counters  Counters
	lock      sync.Mutex

	txCh   chan byte
	rxFree chan struct{}
}

var _ periph.Peripheral = (*Peripheral)(nil)

// New creates a Peripheral. Nothing moves until Run is called.
func New(name string, rw io.ReadWriter, ctl *irq.Controller, vectors periph.Vectors) *Peripheral {
	p := &Peripheral{
		name:    name,
		rw:      rw,
		ctl:     ctl,
		vectors: vectors,
		ready:   true,
		txCh:    make(chan byte, 1),
		rxFree:  make(chan struct{}, 1),
	}
	p.rxFree <- struct{}{}
	return p
}

// Name implements Peripheral and fx.Named.
func (p *Peripheral) Name() string { return p.name }

// Counters returns a copy of the counters.
func (p *Peripheral) Counters() Counters {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.counters
}

// ArmTransmitInterrupt implements Transmitter.
func (p *Peripheral) ArmTransmitInterrupt() {
	p.lock.Lock()
	p.armed = true
	raise := p.ready
	p.lock.Unlock()
	if raise {
		p.ctl.Raise(p.vectors.TX)
	}
}

// DisarmTransmitInterrupt implements Transmitter.
func (p *Peripheral) DisarmTransmitInterrupt() {
	p.lock.Lock()
	p.armed = false
	p.lock.Unlock()
}

// TransmitArmed implements Transmitter.
func (p *Peripheral) TransmitArmed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.armed
}

// TransmitReady implements Transmitter.
func (p *Peripheral) TransmitReady() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.ready
}

// WriteTransmitRegister implements Transmitter.
func (p *Peripheral) WriteTransmitRegister(b byte) {
	p.lock.Lock()
	if !p.ready {
		p.counters.Collided++
	}
	p.ready = false
	p.lock.Unlock()
	select {
	case p.txCh <- b:
	default:
		glog.Warningf("%s: TX register busy, 0x%02x lost", p.name, b)
	}
}

// ReceivePending implements Receiver.
func (p *Peripheral) ReceivePending() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.rxPending
}

// ReadReceiveRegister implements Receiver.
func (p *Peripheral) ReadReceiveRegister() byte {
	p.lock.Lock()
	b, wasPending := p.rxbuf, p.rxPending
	p.rxPending = false
	p.lock.Unlock()
	if wasPending {
		select {
		case p.rxFree <- struct{}{}:
		default:
		}
	}
	return b
}

// Close closes the underlying stream if it is an io.Closer. It is only
// needed when Run is never called.
func (p *Peripheral) Close() error {
	if closer, ok := p.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Run implements Runnable. It returns when ctx is done or the stream fails.
// If the stream is an io.Closer it is closed on return.
func (p *Peripheral) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.writeLoop(ctx)
		cancel()
	}()

	readFn := func() error { return p.readLoop(ctx) }
	var err error
	if closer, ok := p.rw.(io.Closer); ok {
		err = fx.RunWithContextCloser(ctx, closer, readFn)
	} else {
		err = fx.RunWithContextCancel(ctx, nil, readFn)
	}
	select {
	case werr := <-writeErr:
		if werr != nil {
			return werr
		}
	default:
	}
	return err
}

func (p *Peripheral) writeLoop(ctx context.Context) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case buf[0] = <-p.txCh:
			if _, err := p.rw.Write(buf); err != nil {
				glog.Errorf("%s: write error: %v", p.name, err)
				return err
			}
			p.lock.Lock()
			p.ready = true
			p.counters.Written++
			raise := p.armed
			p.lock.Unlock()
			if raise {
				p.ctl.Raise(p.vectors.TX)
			}
		}
	}
}

func (p *Peripheral) readLoop(ctx context.Context) error {
	buf := make([]byte, 1)
	for {
		n, err := p.rw.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		// Hold the next byte until the receive register has been read.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.rxFree:
		}
		p.lock.Lock()
		p.rxbuf, p.rxPending = buf[0], true
		p.counters.Read++
		p.lock.Unlock()
		p.ctl.Raise(p.vectors.RX)
	}
}
