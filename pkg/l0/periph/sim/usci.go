// Package sim provides a register-level model of a USCI serial peripheral,
// in UART (asynchronous) or SPI master (synchronous) mode, advanced by an
// explicit clock.
package sim

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
)

// Mode selects the peripheral personality.
type Mode int

const (
	// ModeAsync is a UART.
	ModeAsync Mode = iota
	// ModeSync is an SPI master: each byte shifted out shifts one byte in.
	ModeSync
)

// Interrupt enable and flag bits.
const (
	TXIE uint8 = 0x02
	RXIE uint8 = 0x01

	TXIFG uint8 = 0x02
	RXIFG uint8 = 0x01
)

// Exchange returns the byte shifted in while out is shifted out, for ModeSync.
// ok=false means nothing was received.
type Exchange func(out byte) (in byte, ok bool)

// Counters of the peripheral since reset.
type Counters struct {
	Shifted  uint64
	Received uint64
	Overruns uint64
	Collided uint64 // writes while the shifter was busy
}

// USCI is a simulated serial peripheral. After reset the transmit buffer is
// empty, so TXIFG is set, and the receive interrupt is enabled.
type USCI struct {
	name    string
	mode    Mode
	ctl     *irq.Controller
	vectors periph.Vectors

	// Wire receives every byte that finishes shifting out.
	Wire func(byte)
	// Exchange supplies MISO bytes in ModeSync.
	Exchange Exchange

	ie, ifg  uint8
	txbuf    byte
	busy     bool
	rxbuf    byte
	counters Counters
	lock     sync.Mutex
}

var _ periph.Peripheral = (*USCI)(nil)

// New creates a USCI raising interrupts on ctl.
func New(name string, mode Mode, ctl *irq.Controller, vectors periph.Vectors) *USCI {
	u := &USCI{name: name, mode: mode, ctl: ctl, vectors: vectors}
	u.Reset()
	return u
}

// Name implements Peripheral.
func (u *USCI) Name() string { return u.name }

// Mode returns the peripheral personality.
func (u *USCI) Mode() Mode { return u.mode }

// Reset puts the registers in power-on state.
func (u *USCI) Reset() {
	u.lock.Lock()
	u.ie, u.ifg = RXIE, TXIFG
	u.busy, u.txbuf, u.rxbuf = false, 0, 0
	u.counters = Counters{}
	u.lock.Unlock()
}

// IE returns the interrupt enable register.
func (u *USCI) IE() uint8 {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.ie
}

// IFG returns the interrupt flag register.
func (u *USCI) IFG() uint8 {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.ifg
}

// Counters returns a copy of the counters.
func (u *USCI) Counters() Counters {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.counters
}

// Busy reports whether a byte is being shifted out.
func (u *USCI) Busy() bool {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.busy
}

// ArmTransmitInterrupt implements Transmitter.
func (u *USCI) ArmTransmitInterrupt() {
	u.lock.Lock()
	u.ie |= TXIE
	raise := u.ifg&TXIFG != 0
	u.lock.Unlock()
	if raise {
		u.ctl.Raise(u.vectors.TX)
	}
}

// DisarmTransmitInterrupt implements Transmitter.
func (u *USCI) DisarmTransmitInterrupt() {
	u.lock.Lock()
	u.ie &^= TXIE
	u.lock.Unlock()
}

// TransmitArmed implements Transmitter.
func (u *USCI) TransmitArmed() bool {
	return u.IE()&TXIE != 0
}

// TransmitReady implements Transmitter.
func (u *USCI) TransmitReady() bool {
	return u.IFG()&TXIFG != 0
}

// WriteTransmitRegister implements Transmitter.
func (u *USCI) WriteTransmitRegister(b byte) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.busy {
		u.counters.Collided++
		glog.Warningf("%s: TXBUF written while busy, 0x%02x lost", u.name, u.txbuf)
	}
	u.txbuf, u.busy = b, true
	u.ifg &^= TXIFG
}

// ReceivePending implements Receiver.
func (u *USCI) ReceivePending() bool {
	return u.IFG()&RXIFG != 0
}

// ReadReceiveRegister implements Receiver.
func (u *USCI) ReadReceiveRegister() byte {
	u.lock.Lock()
	defer u.lock.Unlock()
	u.ifg &^= RXIFG
	return u.rxbuf
}

// Inject delivers a byte on the receive pin.
func (u *USCI) Inject(b byte) {
	u.lock.Lock()
	raise := u.receiveLocked(b)
	u.lock.Unlock()
	if raise {
		u.ctl.Raise(u.vectors.RX)
	}
}

func (u *USCI) receiveLocked(b byte) bool {
	if u.ifg&RXIFG != 0 {
		u.counters.Overruns++
		glog.Warningf("%s: RX overrun, 0x%02x lost", u.name, u.rxbuf)
	}
	u.rxbuf = b
	u.ifg |= RXIFG
	u.counters.Received++
	return u.ie&RXIE != 0
}

// Tick advances one character time: a byte in the shifter finishes, TXIFG is
// set and the transmit interrupt is raised if armed. It returns the byte and
// whether one finished.
func (u *USCI) Tick() (byte, bool) {
	u.lock.Lock()
	if !u.busy {
		u.lock.Unlock()
		return 0, false
	}
	out := u.txbuf
	u.busy = false
	u.ifg |= TXIFG
	u.counters.Shifted++
	raiseTX := u.ie&TXIE != 0
	var raiseRX bool
	if u.mode == ModeSync && u.Exchange != nil {
		if in, ok := u.Exchange(out); ok {
			raiseRX = u.receiveLocked(in)
		}
	}
	wire := u.Wire
	u.lock.Unlock()

	if wire != nil {
		wire(out)
	}
	if raiseRX {
		u.ctl.Raise(u.vectors.RX)
	}
	if raiseTX {
		u.ctl.Raise(u.vectors.TX)
	}
	return out, true
}
