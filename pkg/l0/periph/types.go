// Package periph defines what the transmit/receive core needs from a serial
// peripheral. Clock setup, pin muxing and baud divisors stay behind this
// boundary.
package periph

import "github.com/robotalks/relay.go/pkg/l0/irq"

// Transmitter is the transmit half of a peripheral.
type Transmitter interface {
	// ArmTransmitInterrupt enables the "ready for next byte" interrupt source.
	// If the peripheral is already ready the interrupt is raised immediately.
	ArmTransmitInterrupt()
	// DisarmTransmitInterrupt disables the "ready for next byte" interrupt source.
	DisarmTransmitInterrupt()
	// TransmitArmed reports the interrupt enable bit.
	TransmitArmed() bool
	// TransmitReady reports the completion flag: the transmit register can
	// take a byte.
	TransmitReady() bool
	// WriteTransmitRegister hands one byte to the shifter. It must only be
	// called while TransmitReady is true.
	WriteTransmitRegister(byte)
}

// Receiver is the receive half of a peripheral.
type Receiver interface {
	// ReceivePending reports whether a byte has arrived.
	ReceivePending() bool
	// ReadReceiveRegister returns the arrived byte and clears the pending flag.
	ReadReceiveRegister() byte
}

// Peripheral is a full-duplex serial peripheral.
type Peripheral interface {
	Transmitter
	Receiver
	// Name is a short name used in logs, e.g. "uart".
	Name() string
}

// Vectors names the interrupt vectors a peripheral raises.
// Peripherals on one USCI module share vectors.
type Vectors struct {
	TX irq.Vector
	RX irq.Vector
}

// Well-known vectors of the two-channel board. The async (UART) and sync
// (SPI) peripherals share one TX and one RX vector.
const (
	VectorTX irq.Vector = 6
	VectorRX irq.Vector = 7
)

// DefaultVectors are the shared vectors.
var DefaultVectors = Vectors{TX: VectorTX, RX: VectorRX}
