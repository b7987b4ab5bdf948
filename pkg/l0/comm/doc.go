// Package comm provides the L0 transmit/receive core of the relay.
package comm

// Each output channel owns a bounded byte queue. Producers (mainline code or
// the receive interrupt relaying a byte) call Transmit, which enqueues and
// arms the channel's transmit-complete interrupt when the channel was idle.
// The transmit-complete handler pops the next byte into the peripheral, or
// disarms the interrupt once the queue is empty.
//
// Every push and pop runs inside the channel critical section: the channel's
// TX vector is masked and the channel lock is held, and both are released on
// every return path.
//
// Producer: mainline, receive handlers
// Consumer: transmit-complete handler
