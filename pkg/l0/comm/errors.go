package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueOverflow indicates a byte was offered to a full transmit queue.
	ErrQueueOverflow = errors.New("queue overflow")
	// ErrHalted indicates the system stopped after a fail-stop overflow.
	ErrHalted = errors.New("system halted")
	// ErrUnknownPolicy indicates an unrecognized overflow policy name.
	ErrUnknownPolicy = errors.New("unknown overflow policy")
	// ErrNoRoute indicates routing from an unregistered receiver.
	ErrNoRoute = errors.New("no such receiver")
)

// OverflowError reports the rejected byte.
type OverflowError struct {
	Channel string
	Byte    byte
	Size    int
}

// Error implements error.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: queue overflow (size %d) dropping 0x%02x", e.Channel, e.Size, e.Byte)
}

// Is matches ErrQueueOverflow.
func (e *OverflowError) Is(target error) bool {
	return target == ErrQueueOverflow
}
