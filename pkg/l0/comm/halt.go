package comm

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/relay.go/pkg/l0/irq"
)

// Halt is the system-wide fail-stop latch shared by all channels.
// Tripping it disables interrupts globally; nothing clears it but a reset.
type Halt struct {
	ctl  *irq.Controller
	once sync.Once
	done chan struct{}
	err  error
}

// NewHalt creates a Halt bound to the interrupt controller.
func NewHalt(ctl *irq.Controller) *Halt {
	return &Halt{ctl: ctl, done: make(chan struct{})}
}

// Trip halts the system with the cause. Only the first cause is kept.
func (h *Halt) Trip(cause error) {
	h.once.Do(func() {
		if h.ctl != nil {
			h.ctl.Disable()
		}
		h.err = cause
		glog.Errorf("system halted: %v", cause)
		close(h.done)
	})
}

// Done is closed when the system halts.
func (h *Halt) Done() <-chan struct{} {
	return h.done
}

// Halted reports whether Trip has been called.
func (h *Halt) Halted() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the halt cause, nil while running.
func (h *Halt) Err() error {
	if !h.Halted() {
		return nil
	}
	return h.err
}
