// Package irq models a single-core interrupt controller: named vectors with
// fixed priorities, registered handlers, per-vector masking and a global
// interrupt enable.
//
// Hardware (simulated peripherals, link goroutines) requests service with
// Raise. A request stays pending while the vector is masked, while its handler
// is already running, or while interrupts are globally disabled, and it is
// delivered as soon as that condition clears. Handlers of one vector never
// re-enter.
package irq

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// Vector identifies an interrupt vector.
type Vector int

// Handler services an interrupt vector.
type Handler func(Vector)

// Predefined priorities, lower value is served first.
const (
	PriorityTop    int = 0
	PriorityHigh   int = 4
	PriorityNormal int = 8
	PriorityLow    int = 12
)

var (
	// ErrVectorInUse indicates a handler is already registered on the vector.
	ErrVectorInUse = errors.New("vector already registered")
)

type vector struct {
	name     string
	priority int
	handler  Handler
	pending  bool
	running  bool
	masked   int
	count    uint64
}

// Controller dispatches raised vectors to their handlers.
type Controller struct {
	lock     sync.Mutex
	vectors  map[Vector]*vector
	disabled bool
}

// NewController creates a Controller with interrupts globally enabled.
func NewController() *Controller {
	return &Controller{vectors: make(map[Vector]*vector)}
}

// Register installs the handler for a vector.
func (c *Controller) Register(v Vector, name string, priority int, h Handler) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, exist := c.vectors[v]; exist {
		return fmt.Errorf("%w: %d (%s)", ErrVectorInUse, v, name)
	}
	c.vectors[v] = &vector{name: name, priority: priority, handler: h}
	glog.V(2).Infof("irq: vector %d registered as %q priority %d", v, name, priority)
	return nil
}

// Name returns the registered name of a vector.
func (c *Controller) Name(v Vector) string {
	c.lock.Lock()
	defer c.lock.Unlock()
	if vec := c.vectors[v]; vec != nil {
		return vec.name
	}
	return fmt.Sprintf("vector-%d", v)
}

// Raise requests service of a vector.
func (c *Controller) Raise(v Vector) {
	c.lock.Lock()
	vec := c.vectors[v]
	if vec == nil {
		c.lock.Unlock()
		glog.V(2).Infof("irq: spurious raise on unregistered vector %d", v)
		return
	}
	vec.pending = true
	c.lock.Unlock()
	c.service()
}

// Pending reports whether the vector has an undelivered request.
func (c *Controller) Pending(v Vector) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if vec := c.vectors[v]; vec != nil {
		return vec.pending
	}
	return false
}

// Count returns how many times the vector handler has been invoked.
func (c *Controller) Count(v Vector) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	if vec := c.vectors[v]; vec != nil {
		return vec.count
	}
	return 0
}

// Mask blocks delivery of the vector until the returned restore func is
// called. Masks nest. Requests raised while masked are delivered on the
// final restore. restore is idempotent.
func (c *Controller) Mask(v Vector) (restore func()) {
	c.lock.Lock()
	vec := c.vectors[v]
	if vec != nil {
		vec.masked++
	}
	c.lock.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			if vec == nil {
				return
			}
			c.lock.Lock()
			vec.masked--
			c.lock.Unlock()
			c.service()
		})
	}
}

// Disable clears the global interrupt enable.
func (c *Controller) Disable() {
	c.lock.Lock()
	c.disabled = true
	c.lock.Unlock()
	glog.V(2).Info("irq: interrupts disabled")
}

// Enable sets the global interrupt enable and delivers pending requests.
func (c *Controller) Enable() {
	c.lock.Lock()
	c.disabled = false
	c.lock.Unlock()
	glog.V(2).Info("irq: interrupts enabled")
	c.service()
}

// Enabled reports the global interrupt enable.
func (c *Controller) Enabled() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return !c.disabled
}

// service delivers deliverable requests, highest priority first, until none
// are left. It may run concurrently from several goroutines; the running flag
// keeps each vector single-entry.
func (c *Controller) service() {
	for {
		c.lock.Lock()
		v, vec := c.next()
		if vec == nil {
			c.lock.Unlock()
			return
		}
		vec.pending, vec.running = false, true
		vec.count++
		h := vec.handler
		c.lock.Unlock()

		if h != nil {
			h(v)
		}

		c.lock.Lock()
		vec.running = false
		c.lock.Unlock()
	}
}

// next must be called with lock held.
func (c *Controller) next() (Vector, *vector) {
	if c.disabled {
		return 0, nil
	}
	var (
		best    *vector
		bestVec Vector
	)
	for v, vec := range c.vectors {
		if !vec.pending || vec.running || vec.masked > 0 {
			continue
		}
		if best == nil || vec.priority < best.priority ||
			(vec.priority == best.priority && v < bestVec) {
			best, bestVec = vec, v
		}
	}
	return bestVec, best
}
