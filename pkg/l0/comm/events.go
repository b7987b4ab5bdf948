package comm

import "fmt"

// State is the transmit-side state of a channel.
type State int

const (
	// StateIdle means the queue is empty and the interrupt disarmed.
	StateIdle State = iota
	// StateArmed means the interrupt is armed and bytes are in flight.
	StateArmed
	// StateHalted is terminal, entered on a fail-stop overflow.
	StateHalted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind classifies channel events.
type EventKind int

// Event kinds.
const (
	EventArmed EventKind = iota
	EventDisarmed
	EventOverflow
	EventDropped
	EventHalted
	EventUnrouted
)

var eventNames = [...]string{"armed", "disarmed", "overflow", "dropped", "halted", "unrouted"}

// String implements fmt.Stringer.
func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is emitted on channel state transitions and byte losses.
type Event struct {
	Channel string
	Kind    EventKind
	Byte    byte
	Size    int
}

// Notifier is called when an event happens. It runs outside the channel
// critical section but possibly in interrupt context; it must not block.
type Notifier interface {
	Notify(Event)
}

// NotifyFunc is func type of Notifier.
type NotifyFunc func(Event)

// Notify implements Notifier.
func (f NotifyFunc) Notify(ev Event) {
	f(ev)
}

// Notifiers fans an event out to several notifiers.
type Notifiers []Notifier

// Notify implements Notifier.
func (n Notifiers) Notify(ev Event) {
	for _, r := range n {
		if r != nil {
			r.Notify(ev)
		}
	}
}
