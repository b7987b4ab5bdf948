package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/relay.go/pkg/l0/comm"
)

// Publisher delivers events.
type Publisher interface {
	Publish(*Event) error
}

// PublishFunc is func type of Publisher.
type PublishFunc func(*Event) error

// Publish implements Publisher.
func (f PublishFunc) Publish(ev *Event) error {
	return f(ev)
}

// DefaultDepth is the default buffer depth of a Notifier.
const DefaultDepth = 256

// Notifier converts channel events and hands them to a Publisher from its
// own goroutine. Notify never blocks: when the buffer is full the event is
// dropped and counted.
type Notifier struct {
	dropped uint64

	Board     string
	Publisher Publisher
	Now       func() time.Time

	events chan *Event
}

// NewNotifier creates a Notifier with a buffer of depth events.
func NewNotifier(board string, pub Publisher, depth int) *Notifier {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Notifier{
		Board:     board,
		Publisher: pub,
		Now:       time.Now,
		events:    make(chan *Event, depth),
	}
}

// Notify implements comm.Notifier.
func (n *Notifier) Notify(ev comm.Event) {
	msg := NewEvent(n.Board, ev, n.Now())
	select {
	case n.events <- msg:
	default:
		if atomic.AddUint64(&n.dropped, 1) == 1 {
			glog.Warning("telemetry buffer full, dropping events")
		}
	}
}

// Dropped returns the number of events lost to a full buffer.
func (n *Notifier) Dropped() uint64 {
	return atomic.LoadUint64(&n.dropped)
}

// Name implements Named.
func (n *Notifier) Name() string { return "telemetry" }

// Run implements Runnable. Buffered events are flushed on cancel.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-n.events:
			n.publish(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-n.events:
					n.publish(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (n *Notifier) publish(ev *Event) {
	if err := n.Publisher.Publish(ev); err != nil {
		glog.Warningf("publish %s/%s %s: %v", ev.Board, ev.Channel, ev.Kind, err)
	}
}
