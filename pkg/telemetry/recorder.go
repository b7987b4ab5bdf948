package telemetry

import "sync"

// Recorder keeps published events in memory.
type Recorder struct {
	// Limit bounds the kept events, oldest go first. Zero keeps all.
	Limit int

	events []*Event
	counts map[Kind]uint64
	lock   sync.Mutex
}

// NewRecorder creates a Recorder.
func NewRecorder(limit int) *Recorder {
	return &Recorder{Limit: limit, counts: make(map[Kind]uint64)}
}

// Publish implements Publisher.
func (r *Recorder) Publish(ev *Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, ev)
	if r.Limit > 0 && len(r.events) > r.Limit {
		r.events = append(r.events[:0], r.events[len(r.events)-r.Limit:]...)
	}
	r.counts[ev.Kind]++
	return nil
}

// Events returns the kept events.
func (r *Recorder) Events() []*Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*Event(nil), r.events...)
}

// Count returns how many events of kind were published.
func (r *Recorder) Count(kind Kind) uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counts[kind]
}

// Reset clears events and counts.
func (r *Recorder) Reset() {
	r.lock.Lock()
	r.events = nil
	r.counts = make(map[Kind]uint64)
	r.lock.Unlock()
}
