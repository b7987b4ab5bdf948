// Package telemetry turns channel events into wire messages and publishes
// them.
package telemetry

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/relay.go/pkg/l0/comm"
)

// Kind is the wire enum of event kinds.
type Kind int32

// Kinds.
const (
	KindUnknown  Kind = 0
	KindArmed    Kind = 1
	KindDisarmed Kind = 2
	KindOverflow Kind = 3
	KindDropped  Kind = 4
	KindHalted   Kind = 5
	KindUnrouted Kind = 6
)

var kindNames = map[int32]string{
	0: "UNKNOWN",
	1: "ARMED",
	2: "DISARMED",
	3: "OVERFLOW",
	4: "DROPPED",
	5: "HALTED",
	6: "UNROUTED",
}

var kindValues = map[string]int32{
	"UNKNOWN":  0,
	"ARMED":    1,
	"DISARMED": 2,
	"OVERFLOW": 3,
	"DROPPED":  4,
	"HALTED":   5,
	"UNROUTED": 6,
}

func init() {
	proto.RegisterEnum("relay.telemetry.Kind", kindNames, kindValues)
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return proto.EnumName(kindNames, int32(k))
}

// KindOf maps a channel event kind.
func KindOf(k comm.EventKind) Kind {
	switch k {
	case comm.EventArmed:
		return KindArmed
	case comm.EventDisarmed:
		return KindDisarmed
	case comm.EventOverflow:
		return KindOverflow
	case comm.EventDropped:
		return KindDropped
	case comm.EventHalted:
		return KindHalted
	case comm.EventUnrouted:
		return KindUnrouted
	}
	return KindUnknown
}

// Event is the wire form of a channel event.
type Event struct {
	Board     string `protobuf:"bytes,1,opt,name=board,proto3" json:"board,omitempty"`
	Channel   string `protobuf:"bytes,2,opt,name=channel,proto3" json:"channel,omitempty"`
	Kind      Kind   `protobuf:"varint,3,opt,name=kind,proto3,enum=relay.telemetry.Kind" json:"kind,omitempty"`
	Byte      uint32 `protobuf:"varint,4,opt,name=byte,proto3" json:"byte,omitempty"`
	QueueSize uint32 `protobuf:"varint,5,opt,name=queue_size,json=queueSize,proto3" json:"queue_size,omitempty"`
	Time      int64  `protobuf:"varint,6,opt,name=time,proto3" json:"time,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Event) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// Timestamp returns Time as time.Time.
func (m *Event) Timestamp() time.Time {
	return time.Unix(0, m.Time)
}

// NewEvent converts a channel event.
func NewEvent(board string, ev comm.Event, at time.Time) *Event {
	return &Event{
		Board:     board,
		Channel:   ev.Channel,
		Kind:      KindOf(ev.Kind),
		Byte:      uint32(ev.Byte),
		QueueSize: uint32(ev.Size),
		Time:      at.UnixNano(),
	}
}

// Encode serializes the event.
func (m *Event) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeEvent parses a serialized event.
func DecodeEvent(data []byte) (*Event, error) {
	m := &Event{}
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Meta describes a running board. It is published as JSON.
type Meta struct {
	Board    string   `json:"board"`
	Channels []string `json:"channels"`
	Wiring   string   `json:"wiring"`
	Overflow string   `json:"overflow"`
	QueueCap int      `json:"queue_cap"`
	Mode     string   `json:"mode,omitempty"`
}
