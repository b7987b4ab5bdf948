package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/relay.go/pkg/l0/comm"
)

func TestEventEncoding(t *testing.T) {
	at := time.Unix(1600000000, 42)
	ev := NewEvent("b1", comm.Event{Channel: "spi", Kind: comm.EventOverflow, Byte: 0xfe, Size: 100}, at)
	data, err := ev.Encode()
	require.NoError(t, err)
	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	require.Equal(t, ev, decoded)
	require.Equal(t, KindOverflow, decoded.Kind)
	require.True(t, at.Equal(decoded.Timestamp()))
	require.Contains(t, decoded.String(), "OVERFLOW")

	_, err = DecodeEvent([]byte{0xff})
	require.Error(t, err)
}

func TestKindOf(t *testing.T) {
	testCases := map[comm.EventKind]Kind{
		comm.EventArmed:     KindArmed,
		comm.EventDisarmed:  KindDisarmed,
		comm.EventOverflow:  KindOverflow,
		comm.EventDropped:   KindDropped,
		comm.EventHalted:    KindHalted,
		comm.EventUnrouted:  KindUnrouted,
		comm.EventKind(100): KindUnknown,
	}
	for in, want := range testCases {
		require.Equal(t, want, KindOf(in), in.String())
	}
	require.Equal(t, "DISARMED", KindDisarmed.String())
}

func TestRecorderLimit(t *testing.T) {
	r := NewRecorder(2)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Publish(&Event{Kind: KindArmed, Byte: uint32(i)}))
	}
	r.Publish(&Event{Kind: KindHalted})
	events := r.Events()
	require.Len(t, events, 2)
	require.Equal(t, uint32(2), events[0].Byte)
	require.Equal(t, KindHalted, events[1].Kind)
	require.Equal(t, uint64(3), r.Count(KindArmed))
	r.Reset()
	require.Empty(t, r.Events())
	require.Zero(t, r.Count(KindArmed))
}

func TestNotifierFlushesOnCancel(t *testing.T) {
	rec := NewRecorder(0)
	n := NewNotifier("b1", rec, 4)
	n.Now = func() time.Time { return time.Unix(1, 0) }
	for i := 0; i < 6; i++ {
		n.Notify(comm.Event{Channel: "uart", Kind: comm.EventArmed, Byte: byte(i)})
	}
	require.Equal(t, uint64(2), n.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, n.Run(ctx))
	events := rec.Events()
	require.Len(t, events, 4)
	require.Equal(t, "b1", events[0].Board)
	require.Equal(t, int64(1e9), events[3].Time)
}

func TestNotifierPublishError(t *testing.T) {
	calls := make(chan *Event, 1)
	n := NewNotifier("b1", PublishFunc(func(ev *Event) error {
		calls <- ev
		return errors.New("offline")
	}), 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	n.Notify(comm.Event{Channel: "spi", Kind: comm.EventHalted})
	select {
	case ev := <-calls:
		require.Equal(t, KindHalted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
	cancel()
	require.NoError(t, <-done)
}
