package comm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
	"github.com/robotalks/relay.go/pkg/l0/periph/sim"
)

type testBoard struct {
	ctl        *irq.Controller
	uart, spi  *sim.USCI
	uartCh     *Channel
	spiCh      *Channel
	dispatcher *Dispatcher
	clock      *sim.Clock
	uartWire   []byte
	spiWire    []byte
}

func newTestBoard(t *testing.T, capacity int) *testBoard {
	b := &testBoard{ctl: irq.NewController()}
	halt := NewHalt(b.ctl)
	b.uart = sim.New("uart", sim.ModeAsync, b.ctl, periph.DefaultVectors)
	b.spi = sim.New("spi", sim.ModeSync, b.ctl, periph.DefaultVectors)
	b.uart.Wire = func(v byte) { b.uartWire = append(b.uartWire, v) }
	b.spi.Wire = func(v byte) { b.spiWire = append(b.spiWire, v) }
	b.uartCh = NewChannel("uart", b.uart, b.ctl, periph.VectorTX, capacity, halt)
	b.spiCh = NewChannel("spi", b.spi, b.ctl, periph.VectorTX, capacity, halt)
	b.dispatcher = NewDispatcher().AddReceiver("uart", b.uart).AddReceiver("spi", b.spi)

	txVec := NewSharedVector("tx", b.uartCh.TransmitSource(), b.spiCh.TransmitSource())
	rxVec := NewSharedVector("rx", b.dispatcher.ReceiveSource("uart"), b.dispatcher.ReceiveSource("spi"))
	require.NoError(t, b.ctl.Register(periph.VectorTX, "tx", irq.PriorityNormal, txVec.Handle))
	require.NoError(t, b.ctl.Register(periph.VectorRX, "rx", irq.PriorityHigh, rxVec.Handle))
	b.clock = sim.NewClock(b.uart, b.spi)
	return b
}

func (b *testBoard) drain() {
	for b.clock.Step(1) > 0 {
	}
}

func TestEchoAndRelay(t *testing.T) {
	testCases := []struct {
		name     string
		routes   func(b *testBoard)
		uartIn   string
		spiIn    string
		uartWire string
		spiWire  string
	}{
		{
			name: "echo",
			routes: func(b *testBoard) {
				b.dispatcher.Route("uart", "uart", b.uartCh)
				b.dispatcher.Route("spi", "spi", b.spiCh)
			},
			uartIn: "hello", spiIn: "xyz",
			uartWire: "hello", spiWire: "xyz",
		},
		{
			name: "relay",
			routes: func(b *testBoard) {
				b.dispatcher.Route("uart", "spi", b.spiCh)
				b.dispatcher.Route("spi", "uart", b.uartCh)
			},
			uartIn: "hello", spiIn: "xyz",
			uartWire: "xyz", spiWire: "hello",
		},
		{
			name: "uart to spi only",
			routes: func(b *testBoard) {
				b.dispatcher.Route("uart", "spi", b.spiCh)
			},
			uartIn: "ab", spiIn: "cd",
			uartWire: "", spiWire: "ab",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBoard(t, 16)
			tc.routes(b)
			for i := 0; i < len(tc.uartIn) || i < len(tc.spiIn); i++ {
				if i < len(tc.uartIn) {
					b.uart.Inject(tc.uartIn[i])
				}
				if i < len(tc.spiIn) {
					b.spi.Inject(tc.spiIn[i])
				}
			}
			b.drain()
			require.Equal(t, tc.uartWire, string(b.uartWire))
			require.Equal(t, tc.spiWire, string(b.spiWire))
			require.Equal(t, StateIdle, b.uartCh.State())
			require.Equal(t, StateIdle, b.spiCh.State())
			require.False(t, b.uart.TransmitArmed())
			require.False(t, b.spi.TransmitArmed())
		})
	}
}

func TestUnrouted(t *testing.T) {
	b := newTestBoard(t, 4)
	var events []Event
	b.dispatcher.Notifier = NotifyFunc(func(ev Event) { events = append(events, ev) })
	b.uart.Inject('q')
	require.False(t, b.uart.ReceivePending(), "receive condition cleared even when unrouted")
	require.Equal(t, uint64(1), b.dispatcher.Unrouted())
	require.Len(t, events, 1)
	require.Equal(t, EventUnrouted, events[0].Kind)
	require.Equal(t, map[string]string{"uart": "", "spi": ""}, b.dispatcher.Routes())
	require.True(t, errors.Is(b.dispatcher.Route("i2c", "uart", b.uartCh), ErrNoRoute))
}

func TestChannelIndependence(t *testing.T) {
	uartIn, spiIn := []byte("the quick brown fox"), []byte("jumps over")

	alone := func(toUART bool) []byte {
		b := newTestBoard(t, 32)
		var ch *Channel
		var in []byte
		if toUART {
			ch, in = b.uartCh, uartIn
		} else {
			ch, in = b.spiCh, spiIn
		}
		for _, v := range in {
			require.NoError(t, ch.Transmit(v))
		}
		b.drain()
		if toUART {
			return b.uartWire
		}
		return b.spiWire
	}

	b := newTestBoard(t, 32)
	for i := 0; i < len(uartIn) || i < len(spiIn); i++ {
		if i < len(spiIn) {
			require.NoError(t, b.spiCh.Transmit(spiIn[i]))
		}
		if i < len(uartIn) {
			require.NoError(t, b.uartCh.Transmit(uartIn[i]))
		}
		if i%3 == 0 {
			b.clock.Step(1)
		}
	}
	b.drain()
	require.Equal(t, alone(true), b.uartWire)
	require.Equal(t, alone(false), b.spiWire)
	require.Equal(t, string(uartIn), string(b.uartWire))
	require.Equal(t, string(spiIn), string(b.spiWire))
}

func TestSharedVectorServicesBoth(t *testing.T) {
	b := newTestBoard(t, 4)
	b.ctl.Disable()
	require.NoError(t, b.uartCh.Transmit('u'))
	require.NoError(t, b.spiCh.Transmit('s'))
	require.True(t, b.uartCh.TransmitPending())
	require.True(t, b.spiCh.TransmitPending())
	b.ctl.Enable()
	require.True(t, b.uart.Busy(), "uart serviced")
	require.True(t, b.spi.Busy(), "spi serviced in the same vector")
	require.Equal(t, uint64(1), b.ctl.Count(periph.VectorTX))
}

func TestSharedVectorAggregatesErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	src := func(pending bool, err error) Source {
		return &SourceFuncs{
			PendingFn: func() bool { return pending },
			ServiceFn: func() error { calls++; return err },
		}
	}
	var got error
	v := NewSharedVector("test", src(true, boom), src(false, boom), src(true, nil), src(true, boom))
	v.OnError = func(err error) { got = err }
	v.Handle(0)
	require.Equal(t, 3, calls)
	require.Error(t, got)
	require.True(t, errors.Is(got, boom))
}

func TestRelayOverflowHalts(t *testing.T) {
	b := newTestBoard(t, 2)
	b.dispatcher.Route("uart", "spi", b.spiCh)
	for _, v := range []byte("abcd") {
		b.uart.Inject(v)
	}
	require.Equal(t, StateHalted, b.spiCh.State())
	require.Equal(t, StateHalted, b.uartCh.State())
	require.False(t, b.ctl.Enabled())
	b.drain()
	require.Equal(t, "a", string(b.spiWire), "only the byte already in the shifter leaves")
}
