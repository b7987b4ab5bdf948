package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/l0/comm"
	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
	"github.com/robotalks/relay.go/pkg/l0/periph/sim"
)

type wireCapture struct {
	lock sync.Mutex
	data []byte
}

func (w *wireCapture) write(b byte) {
	w.lock.Lock()
	w.data = append(w.data, b)
	w.lock.Unlock()
}

func (w *wireCapture) String() string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return string(w.data)
}

type simBoard struct {
	*Board
	uart, spi         *sim.USCI
	uartWire, spiWire wireCapture
}

func newSimBoard(t *testing.T, wiring string, capacity int, overflow string) *simBoard {
	conf := NewConfig()
	conf.ID = "test"
	conf.UART, conf.SPI = BackendSim, BackendSim
	conf.Wiring = wiring
	conf.QueueCap = capacity
	conf.Overflow = overflow
	conf.Mode = ModeIRQ
	conf.ManualClock = true
	b, err := conf.NewBoard()
	require.NoError(t, err)
	require.NotNil(t, b.Clock)
	sb := &simBoard{Board: b}
	sb.uart = b.Peripheral(ChannelUART).(*sim.USCI)
	sb.spi = b.Peripheral(ChannelSPI).(*sim.USCI)
	sb.uart.Wire = sb.uartWire.write
	sb.spi.Wire = sb.spiWire.write
	return sb
}

func (b *simBoard) drain() {
	for b.Clock.Step(1) > 0 {
	}
}

func TestParseWiring(t *testing.T) {
	testCases := []struct {
		in   string
		want Wiring
		err  bool
	}{
		{in: "echo", want: Wiring{"uart": "uart", "spi": "spi"}},
		{in: "RELAY", want: Wiring{"uart": "spi", "spi": "uart"}},
		{in: "uart-to-spi", want: Wiring{"uart": "spi"}},
		{in: "spi-to-uart", want: Wiring{"spi": "uart"}},
		{in: "uart:spi, spi:spi", want: Wiring{"uart": "spi", "spi": "spi"}},
		{in: "uart:spi,uart:uart", err: true},
		{in: "uart", err: true},
		{in: "", err: true},
	}
	for _, tc := range testCases {
		w, err := ParseWiring(tc.in)
		if tc.err {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, w)
	}
	w, _ := ParseWiring("echo")
	w["uart"] = "spi"
	require.Equal(t, "uart", Presets["echo"]["uart"], "presets are not shared")
	require.Equal(t, "spi:uart,uart:spi", Presets["relay"].String())
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name  string
		apply func(c *Config)
		err   bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero capacity", func(c *Config) { c.QueueCap = 0 }, true},
		{"max capacity", func(c *Config) { c.QueueCap = 255 }, false},
		{"capacity too large", func(c *Config) { c.QueueCap = 256 }, true},
		{"bad policy", func(c *Config) { c.Overflow = "ignore" }, true},
		{"bad wiring", func(c *Config) { c.Wiring = "x" }, true},
		{"poll", func(c *Config) { c.Mode = ModePoll }, false},
		{"bad mode", func(c *Config) { c.Mode = "dma" }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := NewConfig()
			conf.Wiring, conf.Overflow, conf.QueueCap, conf.Mode = "echo", "fail-stop", 100, ModeIRQ
			tc.apply(conf)
			if tc.err {
				require.Error(t, conf.Validate())
			} else {
				require.NoError(t, conf.Validate())
			}
		})
	}
}

func TestBoardWirings(t *testing.T) {
	testCases := []struct {
		wiring            string
		uartWire, spiWire string
	}{
		{"echo", "hello", "world"},
		{"relay", "world", "hello"},
		{"uart-to-spi", "", "hello"},
		{"spi-to-uart", "world", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.wiring, func(t *testing.T) {
			b := newSimBoard(t, tc.wiring, 8, "fail-stop")
			in1, in2 := "hello", "world"
			for i := range in1 {
				b.uart.Inject(in1[i])
				b.spi.Inject(in2[i])
			}
			b.drain()
			require.Equal(t, tc.uartWire, b.uartWire.String())
			require.Equal(t, tc.spiWire, b.spiWire.String())
			for _, name := range b.ChannelNames() {
				require.Equal(t, comm.StateIdle, b.Channel(name).State())
			}
		})
	}
}

func TestBoardRewire(t *testing.T) {
	b := newSimBoard(t, "echo", 8, "fail-stop")
	require.Equal(t, map[string]string{"uart": "usci-tx", "spi": "usci-tx"}, b.TransmitVectors())
	require.NoError(t, b.Wire(Wiring{"uart": "spi"}))
	require.Equal(t, Wiring{"uart": "spi"}, b.Wiring())
	require.Error(t, b.Wire(Wiring{"uart": "i2c"}))
	err := b.Wire(Wiring{"i2c": "uart"})
	require.True(t, errors.Is(err, comm.ErrNoRoute))
	require.Equal(t, Wiring{"uart": "spi"}, b.Wiring(), "failed wiring leaves routes unchanged")
}

func TestBoardEvents(t *testing.T) {
	b := newSimBoard(t, "uart-to-spi", 8, "report")
	var (
		lock   sync.Mutex
		events []comm.Event
	)
	b.Subscribe(comm.NotifyFunc(func(ev comm.Event) {
		lock.Lock()
		events = append(events, ev)
		lock.Unlock()
	}))
	b.uart.Inject('a')
	b.spi.Inject('b')
	b.drain()

	var kinds []comm.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []comm.EventKind{comm.EventArmed, comm.EventUnrouted, comm.EventDisarmed}, kinds)
	require.Equal(t, "spi", events[0].Channel)
	require.Equal(t, byte('b'), events[1].Byte)
	require.Equal(t, uint64(1), b.Stats()[ChannelSPI].Sent)
}

func TestBoardHaltStopsRunner(t *testing.T) {
	b := newSimBoard(t, "uart-to-spi", 2, "fail-stop")
	for _, v := range []byte("abcd") {
		b.uart.Inject(v)
	}
	require.True(t, b.Halt.Halted())
	require.False(t, b.Ctl.Enabled())

	r := fx.NewRunner().Add(b)
	done := make(chan error, 1)
	go func() { done <- r.Wait() }()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, comm.ErrQueueOverflow))
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on halt")
	}
	require.True(t, errors.Is(b.Channel(ChannelUART).Transmit('x'), comm.ErrHalted))
}

func TestBoardReportPolicyKeepsRunning(t *testing.T) {
	b := newSimBoard(t, "uart-to-spi", 2, "report")
	for _, v := range []byte("abcd") {
		b.uart.Inject(v)
	}
	require.False(t, b.Halt.Halted())
	b.drain()
	require.Equal(t, "abc", b.spiWire.String())
	require.Equal(t, uint64(1), b.Stats()[ChannelSPI].Dropped)
}

func TestPollingEcho(t *testing.T) {
	u := sim.New("uart", sim.ModeAsync, irq.NewController(), periph.DefaultVectors)
	var wire wireCapture
	u.Wire = wire.write
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- PollingEcho(ctx, u, 0) }()

	for i, v := range []byte("poll") {
		u.Inject(v)
		n := i + 1
		require.Eventually(t, func() bool {
			u.Tick()
			return len(wire.String()) == n
		}, time.Second, time.Millisecond)
	}
	require.Equal(t, "poll", wire.String())
	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestPollerRelay(t *testing.T) {
	ctl := irq.NewController()
	uart := sim.New("uart", sim.ModeAsync, ctl, periph.DefaultVectors)
	spi := sim.New("spi", sim.ModeSync, ctl, periph.DefaultVectors)
	var wire wireCapture
	spi.Wire = wire.write
	p, err := NewPoller(map[string]periph.Peripheral{"uart": uart, "spi": spi}, Presets["uart-to-spi"])
	require.NoError(t, err)
	_, err = NewPoller(map[string]periph.Peripheral{"uart": uart}, Presets["relay"])
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	uart.Inject('z')
	require.Eventually(t, func() bool {
		spi.Tick()
		return wire.String() == "z"
	}, time.Second, time.Millisecond)
}
