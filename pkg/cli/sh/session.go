package sh

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robotalks/relay.go/pkg/board"
	"github.com/robotalks/relay.go/pkg/l0/comm"
	"github.com/robotalks/relay.go/pkg/l0/periph/sim"
	"github.com/robotalks/relay.go/pkg/telemetry"
)

// MaxDrainSteps bounds Drain.
const MaxDrainSteps = 1 << 16

// Session is a simulated board stepped by hand.
type Session struct {
	Config   *board.Config
	Board    *board.Board
	Recorder *telemetry.Recorder

	wires map[string][]byte
	lock  sync.Mutex
}

// ChannelState is a snapshot of one channel.
type ChannelState struct {
	Name    string     `json:"name"`
	Vector  string     `json:"vector"`
	State   string     `json:"state"`
	Size    int        `json:"size"`
	Cap     int        `json:"cap"`
	Armed   bool       `json:"armed"`
	Ready   bool       `json:"ready"`
	RxReady bool       `json:"rx_pending"`
	Stats   comm.Stats `json:"stats"`
}

// NewSession creates a Session. Both channels are simulated regardless of
// the link URLs in conf.
func NewSession(conf *board.Config) (*Session, error) {
	c := *conf
	c.UART, c.SPI = board.BackendSim, board.BackendSim
	c.Mode = board.ModeIRQ
	c.ManualClock = true
	s := &Session{Config: &c, Recorder: telemetry.NewRecorder(1024)}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset rebuilds the board from the config. Queues, routing changes and the
// halt latch are lost.
func (s *Session) Reset() error {
	b, err := s.Config.NewBoard()
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.wires = make(map[string][]byte)
	s.lock.Unlock()
	for _, name := range b.ChannelNames() {
		name := name
		s.usci(b, name).Wire = func(v byte) {
			s.lock.Lock()
			s.wires[name] = append(s.wires[name], v)
			s.lock.Unlock()
		}
	}
	id := b.ID
	b.Subscribe(comm.NotifyFunc(func(ev comm.Event) {
		s.Recorder.Publish(telemetry.NewEvent(id, ev, time.Now()))
	}))
	s.Recorder.Reset()
	s.Board = b
	return nil
}

func (s *Session) usci(b *board.Board, name string) *sim.USCI {
	u, _ := b.Peripheral(name).(*sim.USCI)
	return u
}

func (s *Session) channel(name string) (*comm.Channel, error) {
	ch := s.Board.Channel(name)
	if ch == nil {
		return nil, fmt.Errorf("unknown channel %q, expect one of %s", name, strings.Join(s.Board.ChannelNames(), ", "))
	}
	return ch, nil
}

// Inject delivers bytes to the receive pin of a channel, one per call, the
// way back-to-back arrivals would.
func (s *Session) Inject(name string, data []byte) error {
	if _, err := s.channel(name); err != nil {
		return err
	}
	u := s.usci(s.Board, name)
	for _, v := range data {
		u.Inject(v)
	}
	return nil
}

// Transmit queues bytes on a channel as a producer would.
func (s *Session) Transmit(name string, data []byte) (int, error) {
	ch, err := s.channel(name)
	if err != nil {
		return 0, err
	}
	return ch.Write(data)
}

// Step advances the clock n character times.
func (s *Session) Step(n int) int {
	return s.Board.Clock.Step(n)
}

// Drain steps until nothing moves and returns the steps taken.
func (s *Session) Drain() int {
	for n := 0; n < MaxDrainSteps; n++ {
		if s.Board.Clock.Step(1) == 0 {
			return n
		}
	}
	return MaxDrainSteps
}

// TakeWire returns and clears what a channel has sent on the wire.
func (s *Session) TakeWire(name string) []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	data := s.wires[name]
	delete(s.wires, name)
	return data
}

// States returns snapshots of all channels.
func (s *Session) States() []ChannelState {
	var states []ChannelState
	vectors := s.Board.TransmitVectors()
	for _, name := range s.Board.ChannelNames() {
		ch := s.Board.Channel(name)
		p := s.Board.Peripheral(name)
		states = append(states, ChannelState{
			Name:    name,
			Vector:  vectors[name],
			State:   ch.State().String(),
			Size:    ch.Size(),
			Cap:     ch.Cap(),
			Armed:   p.TransmitArmed(),
			Ready:   p.TransmitReady(),
			RxReady: p.ReceivePending(),
			Stats:   ch.Stats(),
		})
	}
	return states
}

// ParseBytes converts arguments into bytes. An argument is either a 0xNN
// hex byte or literal text; \n, \r and \t escapes are honored.
func ParseBytes(args []string) ([]byte, error) {
	var data []byte
	for _, arg := range args {
		if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
			v, err := strconv.ParseUint(arg[2:], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid byte %q", arg)
			}
			data = append(data, byte(v))
			continue
		}
		text := strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t").Replace(arg)
		data = append(data, text...)
	}
	return data, nil
}

// FormatBytes prints bytes as quoted text, non-printable ones escaped.
func FormatBytes(data []byte) string {
	return strconv.QuoteToASCII(string(data))
}
