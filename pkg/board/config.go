package board

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/relay.go/pkg/env"
	fx "github.com/robotalks/relay.go/pkg/framework"
	"github.com/robotalks/relay.go/pkg/l0/comm"
	"github.com/robotalks/relay.go/pkg/l0/irq"
	"github.com/robotalks/relay.go/pkg/l0/periph"
	"github.com/robotalks/relay.go/pkg/l0/periph/link"
	"github.com/robotalks/relay.go/pkg/l0/periph/sim"
	"github.com/robotalks/relay.go/pkg/l0/periph/stream"
	"github.com/robotalks/relay.go/pkg/l0/queue"
)

// Run modes.
const (
	ModeIRQ  = "irq"
	ModePoll = "poll"
)

// BackendSim selects a simulated peripheral instead of a link URL.
const BackendSim = "sim"

// Config provides common options to build a Board.
type Config struct {
	// ID identifies the board in telemetry, defaults to env.BoardID.
	ID string
	// UART and SPI are link URLs (serial://, ws://, tcp://) or "sim".
	UART string
	SPI  string
	// Wiring is a preset name or from:to pairs.
	Wiring   string
	Overflow string
	QueueCap int
	Mode     string
	// PollDelay is the inter-byte delay in poll mode.
	PollDelay time.Duration
	// ManualClock leaves the simulation clock to the caller.
	ManualClock bool
}

var defaultConfig = Config{
	UART:     BackendSim,
	SPI:      BackendSim,
	Wiring:   "echo",
	Overflow: comm.PolicyFailStop.String(),
	QueueCap: queue.DefaultCapacity,
	Mode:     ModeIRQ,
}

func init() {
	if val := os.Getenv("RELAY_ID"); val != "" {
		defaultConfig.ID = val
	}
	if val := os.Getenv("RELAY_UART"); val != "" {
		defaultConfig.UART = val
	}
	if val := os.Getenv("RELAY_SPI"); val != "" {
		defaultConfig.SPI = val
	}
	if val := os.Getenv("RELAY_WIRING"); val != "" {
		defaultConfig.Wiring = val
	}
	if val := os.Getenv("RELAY_OVERFLOW"); val != "" {
		defaultConfig.Overflow = val
	}
	if val := os.Getenv("RELAY_QUEUE_CAP"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.QueueCap = n
		} else {
			glog.Warningf("ignore invalid RELAY_QUEUE_CAP %q", val)
		}
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ID, "board-id", defaultConfig.ID, "Board ID, defaults to one derived from machine id.")
	flag.StringVar(&defaultConfig.UART, "uart", defaultConfig.UART, "UART link URL or sim.")
	flag.StringVar(&defaultConfig.SPI, "spi", defaultConfig.SPI, "SPI link URL or sim.")
	flag.StringVar(&defaultConfig.Wiring, "wiring", defaultConfig.Wiring, "Wiring: echo, relay, uart-to-spi, spi-to-uart or from:to pairs.")
	flag.StringVar(&defaultConfig.Overflow, "overflow", defaultConfig.Overflow, "Overflow policy: fail-stop, report, drop-oldest.")
	flag.IntVar(&defaultConfig.QueueCap, "queue-cap", defaultConfig.QueueCap, "Transmit queue capacity (1-255).")
	flag.StringVar(&defaultConfig.Mode, "mode", defaultConfig.Mode, "Run mode: irq or poll.")
	flag.DurationVar(&defaultConfig.PollDelay, "poll-delay", defaultConfig.PollDelay, "Inter-byte delay in poll mode.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.QueueCap <= 0 || c.QueueCap > queue.MaxCapacity {
		return fmt.Errorf("queue capacity %d out of range 1-%d", c.QueueCap, queue.MaxCapacity)
	}
	if _, err := comm.ParseOverflowPolicy(c.Overflow); err != nil {
		return err
	}
	if _, err := ParseWiring(c.Wiring); err != nil {
		return err
	}
	switch c.Mode {
	case ModeIRQ, ModePoll:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// BoardID returns the configured id or the machine derived one.
func (c *Config) BoardID() string {
	if c.ID != "" {
		return c.ID
	}
	return env.BoardID()
}

type backends struct {
	periphs map[string]periph.Peripheral
	runners []fx.Runnable
	clock   *sim.Clock
}

func (c *Config) openBackends(ctl *irq.Controller) (*backends, error) {
	bk := &backends{periphs: make(map[string]periph.Peripheral)}
	for _, item := range []struct {
		name string
		url  string
		mode sim.Mode
	}{
		{ChannelUART, c.UART, sim.ModeAsync},
		{ChannelSPI, c.SPI, sim.ModeSync},
	} {
		if item.url == BackendSim || item.url == "" {
			u := sim.New(item.name, item.mode, ctl, periph.DefaultVectors)
			name := item.name
			u.Wire = func(b byte) { glog.V(1).Infof("%s wire: 0x%02x", name, b) }
			if bk.clock == nil {
				bk.clock = sim.NewClock()
			}
			bk.clock.Add(u)
			bk.periphs[item.name] = u
			continue
		}
		rw, err := link.Open(item.url)
		if err != nil {
			bk.close()
			return nil, fmt.Errorf("%s: %w", item.name, err)
		}
		p := stream.New(item.name, rw, ctl, periph.DefaultVectors)
		bk.periphs[item.name] = p
		bk.runners = append(bk.runners, p)
	}
	if bk.clock != nil && !c.ManualClock {
		bk.runners = append(bk.runners, bk.clock)
	}
	return bk, nil
}

// close releases links opened before a failure; Run owns them afterwards.
func (bk *backends) close() {
	for _, r := range bk.runners {
		if p, ok := r.(*stream.Peripheral); ok {
			p.Close()
		}
	}
}

// NewBoard opens the backends and builds a wired Board.
func (c *Config) NewBoard() (*Board, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	policy, _ := comm.ParseOverflowPolicy(c.Overflow)
	wiring, _ := ParseWiring(c.Wiring)
	ctl := irq.NewController()
	bk, err := c.openBackends(ctl)
	if err != nil {
		return nil, err
	}
	b, err := New(ctl, bk.periphs[ChannelUART], bk.periphs[ChannelSPI], Options{
		ID:       c.BoardID(),
		Capacity: c.QueueCap,
		Policy:   policy,
	})
	if err != nil {
		bk.close()
		return nil, err
	}
	b.Clock = bk.clock
	b.AddBackend(bk.runners...)
	if err = b.Wire(wiring); err != nil {
		bk.close()
		return nil, err
	}
	return b, nil
}

// MustNewBoard creates a Board and fails on error.
func (c *Config) MustNewBoard() *Board {
	b, err := c.NewBoard()
	if err != nil {
		log.Fatalln(err)
	}
	return b
}

// NewPoller opens the backends and builds the polling baseline.
func (c *Config) NewPoller() (*Poller, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	wiring, _ := ParseWiring(c.Wiring)
	bk, err := c.openBackends(irq.NewController())
	if err != nil {
		return nil, err
	}
	p, err := NewPoller(bk.periphs, wiring)
	if err != nil {
		bk.close()
		return nil, err
	}
	p.Delay = c.PollDelay
	p.AddBackend(bk.runners...)
	return p, nil
}

// MustNewRunnerAdder builds a Board or a Poller by Mode and fails on error.
func (c *Config) MustNewRunnerAdder() fx.RunnerAdder {
	if c.Mode == ModePoll {
		p, err := c.NewPoller()
		if err != nil {
			log.Fatalln(err)
		}
		return p
	}
	return c.MustNewBoard()
}
