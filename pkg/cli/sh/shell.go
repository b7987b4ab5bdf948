// Package sh provides an interactive shell driving a simulated relay board.
package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/relay.go/pkg/board"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell   *ishell.Shell
	Session *Session
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&InjectCmd,
		&TransmitCmd,
		&StepCmd,
		&DrainCmd,
		&WireCmd,
		&StateCmd,
		&WiringCmd,
		&EventsCmd,
		&ResetCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell over a session.
func New(session *Session) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:   ishell.New(),
		Session: session,
	}
	s.Shell.Set(shellKey, s)
	s.updatePrompt()
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) updatePrompt() {
	b := s.Session.Board
	if b.Halt.Halted() {
		s.Shell.SetPrompt(fmt.Sprintf("[%s HALTED] > ", b.ID))
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s %s] > ", b.ID, b.Wiring()))
}

// Print prints v as JSON or with format.
func (s *Shell) Print(c *ishell.Context, v interface{}, format string, args ...interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf(format, args...)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Printf("board %s, channels %v, wiring %s\n",
			s.Session.Board.ID, s.Session.Board.ChannelNames(), s.Session.Board.Wiring())
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func channelAndBytes(c *ishell.Context) (string, []byte, bool) {
	if len(c.Args) < 2 {
		c.Err(fmt.Errorf("expect CHANNEL BYTES..."))
		return "", nil, false
	}
	data, err := ParseBytes(c.Args[1:])
	if err != nil {
		c.Err(err)
		return "", nil, false
	}
	return c.Args[0], data, true
}

var (
	// InjectCmd delivers bytes to a receive pin.
	InjectCmd = ishell.Cmd{
		Name:    "inject",
		Aliases: []string{"rx"},
		Help:    "CHANNEL BYTES... (text or 0xNN)",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			name, data, ok := channelAndBytes(c)
			if !ok {
				return
			}
			if err := s.Session.Inject(name, data); err != nil {
				c.Err(err)
			}
			s.updatePrompt()
		},
	}

	// TransmitCmd queues bytes on a channel.
	TransmitCmd = ishell.Cmd{
		Name:    "tx",
		Aliases: []string{"send"},
		Help:    "CHANNEL BYTES... (text or 0xNN)",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			name, data, ok := channelAndBytes(c)
			if !ok {
				return
			}
			n, err := s.Session.Transmit(name, data)
			if err != nil {
				c.Err(fmt.Errorf("%d of %d queued: %v", n, len(data), err))
			}
			s.updatePrompt()
		},
	}

	// StepCmd advances the clock.
	StepCmd = ishell.Cmd{
		Name:    "step",
		Aliases: []string{"tick"},
		Help:    "[N] character times",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			n := 1
			if len(c.Args) > 0 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil || n <= 0 {
					c.Err(fmt.Errorf("invalid count %q", c.Args[0]))
					return
				}
			}
			done := s.Session.Step(n)
			s.Print(c, map[string]int{"steps": n, "shifted": done}, "%d bytes shifted\n", done)
		},
	}

	// DrainCmd runs the clock until nothing moves.
	DrainCmd = ishell.Cmd{
		Name: "drain",
		Help: "step until all queues are empty",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			n := s.Session.Drain()
			s.Print(c, map[string]int{"steps": n}, "%d steps\n", n)
		},
	}

	// WireCmd shows what left on the wire.
	WireCmd = ishell.Cmd{
		Name:    "wire",
		Aliases: []string{"out"},
		Help:    "[CHANNEL] show and clear output",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			names := c.Args
			if len(names) == 0 {
				names = s.Session.Board.ChannelNames()
			}
			out := make(map[string]string)
			for _, name := range names {
				data := s.Session.TakeWire(name)
				out[name] = string(data)
				if !s.OutputJSON {
					c.Printf("%s: %s\n", name, FormatBytes(data))
				}
			}
			if s.OutputJSON {
				s.Print(c, out, "")
			}
		},
	}

	// StateCmd prints channel states.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"stats", "s"},
		Help:    "show channel states and counters",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			states := s.Session.States()
			if s.OutputJSON {
				s.Print(c, states, "")
				return
			}
			for _, st := range states {
				c.Printf("%-5s %-7s %s queue %3d/%-3d armed=%-5v ready=%-5v rx=%-5v queued=%d sent=%d dropped=%d arms=%d\n",
					st.Name, st.State, st.Vector, st.Size, st.Cap, st.Armed, st.Ready, st.RxReady,
					st.Stats.Queued, st.Stats.Sent, st.Stats.Dropped, st.Stats.Arms)
			}
			if err := s.Session.Board.Halt.Err(); err != nil {
				c.Printf("halted: %v\n", err)
			}
		},
	}

	// WiringCmd shows or changes the receive routing.
	WiringCmd = ishell.Cmd{
		Name:    "wiring",
		Aliases: []string{"route"},
		Help:    "[echo|relay|uart-to-spi|spi-to-uart|from:to,...]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				w, err := board.ParseWiring(c.Args[0])
				if err == nil {
					err = s.Session.Board.Wire(w)
				}
				if err != nil {
					c.Err(err)
					return
				}
				s.updatePrompt()
			}
			w := s.Session.Board.Wiring()
			s.Print(c, w, "%s\n", w)
		},
	}

	// EventsCmd prints recorded events.
	EventsCmd = ishell.Cmd{
		Name:    "events",
		Aliases: []string{"ev"},
		Help:    "[N] show the last N events",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			events := s.Session.Recorder.Events()
			if len(c.Args) > 0 {
				if n, err := strconv.Atoi(c.Args[0]); err == nil && n >= 0 && n < len(events) {
					events = events[len(events)-n:]
				}
			}
			if s.OutputJSON {
				s.Print(c, events, "")
				return
			}
			for _, ev := range events {
				c.Printf("%s %-5s %-9s 0x%02x size=%d\n",
					ev.Timestamp().Format("15:04:05.000000"), ev.Channel, ev.Kind, ev.Byte, ev.QueueSize)
			}
		},
	}

	// ResetCmd rebuilds the board.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "rebuild the board, clearing queues and halt",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Session.Reset(); err != nil {
				c.Err(err)
				return
			}
			s.updatePrompt()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	session, err := NewSession(board.NewConfig())
	if err != nil {
		log.Fatalln(err)
	}
	New(session).Run(flag.Args()...)
}
