package board

import (
	"fmt"
	"sort"
	"strings"
)

// Channel names.
const (
	ChannelUART = "uart"
	ChannelSPI  = "spi"
)

// Wiring maps a receiving channel to the channel its bytes are sent on.
type Wiring map[string]string

// Presets are the named wirings.
var Presets = map[string]Wiring{
	"echo":        {ChannelUART: ChannelUART, ChannelSPI: ChannelSPI},
	"relay":       {ChannelUART: ChannelSPI, ChannelSPI: ChannelUART},
	"uart-to-spi": {ChannelUART: ChannelSPI},
	"spi-to-uart": {ChannelSPI: ChannelUART},
}

// ParseWiring accepts a preset name or a list of from:to pairs, e.g.
// "uart:spi,spi:spi".
func ParseWiring(str string) (Wiring, error) {
	if w, ok := Presets[strings.ToLower(str)]; ok {
		return w.Clone(), nil
	}
	w := make(Wiring)
	for _, pair := range strings.Split(str, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid wiring %q", pair)
		}
		from, to := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if _, exist := w[from]; exist {
			return nil, fmt.Errorf("channel %q wired twice", from)
		}
		w[from] = to
	}
	if len(w) == 0 {
		return nil, fmt.Errorf("empty wiring %q", str)
	}
	return w, nil
}

// Clone copies the wiring.
func (w Wiring) Clone() Wiring {
	c := make(Wiring, len(w))
	for from, to := range w {
		c[from] = to
	}
	return c
}

// String formats the wiring as sorted from:to pairs.
func (w Wiring) String() string {
	pairs := make([]string, 0, len(w))
	for from, to := range w {
		pairs = append(pairs, from+":"+to)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
