package link

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/tarm/serial"
)

// DefaultBaud matches the board's UART setting.
const DefaultBaud = 9600

func init() {
	Register("serial", openSerial)
}

// SerialConfig converts a serial:// URL into a port config.
func SerialConfig(u *url.URL) (*serial.Config, error) {
	name := u.Path
	if name == "" {
		name = u.Opaque
	}
	if name == "" {
		name = u.Host
	}
	if name == "" {
		return nil, fmt.Errorf("serial link requires a device name")
	}
	c := &serial.Config{Name: name, Baud: DefaultBaud}
	if val := u.Query().Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("invalid baud %q", val)
		}
		c.Baud = baud
	}
	return c, nil
}

func openSerial(u *url.URL) (io.ReadWriteCloser, error) {
	c, err := SerialConfig(u)
	if err != nil {
		return nil, err
	}
	return serial.OpenPort(c)
}
