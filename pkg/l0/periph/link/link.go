// Package link opens byte streams for stream peripherals from URLs:
//
//	serial:///dev/ttyUSB0?baud=9600
//	ws://host:port/path?origin=http://localhost/
//	tcp://host:port
package link

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/golang/glog"
)

var (
	// ErrUnknownScheme indicates no opener is registered for the URL scheme.
	ErrUnknownScheme = errors.New("unknown link scheme")
)

// Opener opens a link from a parsed URL.
type Opener func(*url.URL) (io.ReadWriteCloser, error)

var (
	openers     = make(map[string]Opener)
	openersLock sync.RWMutex
)

// Register installs an Opener for a scheme.
func Register(scheme string, opener Opener) {
	openersLock.Lock()
	openers[scheme] = opener
	openersLock.Unlock()
}

// Schemes lists registered schemes.
func Schemes() []string {
	openersLock.RLock()
	defer openersLock.RUnlock()
	schemes := make([]string, 0, len(openers))
	for s := range openers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open opens the link described by rawURL.
func Open(rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %v", err)
	}
	openersLock.RLock()
	opener := openers[u.Scheme]
	openersLock.RUnlock()
	if opener == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}
	rw, err := opener(u)
	if err != nil {
		return nil, err
	}
	glog.Infof("link %s opened", rawURL)
	return rw, nil
}
