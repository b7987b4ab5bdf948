// Package env identifies the machine the relay runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// IDLength is the length of a board id derived from the machine id.
const IDLength = 12

const appID = "robotalks-relay"

// BoardID derives a stable board id from the machine id, hashed with the
// application id so the raw machine id never leaves the host. It falls back
// to the hostname when the machine id is unavailable.
func BoardID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil && len(id) >= IDLength {
		return id[:IDLength]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, _ := os.Hostname(); host != "" {
		return host
	}
	return "relay"
}
