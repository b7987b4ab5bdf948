package comm

import (
	"fmt"
	"strings"
)

// OverflowPolicy decides what Transmit does when the queue is full.
type OverflowPolicy int

const (
	// PolicyFailStop disables all interrupts and halts the system.
	PolicyFailStop OverflowPolicy = iota
	// PolicyReport drops the new byte and returns an OverflowError.
	PolicyReport
	// PolicyDropOldest discards the oldest queued byte to make room.
	PolicyDropOldest
)

var policyNames = map[OverflowPolicy]string{
	PolicyFailStop:   "fail-stop",
	PolicyReport:     "report",
	PolicyDropOldest: "drop-oldest",
}

// String implements fmt.Stringer.
func (p OverflowPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParseOverflowPolicy parses a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return PolicyFailStop, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}
