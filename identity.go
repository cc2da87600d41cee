// Package ptpcore implements the core of an IEEE 1588-2019 Precision Time
// Protocol engine: the protocol state machines, message lifecycle,
// grandmaster election, offset/delay estimation and disciplined frequency
// correction. Networking, timestamping hardware and system clock control
// are injected capabilities; see hal.go.
package ptpcore

import (
	"encoding/binary"
	"fmt"
)

// ClockIdentity is an 8-octet EUI-64-like unique identifier for a clock.
type ClockIdentity uint64

// String renders the identity as colon-separated hex octets, e.g.
// "aa:bb:cc:ff:fe:dd:ee:ff".
func (c ClockIdentity) String() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(c))
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// PortNumber identifies a port within a clock, 1..65535. 0 is never valid.
type PortNumber uint16

// PortIdentity uniquely identifies a port network-wide.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    PortNumber
}

func (p PortIdentity) String() string {
	return fmt.Sprintf("%s-%d", p.ClockIdentity, p.PortNumber)
}

// Less provides the numeric ordering BMCA's topology tiebreak (§4.4 step 8)
// requires over sender/receiver port identities: clock identity dominates,
// port number breaks ties.
func (p PortIdentity) Less(o PortIdentity) bool {
	if p.ClockIdentity != o.ClockIdentity {
		return p.ClockIdentity < o.ClockIdentity
	}
	return p.PortNumber < o.PortNumber
}

// DomainNumber is the PTP domain, 0..127. Messages carrying any other
// domain number are dropped at ingress before any state work (§4.1).
type DomainNumber uint8

// MaxDomainNumber is the highest domain number a conforming message may
// carry; values above this are rejected by the codec (§4.2).
const MaxDomainNumber DomainNumber = 127
