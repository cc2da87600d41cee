// Package dataset holds the invariant-bearing value types of §3: the
// per-clock and per-port datasets, the foreign-master list, and the
// priority vector compared by BMCA. Every type here is a plain value —
// no method allocates on the steady-state path.
package dataset

import "github.com/openptp/ptpcore"

// ClockQuality is the quality triple carried in Announce messages and
// compared by BMCA (§3, §4.4).
type ClockQuality struct {
	ClockClass              uint8  `ptp:"name=clock_class,help=Clock class advertised in Announce messages."`
	ClockAccuracy           uint8  `ptp:"name=clock_accuracy,help=Clock accuracy enumeration advertised in Announce messages."`
	OffsetScaledLogVariance uint16 `ptp:"name=offset_scaled_log_variance,help=Scaled log variance of the clock's offset estimate."`
}

// PriorityVector is the ordered tuple BMCA's dataset comparison (§4.4)
// operates on — either this clock's own advertised vector, or a foreign
// master's, reconstructed from its most recent qualified Announce.
type PriorityVector struct {
	Priority1            uint8 `ptp:"name=priority1"`
	ClockQuality         ClockQuality
	Priority2            uint8                 `ptp:"name=priority2"`
	GrandmasterIdentity  ptpcore.ClockIdentity `ptp:"name=grandmaster_identity"`
	StepsRemoved         uint16                `ptp:"name=steps_removed"`
	SenderPortIdentity   ptpcore.PortIdentity
	ReceiverPortIdentity ptpcore.PortIdentity
}

// Equal reports whether two vectors compare bit-for-bit equal — used by
// BMCA's EQUAL outcome (§4.4) and by the idempotence property (§8.3).
func (v PriorityVector) Equal(o PriorityVector) bool {
	return v == o
}
