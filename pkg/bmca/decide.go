package bmca

import (
	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
)

// Decision is the outcome of the state decision procedure (§4.4b).
type Decision int

const (
	DecisionListening Decision = iota
	DecisionMaster
	DecisionSlave
	DecisionPassive
)

func (d Decision) String() string {
	switch d {
	case DecisionListening:
		return "LISTENING"
	case DecisionMaster:
		return "MASTER"
	case DecisionSlave:
		return "SLAVE"
	case DecisionPassive:
		return "PASSIVE"
	default:
		return "UNKNOWN"
	}
}

// Result carries the decision and, for DecisionSlave, the winning
// foreign vector to adopt as parent.
type Result struct {
	Decision Decision
	Ebest    dataset.PriorityVector
	// HasEbest is true only for DecisionSlave, the one decision that
	// carries Ebest.
	HasEbest bool
}

// Best returns the best-ranked entry among qualified foreign entries, or
// ok=false if none qualify.
func Best(qualified []dataset.ForeignMasterEntry) (dataset.ForeignMasterEntry, bool) {
	if len(qualified) == 0 {
		return dataset.ForeignMasterEntry{}, false
	}
	best := qualified[0]
	for _, e := range qualified[1:] {
		if o := Compare(e.Vector, best.Vector); o == ABetter || o == ABetterByTopology {
			best = e
		}
	}
	return best, true
}

// Decide runs §4.4(b)'s state decision procedure: it compares this
// clock's own advertised vector (D0) against Ebest, the best-ranked
// qualified foreign entry on this port, yielding MASTER, SLAVE or
// PASSIVE. With no qualified foreign entry, D0 is compared only against
// itself and the result is MASTER; a slave-only caller maps that to
// LISTENING. self is this port's own identity, used only to
// distinguish an EQUAL outcome against a genuinely distinct foreign
// (PASSIVE) from the degenerate case of seeing this port's own Announce
// looped back (MASTER) — the comparison itself never special-cases self.
func Decide(self ptpcore.PortIdentity, d0 dataset.PriorityVector, qualified []dataset.ForeignMasterEntry) Result {
	ebest, ok := Best(qualified)
	if !ok {
		return Result{Decision: DecisionMaster}
	}

	switch Compare(d0, ebest.Vector) {
	case ABetter, ABetterByTopology:
		return Result{Decision: DecisionMaster}
	case BBetter, BBetterByTopology:
		return Result{Decision: DecisionSlave, Ebest: ebest.Vector, HasEbest: true}
	default: // Equal
		if ebest.Sender == self {
			return Result{Decision: DecisionMaster}
		}
		return Result{Decision: DecisionPassive}
	}
}
