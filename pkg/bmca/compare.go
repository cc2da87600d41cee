// Package bmca implements the Best Master Clock Algorithm (§4.4): a pure
// dataset comparison and a selection procedure over a foreign-master
// list snapshot. Every function here is deterministic and allocation-free
// on its hot path, matching §4.4's "pure function of (foreign list
// snapshot, DefaultDS, PortDS)" determinism requirement.
package bmca

import "github.com/openptp/ptpcore/pkg/dataset"

// Outcome is the result of comparing two PriorityVectors (§4.4a).
type Outcome int

const (
	ABetter Outcome = iota
	ABetterByTopology
	Equal
	BBetterByTopology
	BBetter
)

func (o Outcome) String() string {
	switch o {
	case ABetter:
		return "A_BETTER"
	case ABetterByTopology:
		return "A_BETTER_BY_TOPOLOGY"
	case Equal:
		return "EQUAL"
	case BBetterByTopology:
		return "B_BETTER_BY_TOPOLOGY"
	case BBetter:
		return "B_BETTER"
	default:
		return "UNKNOWN"
	}
}

// Compare implements §4.4(a)'s lexicographic dataset comparison: the
// grandmaster-level fields (priority1, clockClass, clockAccuracy,
// offsetScaledLogVariance, priority2, grandmasterIdentity) dominate;
// ties at the grandmaster level fall through to the topology-level
// comparison of stepsRemoved, then sender/receiver port identity.
func Compare(a, b dataset.PriorityVector) Outcome {
	if a.GrandmasterIdentity == b.GrandmasterIdentity {
		return compareTopology(a, b)
	}

	if o, decided := compareUint(a.Priority1, b.Priority1); decided {
		return o
	}
	if o, decided := compareUint(a.ClockQuality.ClockClass, b.ClockQuality.ClockClass); decided {
		return o
	}
	if o, decided := compareUint(a.ClockQuality.ClockAccuracy, b.ClockQuality.ClockAccuracy); decided {
		return o
	}
	if o, decided := compareUint(a.ClockQuality.OffsetScaledLogVariance, b.ClockQuality.OffsetScaledLogVariance); decided {
		return o
	}
	if o, decided := compareUint(a.Priority2, b.Priority2); decided {
		return o
	}
	if a.GrandmasterIdentity < b.GrandmasterIdentity {
		return ABetter
	}
	return BBetter
}

// compareTopology runs §4.4(a) step 8: with matching grandmaster
// identities, a stepsRemoved difference greater than 1 is a dataset-level
// result (the shorter path wins outright); otherwise it is a
// topology-level tiebreak over sender then receiver port identity.
func compareTopology(a, b dataset.PriorityVector) Outcome {
	diff := int(a.StepsRemoved) - int(b.StepsRemoved)
	if diff > 1 {
		return BBetter
	}
	if diff < -1 {
		return ABetter
	}

	if a.SenderPortIdentity != b.SenderPortIdentity {
		if a.SenderPortIdentity.Less(b.SenderPortIdentity) {
			return ABetterByTopology
		}
		return BBetterByTopology
	}
	if a.ReceiverPortIdentity != b.ReceiverPortIdentity {
		if a.ReceiverPortIdentity.Less(b.ReceiverPortIdentity) {
			return ABetterByTopology
		}
		return BBetterByTopology
	}
	return Equal
}

type ordered interface {
	~uint8 | ~uint16
}

func compareUint[T ordered](a, b T) (Outcome, bool) {
	if a == b {
		return Equal, false
	}
	if a < b {
		return ABetter, true
	}
	return BBetter, true
}
