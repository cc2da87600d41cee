package dataset

import "github.com/openptp/ptpcore"

// DefaultDS is created at clock initialization and is mutable only via
// management or BMCA-driven parent changes; ClockIdentity is immutable
// after Init returns (§3 invariant).
type DefaultDS struct {
	TwoStepFlag   bool
	ClockIdentity ptpcore.ClockIdentity
	NumberPorts   uint16
	ClockQuality  ClockQuality
	Priority1     uint8
	Priority2     uint8
	DomainNumber  ptpcore.DomainNumber
	SlaveOnly     bool
}

// Init populates a DefaultDS from the configuration supplied at
// construction. ClockIdentity must not change after this call (§3).
func (d *DefaultDS) Init(identity ptpcore.ClockIdentity, numberPorts uint16, quality ClockQuality, priority1, priority2 uint8, domain ptpcore.DomainNumber, slaveOnly, twoStep bool) {
	d.ClockIdentity = identity
	d.NumberPorts = numberPorts
	d.ClockQuality = quality
	d.Priority1 = priority1
	d.Priority2 = priority2
	d.DomainNumber = domain
	d.SlaveOnly = slaveOnly
	d.TwoStepFlag = twoStep
}

// AsPriorityVector builds the PriorityVector this clock currently
// advertises for itself — BMCA's "D0" in §4.4(b).
func (d DefaultDS) AsPriorityVector(selfPort ptpcore.PortIdentity) PriorityVector {
	return PriorityVector{
		Priority1:            d.Priority1,
		ClockQuality:         d.ClockQuality,
		Priority2:            d.Priority2,
		GrandmasterIdentity:  d.ClockIdentity,
		StepsRemoved:         0,
		SenderPortIdentity:   selfPort,
		ReceiverPortIdentity: selfPort,
	}
}

// ParentDS is mutated only when BMCA's outcome changes the parent (§3, §4.4).
type ParentDS struct {
	ParentPortIdentity                    ptpcore.PortIdentity
	GrandmasterIdentity                   ptpcore.ClockIdentity
	GrandmasterClockQuality               ClockQuality
	GrandmasterPriority1                  uint8
	GrandmasterPriority2                  uint8
	ObservedParentOffsetScaledLogVariance uint16
}

// AdoptFromVector atomically updates ParentDS from a winning foreign
// PriorityVector (§4.4(b): "adopt Ebest as parent, update ParentDS...
// atomically").
func (p *ParentDS) AdoptFromVector(v PriorityVector) {
	p.ParentPortIdentity = v.SenderPortIdentity
	p.GrandmasterIdentity = v.GrandmasterIdentity
	p.GrandmasterClockQuality = v.ClockQuality
	p.GrandmasterPriority1 = v.Priority1
	p.GrandmasterPriority2 = v.Priority2
	p.ObservedParentOffsetScaledLogVariance = v.ClockQuality.OffsetScaledLogVariance
}

// TimeSource enumerates the origin of a clock's time, carried in Announce
// messages and copied into TimePropertiesDS on selection (§3).
type TimeSource uint8

const (
	TimeSourceAtomicClock      TimeSource = 0x10
	TimeSourceGPS              TimeSource = 0x20
	TimeSourceTerrestrialRadio TimeSource = 0x30
	TimeSourcePTP              TimeSource = 0x40
	TimeSourceNTP              TimeSource = 0x50
	TimeSourceHandSet          TimeSource = 0x60
	TimeSourceOther            TimeSource = 0x90
	TimeSourceInternalOsc      TimeSource = 0xA0
)

// TimePropertiesDS is updated from the Announce of the selected parent
// (§3). It is otherwise read-only.
type TimePropertiesDS struct {
	CurrentUTCOffset      int16
	CurrentUTCOffsetValid bool
	Leap59                bool
	Leap61                bool
	TimeTraceable         bool
	FrequencyTraceable    bool
	PTPTimescale          bool
	TimeSource            TimeSource
}

// CurrentDS is updated by the estimator and servo (§3). pkg/port sets
// StepsRemoved to the adopted parent's stepsRemoved + 1 when a SLAVE
// decision adopts a new parent; nothing resets it to 0 when a port
// becomes MASTER.
type CurrentDS struct {
	StepsRemoved     uint16
	OffsetFromMaster ptpcore.Duration
	MeanPathDelay    ptpcore.Duration
}

// IsGrandmaster reports the invariant of §3/§8.7: this clock is the
// grandmaster iff its identity matches ParentDS's grandmaster identity.
func IsGrandmaster(def DefaultDS, parent ParentDS) bool {
	return def.ClockIdentity == parent.GrandmasterIdentity
}
