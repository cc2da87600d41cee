package dataset

import "github.com/openptp/ptpcore"

// PortDS is the per-port dataset (§3): identity, current state, the three
// logarithmic message intervals, the announce-receipt-timeout multiplier,
// delay mechanism, protocol version and configured delay asymmetry.
type PortDS struct {
	PortIdentity           ptpcore.PortIdentity
	State                  PortState
	LogAnnounceInterval    int8
	LogSyncInterval        int8
	LogMinDelayReqInterval int8
	AnnounceReceiptTimeout uint8 // multiplier; must be >= 2 (§4.1)
	DelayMechanism         DelayMechanism
	VersionNumber          uint8
	DelayAsymmetry         ptpcore.Duration
}

// AnnounceIntervalNanos returns the configured Announce transmission
// interval in nanoseconds, from the IEEE log2-seconds encoding.
func (p PortDS) AnnounceIntervalNanos() int64 {
	return logIntervalToNanos(p.LogAnnounceInterval)
}

// SyncIntervalNanos returns the configured Sync transmission interval in
// nanoseconds.
func (p PortDS) SyncIntervalNanos() int64 {
	return logIntervalToNanos(p.LogSyncInterval)
}

// DelayReqIntervalNanos returns the configured minimum Delay_Req
// transmission interval in nanoseconds.
func (p PortDS) DelayReqIntervalNanos() int64 {
	return logIntervalToNanos(p.LogMinDelayReqInterval)
}

// AnnounceReceiptTimeoutNanos is announceReceiptTimeout x announceInterval
// (§4.1), the duration of silence from the current parent that triggers
// ANNOUNCE_RECEIPT_TIMEOUT.
func (p PortDS) AnnounceReceiptTimeoutNanos() int64 {
	return int64(p.AnnounceReceiptTimeout) * p.AnnounceIntervalNanos()
}

// QualificationTimeoutNanos is the PRE_MASTER hold duration: at least
// stepsRemoved+1 announce intervals (§4.1). stepsRemoved is the value this
// clock would advertise as grandmaster-designate, i.e. 0 unless acting as
// a relay, so the minimum hold is exactly one announce interval.
func (p PortDS) QualificationTimeoutNanos(stepsRemoved uint16) int64 {
	return int64(stepsRemoved+1) * p.AnnounceIntervalNanos()
}

func logIntervalToNanos(logInterval int8) int64 {
	const second = int64(1_000_000_000)
	if logInterval >= 0 {
		return second << uint(logInterval)
	}
	shift := uint(-logInterval)
	if shift >= 63 {
		return 1
	}
	n := second >> shift
	if n < 1 {
		n = 1
	}
	return n
}
