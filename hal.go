package ptpcore

import "context"

// DestinationClass abstracts the multicast/unicast addressing scheme a
// transport uses for PTP traffic, per §6.
type DestinationClass int

const (
	// AllNodes addresses every PTP port on the segment (Announce, Sync,
	// Follow_Up, Delay_Resp in multicast E2E operation).
	AllNodes DestinationClass = iota
	// AllDelayMeasurement addresses the subset of nodes participating in
	// delay measurement (Delay_Req in multicast E2E operation).
	AllDelayMeasurement
)

// TxHandle correlates a send with a later captured transmit timestamp, for
// two-step Sync emission (§4.2, §9 Open Questions).
type TxHandle uint64

// Network is the injected transport capability (C1). Every method is
// non-blocking: Send and TryRecv must return immediately, reporting "not
// ready" rather than waiting.
type Network interface {
	// Send queues buf for transmission to the given destination class and
	// returns a handle usable with CaptureTxTimestamp for two-step
	// correlation. It does not block on the network actually sending.
	Send(buf []byte, dest DestinationClass) (TxHandle, error)

	// TryRecv returns the next received datagram, its ingress timestamp,
	// and the identity of the sending port, or ok=false if nothing is
	// pending.
	TryRecv() (buf []byte, rx Timestamp, srcPort PortIdentity, ok bool)

	// MTU returns the maximum transmittable PTP message size on this
	// transport.
	MTU() int
}

// Timestamping exposes transmit-timestamp capture for two-step Sync
// emission; receive timestamps are delivered inline by Network.TryRecv.
type Timestamping interface {
	// CaptureTxTimestamp returns the precise origin timestamp for a
	// previously sent message identified by handle, or ok=false if the
	// hardware/software capture has not completed yet.
	CaptureTxTimestamp(handle TxHandle) (ts Timestamp, ok bool)
}

// Clock is the injected system-clock capability (C1).
type Clock interface {
	// Now returns the current instant on the monotonic PTP timescale.
	Now() Timestamp

	// AdjustFrequency applies a frequency correction in parts-per-billion,
	// signed. Magnitude must not exceed FrequencyBound().
	AdjustFrequency(partsPerBillion int32) error

	// StepPhase steps the clock by deltaNanos immediately (a phase jump,
	// not a frequency trim).
	StepPhase(deltaNanos int64) error

	// FrequencyBound returns the maximum |frequency adjustment| the
	// hardware/OS supports, in parts-per-billion.
	FrequencyBound() uint32
}

// TimerKind distinguishes the timers the port state machine and servo
// arm, so a single Timer implementation can multiplex them.
type TimerKind int

const (
	TimerAnnounceReceipt TimerKind = iota
	TimerAnnounceSend
	TimerSyncSend
	TimerQualification
	TimerDelayReq
	TimerEstimatorCeiling
)

// TimerHandle identifies one armed timer instance.
type TimerHandle uint64

// Timer is the injected periodic/deadline capability (C1). Deadlines are
// absolute monotonic instants. Arm takes no existing handle: each call
// schedules a separate firing, and Cancel is the only way to remove one
// that is already armed (§5).
type Timer interface {
	// Arm schedules kind to fire at deadline (monotonic ns since an
	// arbitrary epoch meaningful only to this Timer and its Clock). The
	// returned handle identifies this firing to Cancel and in Expired.
	Arm(kind TimerKind, deadlineMonotonicNanos int64) TimerHandle

	// Cancel de-schedules handle. Canceling an unknown or already-fired
	// handle is a no-op.
	Cancel(handle TimerHandle)

	// Expired drains and returns the timers that have fired since the
	// last call. It must be called once per tick (§5).
	Expired() []TimerHandle
}

// HAL bundles the four injected capabilities an engine is constructed
// with. It carries no behavior of its own.
type HAL struct {
	Network      Network
	Timestamping Timestamping
	Clock        Clock
	Timer        Timer
}

// Ctx is a convenience alias so HAL method signatures that need
// cancellation (e.g. reference implementations backed by real sockets)
// can share the standard library's context without the core engine
// importing net or depending on any particular transport.
type Ctx = context.Context
