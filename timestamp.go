package ptpcore

import "fmt"

// NanosPerSecond is the number of nanoseconds in one second.
const NanosPerSecond = 1_000_000_000

// Timestamp is a PTP timescale instant: whole seconds since the PTP epoch
// plus a nanosecond remainder, matching the wire layout of §3 (48-bit
// seconds, 32-bit nanoseconds). Arithmetic between timestamps is carried
// out in signed 64-bit nanoseconds, which is sufficient for the ~292 year
// range permitted by §3 provided neither operand is further than that from
// the PTP epoch.
type Timestamp struct {
	Seconds     uint64 // occupies the low 48 bits on the wire
	Nanoseconds uint32 // < NanosPerSecond
}

// Duration is a signed nanosecond difference between two Timestamps.
type Duration int64

// Valid reports whether the Nanoseconds field is within [0, NanosPerSecond).
func (t Timestamp) Valid() bool {
	return t.Nanoseconds < NanosPerSecond
}

// AsNanos converts t to a signed nanosecond count relative to the PTP
// epoch. It is the caller's responsibility to ensure t.Seconds is small
// enough that the result doesn't overflow int64 (about 292 years).
func (t Timestamp) AsNanos() int64 {
	return int64(t.Seconds)*NanosPerSecond + int64(t.Nanoseconds)
}

// Sub returns t - o as a signed Duration in nanoseconds.
func (t Timestamp) Sub(o Timestamp) Duration {
	return Duration(t.AsNanos() - o.AsNanos())
}

// Add returns t shifted by d nanoseconds, renormalized so Nanoseconds
// stays within [0, NanosPerSecond).
func (t Timestamp) Add(d Duration) Timestamp {
	total := t.AsNanos() + int64(d)
	sec := total / NanosPerSecond
	nsec := total % NanosPerSecond
	if nsec < 0 {
		nsec += NanosPerSecond
		sec--
	}
	return Timestamp{Seconds: uint64(sec), Nanoseconds: uint32(nsec)}
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanoseconds)
}

// TimestampFromNanos constructs a Timestamp from a signed nanosecond count
// relative to the PTP epoch.
func TimestampFromNanos(n int64) Timestamp {
	sec := n / NanosPerSecond
	nsec := n % NanosPerSecond
	if nsec < 0 {
		nsec += NanosPerSecond
		sec--
	}
	return Timestamp{Seconds: uint64(sec), Nanoseconds: uint32(nsec)}
}
