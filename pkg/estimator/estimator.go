// Package estimator correlates the four E2E event-message timestamps of a
// sync cycle — t1 (Sync origin), t2 (Sync ingress), t3 (Delay_Req
// egress), t4 (Delay_Req ingress at master) — into an offsetFromMaster
// and meanPathDelay pair (§4.3). Correlation is keyed by sequenceId over
// a small fixed-capacity slot table, matching §9's "pending-timestamp
// correlation maps must be expressible without heap allocation".
package estimator

import (
	"fmt"

	"github.com/rs/xid"

	"github.com/openptp/ptpcore"
)

// Result is one completed cycle's estimate, tagged with an xid so the
// port state machine and telemetry can log a single correlation ID
// across the whole Sync/Follow_Up/Delay_Req/Delay_Resp exchange — the
// same "opaque correlation label" role the teacher gives xid.New() for
// each TCP connection it instruments.
type Result struct {
	SequenceID       uint16
	OffsetFromMaster ptpcore.Duration
	MeanPathDelay    ptpcore.Duration
	CycleID          xid.ID
}

type cycleSlot struct {
	inUse                          bool
	sequenceID                     uint16
	t1, t2, t3, t4                 ptpcore.Timestamp
	haveT1, haveT2, haveT3, haveT4 bool
	correctionTotal                ptpcore.Duration
	skewTolerance                  ptpcore.Duration
	minNonZeroDelay                ptpcore.Duration
	deadline                       ptpcore.Timestamp
	id                             xid.ID
}

// Estimator holds in-flight sync cycles. Capacity bounds how many
// cycles may be correlating concurrently (ordinarily 1-2, to tolerate a
// Delay_Resp arriving after the next cycle's Sync).
type Estimator struct {
	slots           []cycleSlot
	ceilingNanos    int64
	skewTolerance   ptpcore.Duration
	minNonZeroDelay ptpcore.Duration
}

// Config bundles the tunables of §4.3 / §6's configuration table that
// this estimator needs.
type Config struct {
	Capacity        int
	CeilingNanos    int64 // per-cycle ceiling; New applies no default (pkg/engine supplies 10 x syncInterval)
	SkewTolerance   ptpcore.Duration
	MinNonZeroDelay ptpcore.Duration // 0 disables the ImplausibleTimestamps flag on t4==t3
}

// New constructs an Estimator per cfg.
func New(cfg Config) (*Estimator, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("%w: estimator capacity must be >= 1", ptpcore.ErrConfigConflict)
	}
	return &Estimator{
		slots:           make([]cycleSlot, cfg.Capacity),
		ceilingNanos:    cfg.CeilingNanos,
		skewTolerance:   cfg.SkewTolerance,
		minNonZeroDelay: cfg.MinNonZeroDelay,
	}, nil
}

func (e *Estimator) findOrAllocate(seq uint16, now ptpcore.Timestamp) (*cycleSlot, error) {
	for i := range e.slots {
		if e.slots[i].inUse && e.slots[i].sequenceID == seq {
			return &e.slots[i], nil
		}
	}
	for i := range e.slots {
		if !e.slots[i].inUse {
			e.slots[i] = cycleSlot{
				inUse:           true,
				sequenceID:      seq,
				deadline:        now.Add(ptpcore.Duration(e.ceilingNanos)),
				skewTolerance:   e.skewTolerance,
				minNonZeroDelay: e.minNonZeroDelay,
				id:              xid.New(),
			}
			return &e.slots[i], nil
		}
	}
	return nil, ptpcore.ErrResourceUnavailable
}

func (e *Estimator) release(s *cycleSlot) {
	*s = cycleSlot{}
}

// Reset abandons every in-flight cycle, e.g. on a BMCA-driven parent
// change where correlating a stamp against the old parent's timescale no
// longer makes sense.
func (e *Estimator) Reset() {
	for i := range e.slots {
		e.release(&e.slots[i])
	}
}

// RecordSyncOrigin stores t1 for sequence seq — the precise origin
// timestamp, whether read directly from a one-step Sync or from the
// paired Follow_Up.
func (e *Estimator) RecordSyncOrigin(seq uint16, t1 ptpcore.Timestamp, correction ptpcore.Duration, now ptpcore.Timestamp) error {
	s, err := e.findOrAllocate(seq, now)
	if err != nil {
		return err
	}
	s.t1, s.haveT1 = t1, true
	s.correctionTotal += correction
	return nil
}

// RecordSyncIngress stores t2, the local rx timestamp of the Sync.
func (e *Estimator) RecordSyncIngress(seq uint16, t2 ptpcore.Timestamp, now ptpcore.Timestamp) error {
	s, err := e.findOrAllocate(seq, now)
	if err != nil {
		return err
	}
	s.t2, s.haveT2 = t2, true
	return nil
}

// RecordDelayReqEgress stores t3, this port's Delay_Req tx timestamp.
func (e *Estimator) RecordDelayReqEgress(seq uint16, t3 ptpcore.Timestamp, now ptpcore.Timestamp) error {
	s, err := e.findOrAllocate(seq, now)
	if err != nil {
		return err
	}
	s.t3, s.haveT3 = t3, true
	return nil
}

// RecordDelayRespIngress stores t4 from the master's Delay_Resp and, if
// the cycle is now complete, computes and returns its Result.
//
// Return shape: ok reports whether a cycle completed at all. When ok is
// true, err may still be non-nil and equal ptpcore.ErrImplausibleTimestamps
// — the boundary case of t4 == t3 (§8: "accepted but flagged
// ImplausibleTimestamps if the configured minimum non-zero delay is
// set"), where the Result is still delivered alongside the
// flag. A hard violation (t4 < t3, or t2 below the skew-tolerance floor)
// discards the sample outright: ok is false and err is
// ErrImplausibleTimestamps. The slot is freed in every completing case,
// so a discarded sample never wedges a slot for the rest of the cycle's
// ceiling.
func (e *Estimator) RecordDelayRespIngress(seq uint16, t4 ptpcore.Timestamp, correction ptpcore.Duration, now ptpcore.Timestamp) (Result, bool, error) {
	s, err := e.findOrAllocate(seq, now)
	if err != nil {
		return Result{}, false, err
	}
	s.t4, s.haveT4 = t4, true
	s.correctionTotal += correction

	if !(s.haveT1 && s.haveT2 && s.haveT3 && s.haveT4) {
		return Result{}, false, nil
	}

	res, flagged, reject := finalize(s)
	e.release(s)
	if reject {
		return Result{}, false, ptpcore.ErrImplausibleTimestamps
	}
	if flagged {
		return res, true, ptpcore.ErrImplausibleTimestamps
	}
	return res, true, nil
}

// finalize computes the cycle's estimate. reject means the sample must
// be discarded entirely; flagged means the numeric result is still
// meaningful but should be reported alongside ImplausibleTimestamps.
func finalize(s *cycleSlot) (res Result, flagged, reject bool) {
	t2MinusT1 := s.t2.Sub(s.t1)
	t4MinusT3 := s.t4.Sub(s.t3)

	if int64(t2MinusT1) < -int64(s.skewTolerance) {
		return Result{}, false, true
	}
	if t4MinusT3 < 0 {
		return Result{}, false, true
	}
	if t4MinusT3 == 0 && s.minNonZeroDelay > 0 {
		flagged = true
	}

	meanPathDelay := (t2MinusT1 + t4MinusT3 - s.correctionTotal) / 2
	offset := t2MinusT1 - meanPathDelay - s.correctionTotal

	return Result{
		SequenceID:       s.sequenceID,
		OffsetFromMaster: offset,
		MeanPathDelay:    meanPathDelay,
		CycleID:          s.id,
	}, flagged, false
}

// ExpireOlderThan frees and reports every in-flight cycle whose deadline
// has passed as of now, one ErrEstimatorTimeout per abandoned
// sequenceId (§4.3: "if any stamp is missing at a configurable ceiling
// ... the cycle is abandoned and an EstimatorTimeout event is raised").
func (e *Estimator) ExpireOlderThan(now ptpcore.Timestamp) []uint16 {
	var expired []uint16
	for i := range e.slots {
		s := &e.slots[i]
		if s.inUse && now.Sub(s.deadline) > 0 {
			expired = append(expired, s.sequenceID)
			e.release(s)
		}
	}
	return expired
}
