// Package port implements the per-port protocol state machine of §4.1:
// it wires the codec (pkg/wire), BMCA (pkg/bmca), the delay/offset
// estimator (pkg/estimator) and the servo (pkg/servo) together under a
// single tick() entry point, per §5's single-threaded cooperative
// scheduling model.
package port

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/bmca"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/servo"
	"github.com/openptp/ptpcore/pkg/wire"
)

// maxNetworkFailureStreak bounds how many consecutive HAL network send
// failures a port tolerates before treating the fault as persistent and
// transitioning to FAULTY (§7: "a persistent HalNetwork fault causes the
// port to transition to FAULTY").
const maxNetworkFailureStreak = 3

// Counters are the telemetry surface's per-port counters (§6).
type Counters struct {
	AnnouncesRx     uint64
	SyncsRx         uint64
	BMCASelections  uint64
	BMCAPassiveWins uint64
	OffsetsComputed uint64
	ParseErrors     uint64
	HoldoverEntries uint64
}

// Config bundles everything needed to construct a Port; the PortDS
// fields double as the port's dataset (§3).
type Config struct {
	PortDS                dataset.PortDS
	ForeignMasterCapacity int
	// ForeignMasterWindowMultiplier defaults to 4 when zero (§4.6:
	// "foreign_master_time_window (default 4 x announceInterval)").
	ForeignMasterWindowMultiplier int64
	// EstimatorCeilingNanos defaults to 10 x syncInterval when zero
	// (§4.3).
	EstimatorCeilingNanos int64
	Delay                 DelayMechanism
}

type pendingSample struct {
	offsetNanos int64
}

type pendingFollowUp struct {
	seq uint16
	tx  ptpcore.TxHandle
}

// Port is one port's state machine instance (C7).
type Port struct {
	ds dataset.PortDS

	defaultDS *dataset.DefaultDS
	parentDS  *dataset.ParentDS
	timeProps *dataset.TimePropertiesDS
	currentDS *dataset.CurrentDS

	foreign *dataset.ForeignMasterList
	srv     *servo.Servo
	delay   DelayMechanism

	hal ptpcore.HAL

	stats Counters

	foreignWindowMultiplier int64
	estimatorCeilingNanos   int64

	announceSeq uint16
	syncSeq     uint16
	lastSyncSeq uint16 // SequenceID of the most recent Sync accepted from our parent; reused as the Delay_Req's own SequenceID so the estimator can correlate the full cycle under one key

	timerAnnounceReceipt  ptpcore.TimerHandle
	timerAnnounceSend     ptpcore.TimerHandle
	timerSyncSend         ptpcore.TimerHandle
	timerQualification    ptpcore.TimerHandle
	timerDelayReq         ptpcore.TimerHandle
	timerEstimatorCeiling ptpcore.TimerHandle

	bmcaNeeded          bool
	pendingAnnounceSend bool
	pendingSyncSend     bool
	pendingDelayReqSend bool

	pendingSample   *pendingSample
	pendingFollowUp *pendingFollowUp
	lastSampleAt    ptpcore.Timestamp

	networkFailureStreak int

	faultReason error
}

// New constructs a Port in INITIALIZING state.
func New(cfg Config, defaultDS *dataset.DefaultDS, parentDS *dataset.ParentDS, timeProps *dataset.TimePropertiesDS, currentDS *dataset.CurrentDS, srv *servo.Servo, hal ptpcore.HAL) (*Port, error) {
	if cfg.PortDS.AnnounceReceiptTimeout < 2 {
		return nil, fmt.Errorf("%w: announce_receipt_timeout must be >= 2", ptpcore.ErrConfigConflict)
	}
	if cfg.Delay == nil {
		return nil, fmt.Errorf("%w: delay mechanism must be set", ptpcore.ErrConfigConflict)
	}
	foreign, err := dataset.NewForeignMasterList(cfg.ForeignMasterCapacity)
	if err != nil {
		return nil, err
	}

	windowMult := cfg.ForeignMasterWindowMultiplier
	if windowMult == 0 {
		windowMult = 4
	}
	ceiling := cfg.EstimatorCeilingNanos
	if ceiling == 0 {
		ceiling = 10 * cfg.PortDS.SyncIntervalNanos()
	}

	ds := cfg.PortDS
	ds.State = dataset.Initializing
	ds.DelayMechanism = cfg.Delay.Kind()

	return &Port{
		ds:                      ds,
		defaultDS:               defaultDS,
		parentDS:                parentDS,
		timeProps:               timeProps,
		currentDS:               currentDS,
		foreign:                 foreign,
		srv:                     srv,
		delay:                   cfg.Delay,
		hal:                     hal,
		foreignWindowMultiplier: windowMult,
		estimatorCeilingNanos:   ceiling,
	}, nil
}

// State reports the port's current state.
func (p *Port) State() dataset.PortState { return p.ds.State }

// Identity reports the port's identity.
func (p *Port) Identity() ptpcore.PortIdentity { return p.ds.PortIdentity }

// Stats returns an atomic snapshot of this port's telemetry counters
// (§5: "snapshots are atomic value copies, not references into live
// state").
func (p *Port) Stats() Counters { return p.stats }

// FaultReason reports the error that last drove this port into FAULTY,
// or nil if the port has never faulted.
func (p *Port) FaultReason() error { return p.faultReason }

func (p *Port) foreignWindowNanos() int64 {
	return p.foreignWindowMultiplier * p.ds.AnnounceIntervalNanos()
}

// Initialize runs the INITIALIZING -> LISTENING transition (§4.1:
// INITIALIZE_DONE).
func (p *Port) Initialize(now ptpcore.Timestamp) {
	if p.ds.State != dataset.Initializing {
		return
	}
	p.transitionTo(dataset.Listening, now)
}

// Enable runs the DISABLED -> INITIALIZING transition (§4.1:
// DESIGNATED_ENABLED).
func (p *Port) Enable(now ptpcore.Timestamp) {
	if p.ds.State != dataset.Disabled {
		return
	}
	p.transitionTo(dataset.Initializing, now)
}

// Disable transitions the port to DISABLED from any state (§4.1:
// DESIGNATED_DISABLED).
func (p *Port) Disable(now ptpcore.Timestamp) {
	p.transitionTo(dataset.Disabled, now)
}

// Fault transitions the port to FAULTY (§4.1: any state -> FAULTY on
// FAULT_DETECTED).
func (p *Port) Fault(now ptpcore.Timestamp, reason error) {
	p.faultReason = reason
	p.transitionTo(dataset.Faulty, now)
}

// ClearFault runs the FAULTY -> INITIALIZING transition (§4.1:
// FAULT_CLEARED).
func (p *Port) ClearFault(now ptpcore.Timestamp) {
	if p.ds.State != dataset.Faulty {
		return
	}
	p.faultReason = nil
	p.transitionTo(dataset.Initializing, now)
}

// transitionTo moves the port to newState, running the entry side
// effects §4.1 attaches to each state (timer arming/cancellation,
// foreign-list clearing, servo reset).
func (p *Port) transitionTo(newState dataset.PortState, now ptpcore.Timestamp) {
	old := p.ds.State
	if old == newState {
		return
	}
	logrus.Infof("port %s: %s -> %s", p.ds.PortIdentity, old, newState)

	switch newState {
	case dataset.Listening:
		p.foreign.Clear()
		p.cancelTimer(&p.timerAnnounceSend)
		p.cancelTimer(&p.timerSyncSend)
		p.cancelTimer(&p.timerQualification)
		p.cancelTimer(&p.timerDelayReq)
		p.armAnnounceReceiptTimer(now)
	case dataset.PreMaster:
		p.cancelTimer(&p.timerAnnounceReceipt)
		p.armQualificationTimer(now)
	case dataset.Master:
		p.cancelTimer(&p.timerAnnounceReceipt)
		p.cancelTimer(&p.timerDelayReq)
		p.cancelTimer(&p.timerQualification)
		p.armAnnounceSendTimer(now)
		p.armSyncSendTimer(now)
	case dataset.Uncalibrated:
		p.cancelTimer(&p.timerAnnounceSend)
		p.cancelTimer(&p.timerSyncSend)
		p.srv.Reset()
		p.armAnnounceReceiptTimer(now)
		p.armDelayReqTimer(now)
		p.armEstimatorCeilingTimer(now)
	case dataset.Slave:
		// Timers carry over unchanged from UNCALIBRATED.
	case dataset.Passive:
		p.cancelTimer(&p.timerAnnounceSend)
		p.cancelTimer(&p.timerSyncSend)
		p.cancelTimer(&p.timerDelayReq)
		p.armAnnounceReceiptTimer(now)
	case dataset.Faulty, dataset.Disabled:
		p.cancelAllTimers()
	case dataset.Initializing:
		p.cancelAllTimers()
	}

	p.ds.State = newState
}

func (p *Port) cancelTimer(h *ptpcore.TimerHandle) {
	if *h == 0 {
		return
	}
	p.hal.Timer.Cancel(*h)
	*h = 0
}

func (p *Port) cancelAllTimers() {
	p.cancelTimer(&p.timerAnnounceReceipt)
	p.cancelTimer(&p.timerAnnounceSend)
	p.cancelTimer(&p.timerSyncSend)
	p.cancelTimer(&p.timerQualification)
	p.cancelTimer(&p.timerDelayReq)
	p.cancelTimer(&p.timerEstimatorCeiling)
}

func (p *Port) armAnnounceReceiptTimer(now ptpcore.Timestamp) {
	deadline := now.AsNanos() + p.ds.AnnounceReceiptTimeoutNanos()
	p.timerAnnounceReceipt = p.hal.Timer.Arm(ptpcore.TimerAnnounceReceipt, deadline)
}

func (p *Port) armQualificationTimer(now ptpcore.Timestamp) {
	deadline := now.AsNanos() + p.ds.QualificationTimeoutNanos(p.currentDS.StepsRemoved)
	p.timerQualification = p.hal.Timer.Arm(ptpcore.TimerQualification, deadline)
}

func (p *Port) armAnnounceSendTimer(now ptpcore.Timestamp) {
	deadline := now.AsNanos() + p.ds.AnnounceIntervalNanos()
	p.timerAnnounceSend = p.hal.Timer.Arm(ptpcore.TimerAnnounceSend, deadline)
}

func (p *Port) armSyncSendTimer(now ptpcore.Timestamp) {
	deadline := now.AsNanos() + p.ds.SyncIntervalNanos()
	p.timerSyncSend = p.hal.Timer.Arm(ptpcore.TimerSyncSend, deadline)
}

func (p *Port) armDelayReqTimer(now ptpcore.Timestamp) {
	deadline := now.AsNanos() + p.ds.DelayReqIntervalNanos()
	p.timerDelayReq = p.hal.Timer.Arm(ptpcore.TimerDelayReq, deadline)
}

func (p *Port) armEstimatorCeilingTimer(now ptpcore.Timestamp) {
	deadline := now.AsNanos() + p.estimatorCeilingNanos
	p.timerEstimatorCeiling = p.hal.Timer.Arm(ptpcore.TimerEstimatorCeiling, deadline)
}

// Tick drives one pass of the port state machine, in the exact order
// §5 specifies: (1) expire timers, (2) drain the receive queue, (3) run
// BMCA if a qualifying change occurred, (4) emit outbound messages, (5)
// run the servo if a new offset sample is ready.
func (p *Port) Tick(now ptpcore.Timestamp) {
	switch p.ds.State {
	case dataset.Faulty, dataset.Disabled, dataset.Initializing:
		return
	}

	p.bmcaNeeded = false

	for _, h := range p.hal.Timer.Expired() {
		p.handleTimerFired(h, now)
	}

	for {
		buf, rx, _, ok := p.hal.Network.TryRecv()
		if !ok {
			break
		}
		p.handleIncoming(buf, rx, now)
	}

	if p.bmcaNeeded {
		p.runBMCA(now)
	}

	p.emitOutbound(now)

	if p.pendingSample != nil {
		p.runServo(now)
	}
}

func (p *Port) handleTimerFired(h ptpcore.TimerHandle, now ptpcore.Timestamp) {
	switch h {
	case p.timerAnnounceReceipt:
		p.bmcaNeeded = true
		p.armAnnounceReceiptTimer(now)
	case p.timerQualification:
		if p.ds.State == dataset.PreMaster {
			p.transitionTo(dataset.Master, now)
		}
	case p.timerAnnounceSend:
		p.pendingAnnounceSend = true
		p.armAnnounceSendTimer(now)
	case p.timerSyncSend:
		p.pendingSyncSend = true
		p.armSyncSendTimer(now)
	case p.timerDelayReq:
		p.pendingDelayReqSend = true
		p.armDelayReqTimer(now)
	case p.timerEstimatorCeiling:
		for range p.delay.ExpireOlderThan(now) {
			logrus.Warnf("port %s: estimator cycle abandoned at ceiling", p.ds.PortIdentity)
		}
		p.armEstimatorCeilingTimer(now)
	}
}

func (p *Port) runBMCA(now ptpcore.Timestamp) {
	windowNanos := p.foreignWindowNanos()
	p.foreign.EvictExpired(now, windowNanos)
	qualified := p.foreign.Qualified(now, windowNanos)
	d0 := p.defaultDS.AsPriorityVector(p.ds.PortIdentity)

	result := bmca.Decide(p.ds.PortIdentity, d0, qualified)
	p.stats.BMCASelections++

	switch result.Decision {
	case bmca.DecisionMaster:
		if p.defaultDS.SlaveOnly {
			if p.ds.State != dataset.Listening {
				p.transitionTo(dataset.Listening, now)
			}
			return
		}
		if p.ds.State != dataset.PreMaster && p.ds.State != dataset.Master {
			p.transitionTo(dataset.PreMaster, now)
		}
	case bmca.DecisionSlave:
		if p.parentDS.ParentPortIdentity != result.Ebest.SenderPortIdentity {
			p.parentDS.AdoptFromVector(result.Ebest)
			p.currentDS.StepsRemoved = result.Ebest.StepsRemoved + 1
			p.delay.Reset()
			p.srv.Reset()
		}
		if p.ds.State != dataset.Uncalibrated && p.ds.State != dataset.Slave {
			p.transitionTo(dataset.Uncalibrated, now)
		}
	case bmca.DecisionPassive:
		p.stats.BMCAPassiveWins++
		if p.ds.State != dataset.Passive {
			p.transitionTo(dataset.Passive, now)
		}
	case bmca.DecisionListening:
		if p.ds.State != dataset.Listening {
			p.transitionTo(dataset.Listening, now)
		}
	}
}

func (p *Port) handleIncoming(buf []byte, rx ptpcore.Timestamp, now ptpcore.Timestamp) {
	msg, err := wire.DecodeMessage(buf, p.defaultDS.DomainNumber)
	if err != nil {
		p.stats.ParseErrors++
		logrus.Debugf("port %s: dropping malformed message: %v", p.ds.PortIdentity, err)
		return
	}

	switch m := msg.(type) {
	case *wire.AnnounceMessage:
		p.handleAnnounce(m, rx)
	case *wire.SyncMessage:
		p.handleSync(m, rx, now)
	case *wire.FollowUpMessage:
		p.handleFollowUp(m, now)
	case *wire.DelayReqMessage:
		p.handleDelayReq(m, rx)
	case *wire.DelayRespMessage:
		p.handleDelayResp(m, now)
	}
}

func (p *Port) handleAnnounce(m *wire.AnnounceMessage, rx ptpcore.Timestamp) {
	if m.Header.SourcePortIdentity == p.ds.PortIdentity {
		return
	}
	p.stats.AnnouncesRx++
	vec := m.PriorityVector(p.ds.PortIdentity)
	p.foreign.Record(m.Header.SourcePortIdentity, vec, rx)
	p.bmcaNeeded = true
}

func (p *Port) fromParent(src ptpcore.PortIdentity) bool {
	return src == p.parentDS.ParentPortIdentity
}

func (p *Port) handleSync(m *wire.SyncMessage, rx ptpcore.Timestamp, now ptpcore.Timestamp) {
	if m.Header.SourcePortIdentity == p.ds.PortIdentity {
		return
	}
	if p.ds.State != dataset.Uncalibrated && p.ds.State != dataset.Slave {
		return
	}
	if !p.fromParent(m.Header.SourcePortIdentity) {
		return
	}
	p.stats.SyncsRx++

	seq := m.Header.SequenceID
	p.lastSyncSeq = seq
	correction := scaleCorrection(m.Header.CorrectionField)
	if m.Header.FlagField&wire.FlagTwoStep == 0 {
		if err := p.delay.SyncOrigin(seq, m.OriginTimestamp, correction, now); err != nil {
			logrus.Debugf("port %s: sync origin rejected: %v", p.ds.PortIdentity, err)
		}
	}
	if err := p.delay.SyncIngress(seq, rx, now); err != nil {
		logrus.Debugf("port %s: sync ingress rejected: %v", p.ds.PortIdentity, err)
	}
}

func (p *Port) handleFollowUp(m *wire.FollowUpMessage, now ptpcore.Timestamp) {
	if m.Header.SourcePortIdentity == p.ds.PortIdentity {
		return
	}
	if p.ds.State != dataset.Uncalibrated && p.ds.State != dataset.Slave {
		return
	}
	if !p.fromParent(m.Header.SourcePortIdentity) {
		return
	}
	p.lastSyncSeq = m.Header.SequenceID
	correction := scaleCorrection(m.Header.CorrectionField)
	if err := p.delay.SyncOrigin(m.Header.SequenceID, m.PreciseOriginTimestamp, correction, now); err != nil {
		logrus.Debugf("port %s: follow-up origin rejected: %v", p.ds.PortIdentity, err)
	}
}

func (p *Port) handleDelayReq(m *wire.DelayReqMessage, rx ptpcore.Timestamp) {
	if m.Header.SourcePortIdentity == p.ds.PortIdentity {
		return
	}
	if p.ds.State != dataset.Master {
		return
	}
	resp := &wire.DelayRespMessage{
		Header:                 p.newHeader(wire.DelayResp, m.Header.SequenceID, p.ds.LogMinDelayReqInterval),
		ReceiveTimestamp:       rx,
		RequestingPortIdentity: m.Header.SourcePortIdentity,
	}
	p.send(resp, ptpcore.AllNodes, rx)
}

func (p *Port) handleDelayResp(m *wire.DelayRespMessage, now ptpcore.Timestamp) {
	if m.Header.SourcePortIdentity == p.ds.PortIdentity {
		return
	}
	if p.ds.State != dataset.Uncalibrated && p.ds.State != dataset.Slave {
		return
	}
	if m.RequestingPortIdentity != p.ds.PortIdentity {
		return
	}
	if !p.fromParent(m.Header.SourcePortIdentity) {
		return
	}

	correction := scaleCorrection(m.Header.CorrectionField)
	res, ok, err := p.delay.DelayRespIngress(m.Header.SequenceID, m.ReceiveTimestamp, correction, now)
	if err != nil {
		logrus.Debugf("port %s: delay_resp flagged: %v", p.ds.PortIdentity, err)
	}
	if !ok {
		return
	}

	p.stats.OffsetsComputed++
	p.currentDS.OffsetFromMaster = res.OffsetFromMaster
	p.currentDS.MeanPathDelay = res.MeanPathDelay
	p.pendingSample = &pendingSample{offsetNanos: int64(res.OffsetFromMaster)}

	if p.ds.State == dataset.Uncalibrated {
		p.transitionTo(dataset.Slave, now)
	}
}

func (p *Port) emitOutbound(now ptpcore.Timestamp) {
	if p.pendingAnnounceSend {
		if p.ds.State == dataset.Master {
			p.sendAnnounce(now)
		}
		p.pendingAnnounceSend = false
	}
	if p.pendingSyncSend {
		if p.ds.State == dataset.Master {
			p.sendSync(now)
		}
		p.pendingSyncSend = false
	}
	if p.pendingDelayReqSend {
		if p.ds.State == dataset.Uncalibrated || p.ds.State == dataset.Slave {
			p.sendDelayReq(now)
		}
		p.pendingDelayReqSend = false
	}
	if p.pendingFollowUp != nil {
		if ts, ok := p.hal.Timestamping.CaptureTxTimestamp(p.pendingFollowUp.tx); ok {
			p.sendFollowUp(p.pendingFollowUp.seq, ts, now)
			p.pendingFollowUp = nil
		}
	}
}

func (p *Port) newHeader(msgType wire.MessageType, seq uint16, logInterval int8) wire.Header {
	return wire.Header{
		MessageType:        msgType,
		Version:            wire.PackVersion(wire.MajorVersion, 0),
		DomainNumber:       p.defaultDS.DomainNumber,
		SourcePortIdentity: p.ds.PortIdentity,
		SequenceID:         seq,
		LogMessageInterval: logInterval,
	}
}

func (p *Port) send(msg wire.BinaryMarshalerTo, dest ptpcore.DestinationClass, now ptpcore.Timestamp) {
	buf, err := wire.EncodeMessage(msg)
	if err != nil {
		logrus.Errorf("port %s: failed to encode outbound message: %v", p.ds.PortIdentity, err)
		return
	}
	if _, err := p.hal.Network.Send(buf, dest); err != nil {
		logrus.Warnf("port %s: HAL network send failed: %v", p.ds.PortIdentity, err)
		p.onNetworkFault(now, err)
		return
	}
	p.networkFailureStreak = 0
}

func (p *Port) sendEvent(msg wire.BinaryMarshalerTo, dest ptpcore.DestinationClass, now ptpcore.Timestamp) (ptpcore.TxHandle, error) {
	buf, err := wire.EncodeMessage(msg)
	if err != nil {
		return 0, err
	}
	tx, err := p.hal.Network.Send(buf, dest)
	if err != nil {
		p.onNetworkFault(now, err)
		return 0, err
	}
	p.networkFailureStreak = 0
	return tx, nil
}

// onNetworkFault implements §7's HAL error propagation policy: a
// persistent HalNetwork fault transitions the port to FAULTY, mirroring
// onClockFault's handling of ErrHalClock. A streak is required rather
// than faulting on the first failure, since a one-off dropped send does
// not by itself indicate the network path is broken.
func (p *Port) onNetworkFault(now ptpcore.Timestamp, err error) {
	if !errors.Is(err, ptpcore.ErrHalNetwork) {
		return
	}
	p.networkFailureStreak++
	if p.networkFailureStreak < maxNetworkFailureStreak {
		return
	}
	logrus.Errorf("port %s: entering FAULTY after %d consecutive HAL network faults", p.ds.PortIdentity, p.networkFailureStreak)
	p.Fault(now, err)
}

func (p *Port) sendAnnounce(now ptpcore.Timestamp) {
	p.announceSeq++
	msg := &wire.AnnounceMessage{
		Header:                  p.newHeader(wire.Announce, p.announceSeq, p.ds.LogAnnounceInterval),
		OriginTimestamp:         now,
		CurrentUTCOffset:        p.timeProps.CurrentUTCOffset,
		GrandmasterPriority1:    p.defaultDS.Priority1,
		GrandmasterClockQuality: p.defaultDS.ClockQuality,
		GrandmasterPriority2:    p.defaultDS.Priority2,
		GrandmasterIdentity:     p.defaultDS.ClockIdentity,
		StepsRemoved:            0,
		TimeSource:              p.timeProps.TimeSource,
	}
	p.send(msg, ptpcore.AllNodes, now)
}

func (p *Port) sendSync(now ptpcore.Timestamp) {
	p.syncSeq++
	hdr := p.newHeader(wire.Sync, p.syncSeq, p.ds.LogSyncInterval)
	twoStep := p.defaultDS.TwoStepFlag
	if twoStep {
		hdr.FlagField |= wire.FlagTwoStep
	}
	msg := &wire.SyncMessage{Header: hdr, OriginTimestamp: now}

	tx, err := p.sendEvent(msg, ptpcore.AllNodes, now)
	if err != nil {
		logrus.Warnf("port %s: sync send failed: %v", p.ds.PortIdentity, err)
		return
	}
	if !twoStep {
		return
	}
	if ts, ok := p.hal.Timestamping.CaptureTxTimestamp(tx); ok {
		p.sendFollowUp(p.syncSeq, ts, now)
		return
	}
	p.pendingFollowUp = &pendingFollowUp{seq: p.syncSeq, tx: tx}
}

func (p *Port) sendFollowUp(seq uint16, preciseOrigin ptpcore.Timestamp, now ptpcore.Timestamp) {
	msg := &wire.FollowUpMessage{
		Header:                 p.newHeader(wire.FollowUp, seq, p.ds.LogSyncInterval),
		PreciseOriginTimestamp: preciseOrigin,
	}
	p.send(msg, ptpcore.AllNodes, now)
}

// sendDelayReq stamps the Delay_Req with the SequenceID of the most
// recently accepted Sync, not an independently incrementing counter, so
// the estimator can correlate t1/t2 (from that Sync) with t3/t4 (from
// this Delay_Req/Delay_Resp) under a single cycle key (§4.3).
func (p *Port) sendDelayReq(now ptpcore.Timestamp) {
	seq := p.lastSyncSeq
	msg := &wire.DelayReqMessage{
		Header:          p.newHeader(wire.DelayReq, seq, p.ds.LogMinDelayReqInterval),
		OriginTimestamp: now,
	}
	tx, err := p.sendEvent(msg, ptpcore.AllDelayMeasurement, now)
	if err != nil {
		logrus.Warnf("port %s: delay_req send failed: %v", p.ds.PortIdentity, err)
		return
	}
	t3 := now
	if ts, ok := p.hal.Timestamping.CaptureTxTimestamp(tx); ok {
		t3 = ts
	}
	if err := p.delay.DelayReqEgress(seq, t3, now); err != nil {
		logrus.Debugf("port %s: delay_req egress rejected: %v", p.ds.PortIdentity, err)
	}
}

func (p *Port) runServo(now ptpcore.Timestamp) {
	sample := p.pendingSample
	p.pendingSample = nil

	dt := sampleDtSeconds(p.lastSampleAt, now, p.ds.SyncIntervalNanos())
	p.lastSampleAt = now

	res, err := p.srv.Sample(sample.offsetNanos, dt)
	if err != nil {
		logrus.Warnf("port %s: servo sample rejected: %v", p.ds.PortIdentity, err)
		return
	}

	if res.Stepped {
		if err := p.hal.Clock.StepPhase(-sample.offsetNanos); err != nil {
			p.onClockFault(err)
		}
		return
	}
	if err := p.hal.Clock.AdjustFrequency(res.FrequencyAdjustmentPPB); err != nil {
		p.onClockFault(err)
		return
	}
	if res.OscillationDetected {
		logrus.Warnf("port %s: OscillationDetected", p.ds.PortIdentity)
	}
}

// onClockFault implements §7's HAL error propagation policy: the first
// ErrHalClock-wrapped failure puts the servo into HOLDOVER without
// otherwise changing port state; any other error is logged and ignored.
func (p *Port) onClockFault(err error) {
	if !errors.Is(err, ptpcore.ErrHalClock) {
		logrus.Errorf("port %s: HAL clock error: %v", p.ds.PortIdentity, err)
		return
	}
	p.srv.EnterHoldover()
	p.stats.HoldoverEntries++
	logrus.Warnf("port %s: entering HOLDOVER after HAL clock fault", p.ds.PortIdentity)
}

func sampleDtSeconds(last, now ptpcore.Timestamp, fallbackNanos int64) float64 {
	zero := ptpcore.Timestamp{}
	if last == zero {
		return float64(fallbackNanos) / float64(ptpcore.NanosPerSecond)
	}
	d := now.Sub(last)
	if d <= 0 {
		return float64(fallbackNanos) / float64(ptpcore.NanosPerSecond)
	}
	return float64(d) / float64(ptpcore.NanosPerSecond)
}

// scaleCorrection converts a wire correctionField (2^-16 ns units) to a
// whole-nanosecond Duration (§4.2, §6).
func scaleCorrection(correctionField int64) ptpcore.Duration {
	return ptpcore.Duration(correctionField >> 16)
}
