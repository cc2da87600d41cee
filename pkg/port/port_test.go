package port

import (
	"errors"
	"testing"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/estimator"
	"github.com/openptp/ptpcore/pkg/servo"
)

// fakeClock is a settable, non-blocking ptpcore.Clock for driving ticks
// deterministically without wall-clock time.
type fakeClock struct {
	now   ptpcore.Timestamp
	bound uint32

	lastFreqPPB int32
	lastStepNS  int64
}

func (c *fakeClock) Now() ptpcore.Timestamp { return c.now }
func (c *fakeClock) AdjustFrequency(ppb int32) error {
	c.lastFreqPPB = ppb
	return nil
}
func (c *fakeClock) StepPhase(deltaNanos int64) error {
	c.lastStepNS = deltaNanos
	return nil
}
func (c *fakeClock) FrequencyBound() uint32 { return c.bound }

// fakeTimer is an in-memory ptpcore.Timer; AdvanceTo must be called before
// Tick to populate the set Expired() drains, mirroring the real
// HAL contract that Expired reports firings since the last call.
type fakeTimer struct {
	next    ptpcore.TimerHandle
	armed   map[ptpcore.TimerHandle]int64
	fired   []ptpcore.TimerHandle
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{armed: make(map[ptpcore.TimerHandle]int64)}
}

func (t *fakeTimer) Arm(kind ptpcore.TimerKind, deadline int64) ptpcore.TimerHandle {
	t.next++
	t.armed[t.next] = deadline
	return t.next
}

func (t *fakeTimer) Cancel(h ptpcore.TimerHandle) { delete(t.armed, h) }

func (t *fakeTimer) Expired() []ptpcore.TimerHandle {
	out := t.fired
	t.fired = nil
	return out
}

func (t *fakeTimer) AdvanceTo(nowNanos int64) {
	for h, deadline := range t.armed {
		if deadline <= nowNanos {
			t.fired = append(t.fired, h)
			delete(t.armed, h)
		}
	}
}

type sentMsg struct {
	buf  []byte
	dest ptpcore.DestinationClass
}

// fakeNetwork implements both ptpcore.Network and ptpcore.Timestamping: a
// simple FIFO inbox/outbox pair plus a tx-timestamp table keyed by the
// handle returned from Send, stamped at the clock's current instant
// (standing in for hardware capture, which always "completes"
// immediately in this fake).
type fakeNetwork struct {
	clock *fakeClock

	outbox []sentMsg
	inbox  []struct {
		buf []byte
		rx  ptpcore.Timestamp
		src ptpcore.PortIdentity
	}

	txNext  ptpcore.TxHandle
	txStamp map[ptpcore.TxHandle]ptpcore.Timestamp
}

func newFakeNetwork(clock *fakeClock) *fakeNetwork {
	return &fakeNetwork{clock: clock, txStamp: make(map[ptpcore.TxHandle]ptpcore.Timestamp)}
}

func (n *fakeNetwork) Send(buf []byte, dest ptpcore.DestinationClass) (ptpcore.TxHandle, error) {
	n.txNext++
	cp := append([]byte(nil), buf...)
	n.outbox = append(n.outbox, sentMsg{buf: cp, dest: dest})
	n.txStamp[n.txNext] = n.clock.now
	return n.txNext, nil
}

func (n *fakeNetwork) TryRecv() ([]byte, ptpcore.Timestamp, ptpcore.PortIdentity, bool) {
	if len(n.inbox) == 0 {
		return nil, ptpcore.Timestamp{}, ptpcore.PortIdentity{}, false
	}
	m := n.inbox[0]
	n.inbox = n.inbox[1:]
	return m.buf, m.rx, m.src, true
}

func (n *fakeNetwork) MTU() int { return 1500 }

func (n *fakeNetwork) CaptureTxTimestamp(h ptpcore.TxHandle) (ptpcore.Timestamp, bool) {
	ts, ok := n.txStamp[h]
	return ts, ok
}

func (n *fakeNetwork) deliverTo(dst *fakeNetwork, src ptpcore.PortIdentity, rx ptpcore.Timestamp) {
	for _, m := range n.outbox {
		dst.inbox = append(dst.inbox, struct {
			buf []byte
			rx  ptpcore.Timestamp
			src ptpcore.PortIdentity
		}{buf: m.buf, rx: rx, src: src})
	}
	n.outbox = nil
}

const (
	masterClockID ptpcore.ClockIdentity = 1
	slaveClockID  ptpcore.ClockIdentity = 2
)

func newTestPort(t *testing.T, clockID ptpcore.ClockIdentity, priority1 uint8, slaveOnly bool, clock *fakeClock, timer *fakeTimer, net *fakeNetwork) (*Port, *dataset.DefaultDS, *dataset.CurrentDS) {
	t.Helper()

	defaultDS := &dataset.DefaultDS{}
	defaultDS.Init(clockID, 1, dataset.ClockQuality{ClockClass: 6, ClockAccuracy: 0x20, OffsetScaledLogVariance: 0xffff}, priority1, 128, 0, slaveOnly, false)
	parentDS := &dataset.ParentDS{}
	timeProps := &dataset.TimePropertiesDS{}
	currentDS := &dataset.CurrentDS{}

	srv, err := servo.New(servo.Config{Kp: 0.7, Ki: 0.3, StepThresholdNanos: 1_000_000_000, ConvergenceBandNanos: 1000, FrequencyBoundPPB: 500_000})
	if err != nil {
		t.Fatalf("servo.New: %v", err)
	}

	delay, err := NewE2EDelayMechanism(estimator.Config{Capacity: 2, CeilingNanos: 2_000_000_000})
	if err != nil {
		t.Fatalf("NewE2EDelayMechanism: %v", err)
	}

	cfg := Config{
		PortDS: dataset.PortDS{
			PortIdentity:           ptpcore.PortIdentity{ClockIdentity: clockID, PortNumber: 1},
			LogAnnounceInterval:    -2, // 250ms
			LogSyncInterval:        -4, // 62.5ms
			LogMinDelayReqInterval: -4, // 62.5ms
			AnnounceReceiptTimeout: 2,
		},
		ForeignMasterCapacity: dataset.MinForeignMasterCapacity,
		Delay:                 delay,
	}

	hal := ptpcore.HAL{Network: net, Timestamping: net, Clock: clock, Timer: timer}

	p, err := New(cfg, defaultDS, parentDS, timeProps, currentDS, srv, hal)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, defaultDS, currentDS
}

// step advances both clocks/timers to a new instant and ticks both
// ports, delivering whatever each just sent to the other before the
// next iteration. This models the single shared medium two directly
// connected ports see.
func step(masterPort, slavePort *Port, masterClock, slaveClock *fakeClock, masterTimer, slaveTimer *fakeTimer, masterNet, slaveNet *fakeNetwork, now ptpcore.Timestamp, deliverMasterToSlave, deliverSlaveToMaster bool) {
	masterClock.now = now
	slaveClock.now = now
	masterTimer.AdvanceTo(now.AsNanos())
	slaveTimer.AdvanceTo(now.AsNanos())

	masterPort.Tick(now)
	if deliverMasterToSlave {
		masterNet.deliverTo(slaveNet, masterPort.Identity(), now)
	} else {
		masterNet.outbox = nil
	}

	slavePort.Tick(now)
	if deliverSlaveToMaster {
		slaveNet.deliverTo(masterNet, slavePort.Identity(), now)
	} else {
		slaveNet.outbox = nil
	}
}

// TestColdSlaveConverges is spec scenario 1: a slave-only port starting
// in LISTENING, facing a single better-priority master, qualifies that
// master via BMCA, exchanges the full Sync/Delay_Req/Delay_Resp cycle,
// and reaches SLAVE with a computed (here exactly zero, since both
// fakes share one clock) offset.
func TestColdSlaveConverges(t *testing.T) {
	now := ptpcore.TimestampFromNanos(0)

	masterClock := &fakeClock{now: now, bound: 500_000}
	slaveClock := &fakeClock{now: now, bound: 500_000}
	masterTimer := newFakeTimer()
	slaveTimer := newFakeTimer()
	masterNet := newFakeNetwork(masterClock)
	slaveNet := newFakeNetwork(slaveClock)

	masterPort, _, _ := newTestPort(t, masterClockID, 100, false, masterClock, masterTimer, masterNet)
	slavePort, _, slaveCurrentDS := newTestPort(t, slaveClockID, 200, true, slaveClock, slaveTimer, slaveNet)

	masterPort.Initialize(now)
	masterPort.transitionTo(dataset.Master, now)
	slavePort.Initialize(now)

	const stepNanos = int64(20_000_000) // 20ms
	for i := 1; i <= 150; i++ {
		now = now.Add(ptpcore.Duration(stepNanos))
		step(masterPort, slavePort, masterClock, slaveClock, masterTimer, slaveTimer, masterNet, slaveNet, now, true, true)
		if slavePort.State() == dataset.Slave {
			break
		}
	}

	if slavePort.State() != dataset.Slave {
		t.Fatalf("slave state = %s, want SLAVE", slavePort.State())
	}
	if slaveCurrentDS.OffsetFromMaster != 0 {
		t.Fatalf("offsetFromMaster = %d, want 0 (both fakes share one clock)", slaveCurrentDS.OffsetFromMaster)
	}
	stats := slavePort.Stats()
	if stats.OffsetsComputed == 0 {
		t.Fatal("expected at least one offset computation")
	}
	if stats.ParseErrors != 0 {
		t.Fatalf("unexpected parse errors: %d", stats.ParseErrors)
	}
}

// TestParentLossTriggersReelection is spec scenario 4: once converged to
// SLAVE, the parent goes silent; after the announce-receipt timeout and
// the foreign-master window both elapse, BMCA finds no qualified
// foreign master and the port falls back to LISTENING.
func TestParentLossTriggersReelection(t *testing.T) {
	now := ptpcore.TimestampFromNanos(0)

	masterClock := &fakeClock{now: now, bound: 500_000}
	slaveClock := &fakeClock{now: now, bound: 500_000}
	masterTimer := newFakeTimer()
	slaveTimer := newFakeTimer()
	masterNet := newFakeNetwork(masterClock)
	slaveNet := newFakeNetwork(slaveClock)

	masterPort, _, _ := newTestPort(t, masterClockID, 100, false, masterClock, masterTimer, masterNet)
	slavePort, _, _ := newTestPort(t, slaveClockID, 200, true, slaveClock, slaveTimer, slaveNet)

	masterPort.Initialize(now)
	masterPort.transitionTo(dataset.Master, now)
	slavePort.Initialize(now)

	const stepNanos = int64(20_000_000)
	for i := 1; i <= 150; i++ {
		now = now.Add(ptpcore.Duration(stepNanos))
		step(masterPort, slavePort, masterClock, slaveClock, masterTimer, slaveTimer, masterNet, slaveNet, now, true, true)
		if slavePort.State() == dataset.Slave {
			break
		}
	}
	if slavePort.State() != dataset.Slave {
		t.Fatalf("setup failed: slave never converged (state %s)", slavePort.State())
	}

	// Sever the link: master keeps running but nothing reaches the
	// slave any more.
	for i := 1; i <= 100; i++ {
		now = now.Add(ptpcore.Duration(stepNanos))
		step(masterPort, slavePort, masterClock, slaveClock, masterTimer, slaveTimer, masterNet, slaveNet, now, false, false)
		if slavePort.State() == dataset.Listening {
			break
		}
	}

	if slavePort.State() != dataset.Listening {
		t.Fatalf("slave state after parent loss = %s, want LISTENING", slavePort.State())
	}
}

// TestMalformedMessageIsIsolated is spec scenario 5: a garbage datagram
// is counted and dropped without disturbing the port's state or any
// other counter.
func TestMalformedMessageIsIsolated(t *testing.T) {
	now := ptpcore.TimestampFromNanos(0)
	clock := &fakeClock{now: now, bound: 500_000}
	timer := newFakeTimer()
	net := newFakeNetwork(clock)

	p, _, _ := newTestPort(t, slaveClockID, 200, true, clock, timer, net)
	p.Initialize(now)

	net.inbox = append(net.inbox, struct {
		buf []byte
		rx  ptpcore.Timestamp
		src ptpcore.PortIdentity
	}{buf: []byte{0xff, 0xff, 0xff}, rx: now, src: ptpcore.PortIdentity{ClockIdentity: 99, PortNumber: 1}})

	stateBefore := p.State()
	p.Tick(now)

	if p.State() != stateBefore {
		t.Fatalf("state changed on malformed message: %s -> %s", stateBefore, p.State())
	}
	stats := p.Stats()
	if stats.ParseErrors != 1 {
		t.Fatalf("parseErrors = %d, want 1", stats.ParseErrors)
	}
	if stats.AnnouncesRx != 0 || stats.SyncsRx != 0 {
		t.Fatalf("malformed datagram must not be counted as any valid message type: %+v", stats)
	}
}

// failingNetwork always reports ptpcore.ErrHalNetwork from Send, standing
// in for a HAL with a persistently broken transmit path.
type failingNetwork struct {
	*fakeNetwork
}

func (n *failingNetwork) Send(buf []byte, dest ptpcore.DestinationClass) (ptpcore.TxHandle, error) {
	return 0, ptpcore.ErrHalNetwork
}

// TestPersistentNetworkFaultTransitionsToFaulty is spec scenario 7: a
// HAL network send failure that persists across maxNetworkFailureStreak
// consecutive attempts drives the port to FAULTY (§7), the transmit-side
// counterpart of onClockFault's HalClock -> HOLDOVER policy.
func TestPersistentNetworkFaultTransitionsToFaulty(t *testing.T) {
	now := ptpcore.TimestampFromNanos(0)
	clock := &fakeClock{now: now, bound: 500_000}
	timer := newFakeTimer()
	net := &failingNetwork{fakeNetwork: newFakeNetwork(clock)}

	p, _, _ := newTestPort(t, masterClockID, 100, false, clock, timer, net.fakeNetwork)
	p.hal.Network = net
	p.Initialize(now)
	p.transitionTo(dataset.Master, now)

	for i := 0; i < maxNetworkFailureStreak-1; i++ {
		p.sendAnnounce(now)
		if p.State() == dataset.Faulty {
			t.Fatalf("port faulted after only %d failures, want %d", i+1, maxNetworkFailureStreak)
		}
	}

	p.sendAnnounce(now)
	if p.State() != dataset.Faulty {
		t.Fatalf("state after %d consecutive HAL network faults = %s, want FAULTY", maxNetworkFailureStreak, p.State())
	}
	if !errors.Is(p.FaultReason(), ptpcore.ErrHalNetwork) {
		t.Fatalf("FaultReason() = %v, want wrapped ErrHalNetwork", p.FaultReason())
	}
}

// TestTransientNetworkFailuresDoNotFault confirms the streak resets on a
// successful send: a single dropped message never drives the port to
// FAULTY by itself (§7: "persistent").
func TestTransientNetworkFailuresDoNotFault(t *testing.T) {
	now := ptpcore.TimestampFromNanos(0)
	clock := &fakeClock{now: now, bound: 500_000}
	timer := newFakeTimer()
	net := newFakeNetwork(clock)

	p, _, _ := newTestPort(t, masterClockID, 100, false, clock, timer, net)
	p.Initialize(now)
	p.transitionTo(dataset.Master, now)

	failing := &failingNetwork{fakeNetwork: net}
	p.hal.Network = failing
	for i := 0; i < maxNetworkFailureStreak-1; i++ {
		p.sendAnnounce(now)
	}
	p.hal.Network = net
	p.sendAnnounce(now)
	p.hal.Network = failing
	for i := 0; i < maxNetworkFailureStreak-1; i++ {
		p.sendAnnounce(now)
	}

	if p.State() == dataset.Faulty {
		t.Fatalf("port faulted despite a successful send resetting the streak")
	}
}
