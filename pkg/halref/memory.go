// Package halref provides reference (non-core) implementations of the
// root package's injected HAL capabilities (hal.go): an in-memory,
// simulated medium for tests and demonstration, and a Linux UDP HAL
// exercising real sockets and kernel timestamping. Neither is part of
// the protocol engine itself — pkg/port and pkg/engine depend only on
// the ptpcore.HAL interfaces, never on this package.
package halref

import (
	"sync"

	"github.com/openptp/ptpcore"
)

// Clock is an in-memory, manually-driven implementation of ptpcore.Clock
// for simulation and tests: time advances only when told to, never on
// its own, so a driver can step a whole topology through a scenario
// deterministically.
type Clock struct {
	mu            sync.Mutex
	nowNanos      int64
	freqBoundPPB  uint32
	lastAdjustPPB int32
	lastStepNanos int64
}

// NewClock constructs a Clock starting at startNanos, reporting
// freqBoundPPB as its FrequencyBound.
func NewClock(startNanos int64, freqBoundPPB uint32) *Clock {
	return &Clock{nowNanos: startNanos, freqBoundPPB: freqBoundPPB}
}

// Now implements ptpcore.Clock.
func (c *Clock) Now() ptpcore.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ptpcore.TimestampFromNanos(c.nowNanos)
}

// Advance moves the clock forward by deltaNanos, simulating the passage
// of real time between driver steps.
func (c *Clock) Advance(deltaNanos int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowNanos += deltaNanos
}

// AdjustFrequency implements ptpcore.Clock. The in-memory clock does not
// model frequency drift; it only records the last requested adjustment
// for inspection by a test or demonstration driver.
func (c *Clock) AdjustFrequency(ppb int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAdjustPPB = ppb
	return nil
}

// StepPhase implements ptpcore.Clock.
func (c *Clock) StepPhase(deltaNanos int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowNanos += deltaNanos
	c.lastStepNanos = deltaNanos
	return nil
}

// FrequencyBound implements ptpcore.Clock.
func (c *Clock) FrequencyBound() uint32 { return c.freqBoundPPB }

// LastFrequencyAdjustmentPPB returns the most recent value passed to
// AdjustFrequency, for test assertions.
func (c *Clock) LastFrequencyAdjustmentPPB() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAdjustPPB
}

type armedTimer struct {
	kind     ptpcore.TimerKind
	deadline int64
}

// Timer is an in-memory implementation of ptpcore.Timer driven by a
// Clock: a timer is "expired" once the Clock's current instant reaches
// its deadline, discovered the next time Expired is called (§5: "must
// be called once per tick").
type Timer struct {
	mu     sync.Mutex
	clock  *Clock
	next   ptpcore.TimerHandle
	armed  map[ptpcore.TimerHandle]armedTimer
}

// NewTimer constructs a Timer that measures deadlines against clock.
func NewTimer(clock *Clock) *Timer {
	return &Timer{clock: clock, armed: make(map[ptpcore.TimerHandle]armedTimer)}
}

// Arm implements ptpcore.Timer.
func (t *Timer) Arm(kind ptpcore.TimerKind, deadlineMonotonicNanos int64) ptpcore.TimerHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.armed[t.next] = armedTimer{kind: kind, deadline: deadlineMonotonicNanos}
	return t.next
}

// Cancel implements ptpcore.Timer.
func (t *Timer) Cancel(handle ptpcore.TimerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, handle)
}

// Expired implements ptpcore.Timer.
func (t *Timer) Expired() []ptpcore.TimerHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().AsNanos()
	var fired []ptpcore.TimerHandle
	for h, a := range t.armed {
		if now >= a.deadline {
			fired = append(fired, h)
			delete(t.armed, h)
		}
	}
	return fired
}

type txRecord struct {
	ts ptpcore.Timestamp
}

type inboundDatagram struct {
	buf    []byte
	rx     ptpcore.Timestamp
	srcID  ptpcore.PortIdentity
}

// Medium is a simulated broadcast segment: every Network attached to it
// receives a copy of every other attached Network's Send, with the
// sender's own Clock instant stamped as both the transmit and receive
// timestamp (an idealized, zero-latency medium suitable for driving the
// protocol state machine through a scenario rather than for measuring
// real delay).
type Medium struct {
	mu       sync.Mutex
	networks []*Network
}

// NewMedium constructs an empty simulated segment.
func NewMedium() *Medium { return &Medium{} }

// Attach creates a new Network endpoint on this medium, whose timestamps
// are drawn from clock and whose traffic is identified by identity.
func (m *Medium) Attach(identity ptpcore.PortIdentity, clock *Clock) *Network {
	n := &Network{medium: m, identity: identity, clock: clock, txTimestamps: make(map[ptpcore.TxHandle]txRecord)}
	m.mu.Lock()
	m.networks = append(m.networks, n)
	m.mu.Unlock()
	return n
}

func (m *Medium) deliver(from *Network, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rx := from.clock.Now()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	for _, n := range m.networks {
		if n == from {
			continue
		}
		n.mu.Lock()
		n.inbox = append(n.inbox, inboundDatagram{buf: cp, rx: rx, srcID: from.identity})
		n.mu.Unlock()
	}
}

// Network is one endpoint on a simulated Medium, implementing both
// ptpcore.Network and ptpcore.Timestamping.
type Network struct {
	medium   *Medium
	identity ptpcore.PortIdentity
	clock    *Clock

	mu           sync.Mutex
	nextTx       ptpcore.TxHandle
	txTimestamps map[ptpcore.TxHandle]txRecord
	inbox        []inboundDatagram
}

// Send implements ptpcore.Network. The transmit timestamp is captured
// immediately, simulating hardware timestamping completing with no
// delay; CaptureTxTimestamp always reports ok=true for this HAL.
func (n *Network) Send(buf []byte, dest ptpcore.DestinationClass) (ptpcore.TxHandle, error) {
	n.mu.Lock()
	n.nextTx++
	handle := n.nextTx
	n.txTimestamps[handle] = txRecord{ts: n.clock.Now()}
	n.mu.Unlock()

	n.medium.deliver(n, buf)
	return handle, nil
}

// TryRecv implements ptpcore.Network.
func (n *Network) TryRecv() ([]byte, ptpcore.Timestamp, ptpcore.PortIdentity, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.inbox) == 0 {
		return nil, ptpcore.Timestamp{}, ptpcore.PortIdentity{}, false
	}
	d := n.inbox[0]
	n.inbox = n.inbox[1:]
	return d.buf, d.rx, d.srcID, true
}

// MTU implements ptpcore.Network.
func (n *Network) MTU() int { return 1500 }

// CaptureTxTimestamp implements ptpcore.Timestamping.
func (n *Network) CaptureTxTimestamp(handle ptpcore.TxHandle) (ptpcore.Timestamp, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec, ok := n.txTimestamps[handle]
	if !ok {
		return ptpcore.Timestamp{}, false
	}
	delete(n.txTimestamps, handle)
	return rec.ts, true
}

// HAL bundles a Network/Timestamping endpoint with clock and timer, both
// sharing the same Clock, into a ready-to-use ptpcore.HAL for one port.
func HAL(network *Network, clock *Clock, timer *Timer) ptpcore.HAL {
	return ptpcore.HAL{Network: network, Timestamping: network, Clock: clock, Timer: timer}
}
