package engine

import (
	"errors"
	"testing"

	"github.com/openptp/ptpcore"
	"github.com/openptp/ptpcore/pkg/dataset"
	"github.com/openptp/ptpcore/pkg/servo"
)

// noopNetwork/noopTimer/noopClock/noopTimestamping satisfy the HAL
// interfaces with inert behavior, sufficient for exercising Engine
// construction and AddPort wiring without a running simulation.
type noopNetwork struct{}

func (noopNetwork) Send([]byte, ptpcore.DestinationClass) (ptpcore.TxHandle, error) { return 0, nil }
func (noopNetwork) TryRecv() ([]byte, ptpcore.Timestamp, ptpcore.PortIdentity, bool) {
	return nil, ptpcore.Timestamp{}, ptpcore.PortIdentity{}, false
}
func (noopNetwork) MTU() int { return 1500 }

type noopTimer struct{ next ptpcore.TimerHandle }

func (t *noopTimer) Arm(ptpcore.TimerKind, int64) ptpcore.TimerHandle {
	t.next++
	return t.next
}
func (*noopTimer) Cancel(ptpcore.TimerHandle)      {}
func (*noopTimer) Expired() []ptpcore.TimerHandle { return nil }

type noopClock struct{}

func (noopClock) Now() ptpcore.Timestamp      { return ptpcore.Timestamp{} }
func (noopClock) AdjustFrequency(int32) error { return nil }
func (noopClock) StepPhase(int64) error       { return nil }
func (noopClock) FrequencyBound() uint32      { return 500_000 }

type noopTimestamping struct{}

func (noopTimestamping) CaptureTxTimestamp(ptpcore.TxHandle) (ptpcore.Timestamp, bool) {
	return ptpcore.Timestamp{}, false
}

func testHAL() ptpcore.HAL {
	return ptpcore.HAL{
		Network:      noopNetwork{},
		Timestamping: noopTimestamping{},
		Clock:        noopClock{},
		Timer:        &noopTimer{},
	}
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		ClockIdentity:         ptpcore.ClockIdentity(0xaabbccfffe001122),
		DomainNumber:          0,
		Priority1:             128,
		Priority2:             128,
		ClockQuality:          dataset.ClockQuality{},
		ForeignMasterCapacity: dataset.MinForeignMasterCapacity,
	}
}

func testPortConfig() PortConfig {
	return PortConfig{
		LogAnnounceInterval:    1,
		LogSyncInterval:        0,
		LogMinDelayReqInterval: 0,
		AnnounceReceiptTimeout: 3,
		DelayMechanism:         dataset.E2E,
		Servo: servo.Config{
			Kp: 0.7, Ki: 0.3,
			StepThresholdNanos:   100_000_000,
			ConvergenceBandNanos: 100,
			FrequencyBoundPPB:    500_000,
		},
	}
}

func TestNewRejectsSmallForeignMasterCapacity(t *testing.T) {
	cfg := testEngineConfig()
	cfg.ForeignMasterCapacity = 1
	if _, err := New(cfg); !errors.Is(err, ptpcore.ErrConfigConflict) {
		t.Fatalf("expected ErrConfigConflict, got %v", err)
	}
}

func TestNewRejectsUnknownProfile(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Profile = Profile(99)
	if _, err := New(cfg); !errors.Is(err, ptpcore.ErrConfigConflict) {
		t.Fatalf("expected ErrConfigConflict, got %v", err)
	}
}

func TestAddPortAssignsIdentityAndCountsPorts(t *testing.T) {
	e, err := New(testEngineConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := e.AddPort(1, testPortConfig(), testHAL())
	if err != nil {
		t.Fatalf("AddPort: %v", err)
	}
	if p.Identity().PortNumber != 1 {
		t.Fatalf("expected port number 1, got %d", p.Identity().PortNumber)
	}
	if p.Identity().ClockIdentity != testEngineConfig().ClockIdentity {
		t.Fatalf("port identity did not inherit engine clock identity")
	}
	if got := e.DefaultDS().NumberPorts; got != 1 {
		t.Fatalf("expected NumberPorts 1, got %d", got)
	}
	if _, err := e.AddPort(2, testPortConfig(), testHAL()); err != nil {
		t.Fatalf("AddPort second port: %v", err)
	}
	if got := e.DefaultDS().NumberPorts; got != 2 {
		t.Fatalf("expected NumberPorts 2, got %d", got)
	}
	if e.Port(ptpcore.PortIdentity{ClockIdentity: testEngineConfig().ClockIdentity, PortNumber: 2}) == nil {
		t.Fatalf("Port lookup for port 2 failed")
	}
}

func TestAddPortRejectsDuplicatePortNumber(t *testing.T) {
	e, err := New(testEngineConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.AddPort(1, testPortConfig(), testHAL()); err != nil {
		t.Fatalf("AddPort: %v", err)
	}
	if _, err := e.AddPort(1, testPortConfig(), testHAL()); !errors.Is(err, ptpcore.ErrConfigConflict) {
		t.Fatalf("expected ErrConfigConflict on duplicate port number, got %v", err)
	}
}

func TestAddPortRejectsZeroPortNumber(t *testing.T) {
	e, err := New(testEngineConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.AddPort(0, testPortConfig(), testHAL()); !errors.Is(err, ptpcore.ErrConfigConflict) {
		t.Fatalf("expected ErrConfigConflict for port number 0, got %v", err)
	}
}

func TestTickDrivesEveryPort(t *testing.T) {
	e, err := New(testEngineConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := e.AddPort(1, testPortConfig(), testHAL())
	if err != nil {
		t.Fatalf("AddPort: %v", err)
	}
	e.InitializeAll(ptpcore.Timestamp{})
	if p.State() != dataset.Listening {
		t.Fatalf("expected LISTENING after InitializeAll, got %s", p.State())
	}
	// Tick must not panic across the whole port set even with an inert HAL.
	e.Tick(ptpcore.Timestamp{})
}
