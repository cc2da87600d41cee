package halref

import (
	"testing"

	"github.com/openptp/ptpcore"
)

func TestNetworkSendDeliversToOtherAttachedEndpoints(t *testing.T) {
	medium := NewMedium()
	clockA := NewClock(1000, 500_000)
	clockB := NewClock(1000, 500_000)

	idA := ptpcore.PortIdentity{ClockIdentity: 1, PortNumber: 1}
	idB := ptpcore.PortIdentity{ClockIdentity: 2, PortNumber: 1}
	a := medium.Attach(idA, clockA)
	b := medium.Attach(idB, clockB)

	if _, _, _, ok := b.TryRecv(); ok {
		t.Fatalf("expected empty inbox before any Send")
	}

	clockA.Advance(500)
	if _, err := a.Send([]byte("hello"), ptpcore.AllNodes); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf, rx, src, ok := b.TryRecv()
	if !ok {
		t.Fatalf("expected a datagram in b's inbox")
	}
	if string(buf) != "hello" {
		t.Fatalf("expected payload %q, got %q", "hello", buf)
	}
	if src != idA {
		t.Fatalf("expected source %v, got %v", idA, src)
	}
	if rx.AsNanos() != 1500 {
		t.Fatalf("expected rx timestamp 1500, got %d", rx.AsNanos())
	}

	if _, _, _, ok := a.TryRecv(); ok {
		t.Fatalf("sender must not receive its own Send")
	}
}

func TestNetworkCaptureTxTimestampIsImmediateAndOneShot(t *testing.T) {
	medium := NewMedium()
	clock := NewClock(42, 500_000)
	n := medium.Attach(ptpcore.PortIdentity{ClockIdentity: 1, PortNumber: 1}, clock)

	handle, err := n.Send([]byte{1, 2, 3}, ptpcore.AllNodes)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	ts, ok := n.CaptureTxTimestamp(handle)
	if !ok {
		t.Fatalf("expected tx timestamp to be immediately available")
	}
	if ts.AsNanos() != 42 {
		t.Fatalf("expected tx timestamp 42, got %d", ts.AsNanos())
	}
	if _, ok := n.CaptureTxTimestamp(handle); ok {
		t.Fatalf("expected CaptureTxTimestamp to be one-shot")
	}
}

func TestTimerFiresOnlyOnceClockReachesDeadline(t *testing.T) {
	clock := NewClock(0, 500_000)
	timer := NewTimer(clock)

	h := timer.Arm(ptpcore.TimerAnnounceSend, 1000)
	if got := timer.Expired(); len(got) != 0 {
		t.Fatalf("expected no expirations before deadline, got %v", got)
	}

	clock.Advance(999)
	if got := timer.Expired(); len(got) != 0 {
		t.Fatalf("expected no expirations one ns before deadline, got %v", got)
	}

	clock.Advance(1)
	got := timer.Expired()
	if len(got) != 1 || got[0] != h {
		t.Fatalf("expected exactly [%d] to fire, got %v", h, got)
	}
	if got := timer.Expired(); len(got) != 0 {
		t.Fatalf("expected firing to be drained, got %v", got)
	}
}

func TestTimerCancelPreventsFiring(t *testing.T) {
	clock := NewClock(0, 500_000)
	timer := NewTimer(clock)

	h := timer.Arm(ptpcore.TimerSyncSend, 100)
	timer.Cancel(h)
	clock.Advance(1000)
	if got := timer.Expired(); len(got) != 0 {
		t.Fatalf("expected canceled timer not to fire, got %v", got)
	}
}

func TestClockAdjustFrequencyAndStepPhase(t *testing.T) {
	clock := NewClock(1_000_000, 500_000)
	if err := clock.AdjustFrequency(123); err != nil {
		t.Fatalf("AdjustFrequency: %v", err)
	}
	if got := clock.LastFrequencyAdjustmentPPB(); got != 123 {
		t.Fatalf("expected last adjustment 123, got %d", got)
	}
	if err := clock.StepPhase(-500); err != nil {
		t.Fatalf("StepPhase: %v", err)
	}
	if got := clock.Now().AsNanos(); got != 999_500 {
		t.Fatalf("expected stepped clock at 999500, got %d", got)
	}
}
