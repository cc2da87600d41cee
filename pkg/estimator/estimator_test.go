package estimator

import (
	"testing"

	"github.com/openptp/ptpcore"
)

func mustNew(t *testing.T, cfg Config) *Estimator {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestCompletesCycleInOrder(t *testing.T) {
	e := mustNew(t, Config{Capacity: 2, CeilingNanos: 1_000_000_000})
	now := ptpcore.TimestampFromNanos(0)

	t1 := ptpcore.TimestampFromNanos(0)
	t2 := ptpcore.TimestampFromNanos(500)
	t3 := ptpcore.TimestampFromNanos(1000)
	t4 := ptpcore.TimestampFromNanos(1100)

	if err := e.RecordSyncOrigin(1, t1, 0, now); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordSyncIngress(1, t2, now); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordDelayReqEgress(1, t3, now); err != nil {
		t.Fatal(err)
	}
	res, ok, err := e.RecordDelayRespIngress(1, t4, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected cycle to complete")
	}
	if res.MeanPathDelay != 300 {
		t.Fatalf("meanPathDelay = %d, want 300", res.MeanPathDelay)
	}
	if res.OffsetFromMaster != 200 {
		t.Fatalf("offsetFromMaster = %d, want 200", res.OffsetFromMaster)
	}
	if res.SequenceID != 1 {
		t.Fatalf("sequenceID = %d, want 1", res.SequenceID)
	}
}

func TestMismatchedSequenceIsDiscarded(t *testing.T) {
	e := mustNew(t, Config{Capacity: 2, CeilingNanos: 1_000_000_000})
	now := ptpcore.TimestampFromNanos(0)

	if err := e.RecordSyncOrigin(1, ptpcore.TimestampFromNanos(0), 0, now); err != nil {
		t.Fatal(err)
	}
	// Stamps for a different sequence never complete cycle 1.
	if err := e.RecordSyncIngress(2, ptpcore.TimestampFromNanos(500), now); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordDelayReqEgress(2, ptpcore.TimestampFromNanos(1000), now); err != nil {
		t.Fatal(err)
	}
	_, ok, err := e.RecordDelayRespIngress(2, ptpcore.TimestampFromNanos(1100), 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("cycle 2 should not have t1 and must not complete")
	}
}

func TestRejectsNegativeDelay(t *testing.T) {
	e := mustNew(t, Config{Capacity: 1, CeilingNanos: 1_000_000_000})
	now := ptpcore.TimestampFromNanos(0)

	e.RecordSyncOrigin(1, ptpcore.TimestampFromNanos(0), 0, now)
	e.RecordSyncIngress(1, ptpcore.TimestampFromNanos(500), now)
	e.RecordDelayReqEgress(1, ptpcore.TimestampFromNanos(1000), now)
	_, ok, err := e.RecordDelayRespIngress(1, ptpcore.TimestampFromNanos(900), 0, now)
	if ok {
		t.Fatal("t4 < t3 must not complete a cycle")
	}
	if err == nil {
		t.Fatal("expected ImplausibleTimestamps")
	}
}

func TestZeroDelayFlaggedWhenMinNonZeroConfigured(t *testing.T) {
	e := mustNew(t, Config{Capacity: 1, CeilingNanos: 1_000_000_000, MinNonZeroDelay: 1})
	now := ptpcore.TimestampFromNanos(0)

	e.RecordSyncOrigin(1, ptpcore.TimestampFromNanos(0), 0, now)
	e.RecordSyncIngress(1, ptpcore.TimestampFromNanos(0), now)
	e.RecordDelayReqEgress(1, ptpcore.TimestampFromNanos(1000), now)
	res, ok, err := e.RecordDelayRespIngress(1, ptpcore.TimestampFromNanos(1000), 0, now)
	if !ok {
		t.Fatal("zero delay must still be accepted")
	}
	if err == nil {
		t.Fatal("expected flagged ImplausibleTimestamps with minNonZeroDelay configured")
	}
	if res.MeanPathDelay != 0 {
		t.Fatalf("meanPathDelay = %d, want 0", res.MeanPathDelay)
	}
}

func TestZeroDelayAcceptedWithoutMinNonZero(t *testing.T) {
	e := mustNew(t, Config{Capacity: 1, CeilingNanos: 1_000_000_000})
	now := ptpcore.TimestampFromNanos(0)

	e.RecordSyncOrigin(1, ptpcore.TimestampFromNanos(0), 0, now)
	e.RecordSyncIngress(1, ptpcore.TimestampFromNanos(500), now)
	e.RecordDelayReqEgress(1, ptpcore.TimestampFromNanos(1000), now)
	_, ok, err := e.RecordDelayRespIngress(1, ptpcore.TimestampFromNanos(1000), 0, now)
	if !ok || err != nil {
		t.Fatalf("expected clean accept, got ok=%v err=%v", ok, err)
	}
}

func TestExpireOlderThanReportsTimeout(t *testing.T) {
	e := mustNew(t, Config{Capacity: 1, CeilingNanos: 1000})
	start := ptpcore.TimestampFromNanos(0)
	e.RecordSyncOrigin(5, start, 0, start)

	late := start.Add(2000)
	expired := e.ExpireOlderThan(late)
	if len(expired) != 1 || expired[0] != 5 {
		t.Fatalf("expected sequence 5 to expire, got %v", expired)
	}
}

func TestResourceUnavailableAtCapacity(t *testing.T) {
	e := mustNew(t, Config{Capacity: 1, CeilingNanos: 1_000_000_000})
	now := ptpcore.TimestampFromNanos(0)
	if err := e.RecordSyncOrigin(1, now, 0, now); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordSyncOrigin(2, now, 0, now); err == nil {
		t.Fatal("expected ResourceUnavailable when exceeding capacity")
	}
}
