package ptpcore

import "testing"

func TestTimestampSub(t *testing.T) {
	cases := []struct {
		name   string
		a, b   Timestamp
		wantNs Duration
	}{
		{
			name:   "cold slave scenario t2-t1",
			a:      Timestamp{Seconds: 1_699_564_800, Nanoseconds: 501_234_567},
			b:      Timestamp{Seconds: 1_699_564_800, Nanoseconds: 500_000_000},
			wantNs: 1_234_567,
		},
		{
			name:   "crosses second boundary",
			a:      Timestamp{Seconds: 101, Nanoseconds: 10},
			b:      Timestamp{Seconds: 100, Nanoseconds: 999_999_990},
			wantNs: 20,
		},
		{
			name:   "negative duration",
			a:      Timestamp{Seconds: 100, Nanoseconds: 0},
			b:      Timestamp{Seconds: 100, Nanoseconds: 500},
			wantNs: -500,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Sub(tc.b); got != tc.wantNs {
				t.Errorf("Sub() = %d, want %d", got, tc.wantNs)
			}
		})
	}
}

func TestTimestampAddRenormalizes(t *testing.T) {
	ts := Timestamp{Seconds: 100, Nanoseconds: 999_999_990}
	got := ts.Add(20)
	want := Timestamp{Seconds: 101, Nanoseconds: 10}
	if got != want {
		t.Errorf("Add() = %+v, want %+v", got, want)
	}

	ts = Timestamp{Seconds: 100, Nanoseconds: 10}
	got = ts.Add(-20)
	want = Timestamp{Seconds: 99, Nanoseconds: 999_999_990}
	if got != want {
		t.Errorf("Add(negative) = %+v, want %+v", got, want)
	}
}

func TestPortIdentityLess(t *testing.T) {
	a := PortIdentity{ClockIdentity: 1, PortNumber: 5}
	b := PortIdentity{ClockIdentity: 1, PortNumber: 6}
	c := PortIdentity{ClockIdentity: 2, PortNumber: 1}

	if !a.Less(b) {
		t.Error("expected a < b by port number")
	}
	if !b.Less(c) {
		t.Error("expected b < c by clock identity")
	}
	if a.Less(a) {
		t.Error("expected a not less than itself")
	}
}
