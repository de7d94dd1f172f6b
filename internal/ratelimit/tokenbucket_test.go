package ratelimit

import "testing"

// TestLimiterDisabledAdmitsEverything verifies a Limiter constructed with a
// non-positive capacity never rejects a connection, so callers can wire the
// optional gate unconditionally without a separate enabled check.
func TestLimiterDisabledAdmitsEverything(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 1000; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatal("expected disabled limiter to admit every connection")
		}
	}
}

// TestLimiterEnforcesCapacity verifies a client can burst up to capacity
// tokens and is then rejected until tokens refill.
func TestLimiterEnforcesCapacity(t *testing.T) {
	l := New(3, 1)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d: expected to be admitted within burst capacity", i)
		}
	}

	if l.Allow("1.2.3.4") {
		t.Error("expected request beyond burst capacity to be rejected")
	}
}

// TestLimiterBucketsPerClient verifies one client's consumption does not
// affect another client's bucket.
func TestLimiterBucketsPerClient(t *testing.T) {
	l := New(1, 1)

	if !l.Allow("1.1.1.1") {
		t.Fatal("expected first request from 1.1.1.1 to be admitted")
	}
	if !l.Allow("2.2.2.2") {
		t.Error("expected first request from a different client to be admitted independently")
	}
	if l.Allow("1.1.1.1") {
		t.Error("expected second immediate request from 1.1.1.1 to be rejected")
	}
}
