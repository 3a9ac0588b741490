package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestAllowDrainsAndRefills(t *testing.T) {
	mock := clock.NewMock()
	l := New(mock)

	for i := 0; i < 3; i++ {
		if !l.Allow("conn-a", 3, 1) {
			t.Fatalf("request %d rejected with tokens remaining", i+1)
		}
	}
	if l.Allow("conn-a", 3, 1) {
		t.Fatalf("request allowed on empty bucket")
	}

	mock.Add(time.Second)
	if !l.Allow("conn-a", 3, 1) {
		t.Fatalf("request rejected after refill")
	}
	if l.Allow("conn-a", 3, 1) {
		t.Fatalf("one second should refill exactly one token")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	mock := clock.NewMock()
	l := New(mock)

	if !l.Allow("conn-a", 1, 1) {
		t.Fatalf("first key rejected")
	}
	if l.Allow("conn-a", 1, 1) {
		t.Fatalf("first key not drained")
	}
	if !l.Allow("conn-b", 1, 1) {
		t.Fatalf("second key throttled by first key's bucket")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	mock := clock.NewMock()
	l := New(mock)

	l.Allow("conn-a", 1, 0)
	if l.Allow("conn-a", 1, 0) {
		t.Fatalf("bucket not drained")
	}
	l.Forget("conn-a")
	if !l.Allow("conn-a", 1, 0) {
		t.Fatalf("forgotten key did not start fresh")
	}
}
