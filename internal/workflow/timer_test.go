package workflow

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDeadlineCountsDownAndFires(t *testing.T) {
	var fired atomic.Int32
	d := StartDeadline(50*time.Millisecond, 10*time.Millisecond, func() {
		fired.Add(1)
	})
	defer d.Stop()

	if r := d.Remaining(); r != 50*time.Millisecond {
		t.Fatalf("initial remaining = %v, want 50ms", r)
	}

	waitFor(t, func() bool { return fired.Load() == 1 }, "deadline fire")

	if !d.Expired() {
		t.Fatal("Expired() false after firing")
	}
	if r := d.Remaining(); r != 0 {
		t.Fatalf("remaining = %v after expiry, want 0", r)
	}

	// The callback fires exactly once even after further ticks would have
	// elapsed.
	time.Sleep(40 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
}

func TestDeadlineStopPreventsFire(t *testing.T) {
	var fired atomic.Int32
	d := StartDeadline(30*time.Millisecond, 10*time.Millisecond, func() {
		fired.Add(1)
	})
	d.Stop()
	d.Stop() // idempotent

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("stopped deadline fired %d times", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Minute, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{8 * time.Hour, "08:00:00"},
		{7*time.Hour + 59*time.Minute + 59*time.Second, "07:59:59"},
		{26*time.Hour + 3*time.Second, "26:00:03"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.d); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
