package clock

import (
	"testing"
	"time"
)

func TestFakeClockAfterAdvances(t *testing.T) {
	start := time.Date(2025, 4, 1, 22, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	var hooked time.Duration
	fc.OnAfter = func(d time.Duration) { hooked += d }

	got := <-fc.After(90 * time.Second)
	if !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("After returned %s, expected %s", got, start.Add(90*time.Second))
	}

	fc.After(30 * time.Second)
	if !fc.Now().Equal(start.Add(2 * time.Minute)) {
		t.Errorf("Now is %s after two waits", fc.Now())
	}
	if hooked != 2*time.Minute {
		t.Errorf("hook saw %s, expected 2m", hooked)
	}

	waits := fc.Waits()
	if len(waits) != 2 || waits[0] != 90*time.Second || waits[1] != 30*time.Second {
		t.Errorf("unexpected waits %v", waits)
	}
}
