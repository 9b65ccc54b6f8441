package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_Frozen(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) || !clock.Now().Equal(start) {
		t.Error("frozen clock should not move on Now")
	}
	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", clock.Now(), later)
	}
}

func TestMockClock_Stepping(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewSteppingClock(start, time.Millisecond)

	first := clock.Now()
	second := clock.Now()
	if !first.Equal(start) {
		t.Errorf("first reading = %v, want %v", first, start)
	}
	if got := second.Sub(first); got != time.Millisecond {
		t.Errorf("step = %v, want 1ms", got)
	}
	if got := clock.Since(start); got != 2*time.Millisecond {
		t.Errorf("Since() = %v, want 2ms", got)
	}
}

func TestMockClock_ConcurrentNow(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewSteppingClock(start, time.Nanosecond)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()

	if got := clock.Since(start); got != 800*time.Nanosecond {
		t.Errorf("Since() = %v, want 800ns", got)
	}
}
