package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var fired []string
	f.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "c") })

	f.Advance(2 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}
	if f.Pending() != 1 {
		t.Errorf("pending = %d, want 1", f.Pending())
	}

	f.Advance(8 * time.Second)
	if len(fired) != 3 || fired[2] != "c" {
		t.Fatalf("fired = %v, want [a b c]", fired)
	}
}

func TestFake_AdvanceFiresRescheduledTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	// A self-rescheduling callback, like a poll loop.
	var polls int
	var schedule func()
	schedule = func() {
		f.AfterFunc(6*time.Second, func() {
			polls++
			if polls < 3 {
				schedule()
			}
		})
	}
	schedule()

	f.Advance(18 * time.Second)

	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
	if f.Pending() != 0 {
		t.Errorf("pending = %d, want 0", f.Pending())
	}
}

func TestFake_Stop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false for pending timer")
	}
	if timer.Stop() {
		t.Error("Stop() = true for already stopped timer")
	}

	f.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFake_NowAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	f := NewFake(start)

	f.Advance(5 * time.Second)
	if got := f.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(5*time.Second))
	}
}
