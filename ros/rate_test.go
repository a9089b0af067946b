package ros

import (
	"testing"
	"time"
)

func TestRatePeriod(t *testing.T) {
	r := NewRate(20)
	expected := r.ExpectedCycleTime()
	if expected.Sec != 0 || expected.NSec != 50000000 {
		t.Errorf("period {%d %d}", expected.Sec, expected.NSec)
	}

	r = CycleTime(NewDuration(0, 25000000))
	expected = r.ExpectedCycleTime()
	if expected.ToNSec() != 25000000 {
		t.Error(expected.ToNSec())
	}

	r.Reset()
	cycle := r.CycleTime()
	if !cycle.IsZero() {
		t.Error("CycleTime after Reset")
	}
}

func TestRateSleep(t *testing.T) {
	r := NewRate(20)
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := r.Sleep(); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 150*time.Millisecond {
		t.Errorf("four cycles finished in %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("four cycles took %v", elapsed)
	}

	cycle := r.CycleTime()
	if cycle.ToSec() > 1 {
		t.Error(cycle.ToSec())
	}
}

func TestRateOverrun(t *testing.T) {
	r := CycleTime(NewDuration(0, 10000000))
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	if err := r.Sleep(); err != nil {
		t.Fatal(err)
	}
	if waited := time.Since(start); waited > 5*time.Millisecond {
		t.Errorf("slept %v after an overrun", waited)
	}
}
