package ros

// Rate keeps a loop running at a fixed frequency, accounting for the time
// the loop body took.
type Rate struct {
	actualCycleTime   Duration
	expectedCycleTime Duration
	start             Time
}

// NewRate builds a Rate ticking frequency times per second.
func NewRate(frequency float64) Rate {
	var period Duration
	period.FromSec(1.0 / frequency)
	return Rate{expectedCycleTime: period, start: Now()}
}

// CycleTime builds a Rate with an explicit period.
func CycleTime(d Duration) Rate {
	return Rate{expectedCycleTime: d, start: Now()}
}

// CycleTime returns the measured duration of the last cycle.
func (r *Rate) CycleTime() Duration {
	return r.actualCycleTime
}

// ExpectedCycleTime returns the configured period.
func (r *Rate) ExpectedCycleTime() Duration {
	return r.expectedCycleTime
}

// Reset restarts the current cycle at now.
func (r *Rate) Reset() {
	r.actualCycleTime = Duration{}
	r.start = Now()
}

// Sleep blocks until the next cycle boundary. An overrunning loop gets the
// boundary snapped forward instead of a burst of catch up cycles.
func (r *Rate) Sleep() error {
	end := Now()
	if end.Cmp(r.start) < 0 {
		// The clock jumped backwards.
		r.start = end
	}
	r.actualCycleTime = end.Diff(r.start)

	expectedEnd := r.start.Add(r.expectedCycleTime)
	r.start = expectedEnd
	if end.Cmp(expectedEnd) >= 0 {
		over := end.Diff(expectedEnd)
		if over.Cmp(r.expectedCycleTime) > 0 {
			r.start = end
		}
		return nil
	}
	remaining := expectedEnd.Diff(end)
	return remaining.Sleep()
}
