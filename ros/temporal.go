package ros

const nanosecondsPerSecond = 1000000000

const maxStampSec = int64(^uint32(0))

// normalizeTemporal folds nanosecond overflow into the second count and
// rejects values outside the uint32 range a stamp can carry.
func normalizeTemporal(sec int64, nsec int64) (uint32, uint32) {
	if nsec >= nanosecondsPerSecond {
		sec += nsec / nanosecondsPerSecond
		nsec %= nanosecondsPerSecond
	} else if nsec < 0 {
		borrow := (-nsec + nanosecondsPerSecond - 1) / nanosecondsPerSecond
		sec -= borrow
		nsec += borrow * nanosecondsPerSecond
	}
	if sec < 0 || sec > maxStampSec {
		panic("time is out of range")
	}
	return uint32(sec), uint32(nsec)
}

func compareNSec(lhs, rhs uint64) int {
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	}
	return 0
}

// temporal is the {sec,nsec} pair shared by Time and Duration, always kept
// normalized so that NSec stays below one second.
type temporal struct {
	Sec  uint32
	NSec uint32
}

func (t *temporal) IsZero() bool {
	return t.Sec == 0 && t.NSec == 0
}

func (t *temporal) ToSec() float64 {
	return float64(t.Sec) + float64(t.NSec)*1e-9
}

func (t *temporal) ToNSec() uint64 {
	return uint64(t.Sec)*nanosecondsPerSecond + uint64(t.NSec)
}

func (t *temporal) FromSec(sec float64) {
	t.FromNSec(uint64(sec * 1e9))
}

func (t *temporal) FromNSec(nsec uint64) {
	t.Sec, t.NSec = normalizeTemporal(0, int64(nsec))
}

func (t *temporal) Normalize() {
	t.Sec, t.NSec = normalizeTemporal(int64(t.Sec), int64(t.NSec))
}
