package ros

import (
	gotime "time"
)

// Time is a ROS timestamp, seconds and nanoseconds since the Unix epoch.
type Time struct {
	temporal
}

// NewTime builds a normalized Time from a {sec, nsec} pair.
func NewTime(sec uint32, nsec uint32) Time {
	var t Time
	t.Sec, t.NSec = normalizeTemporal(int64(sec), int64(nsec))
	return t
}

// Now returns the wall clock as a Time.
func Now() Time {
	var t Time
	t.FromNSec(uint64(gotime.Now().UnixNano()))
	return t
}

// Diff returns the span from the given stamp up to t. It panics when from
// lies after t, since a Duration cannot go negative.
func (t *Time) Diff(from Time) Duration {
	var d Duration
	d.Sec, d.NSec = normalizeTemporal(
		int64(t.Sec)-int64(from.Sec), int64(t.NSec)-int64(from.NSec))
	return d
}

// Add returns the stamp shifted forward by d.
func (t *Time) Add(d Duration) Time {
	var out Time
	out.Sec, out.NSec = normalizeTemporal(
		int64(t.Sec)+int64(d.Sec), int64(t.NSec)+int64(d.NSec))
	return out
}

// Sub returns the stamp shifted back by d.
func (t *Time) Sub(d Duration) Time {
	var out Time
	out.Sec, out.NSec = normalizeTemporal(
		int64(t.Sec)-int64(d.Sec), int64(t.NSec)-int64(d.NSec))
	return out
}

// Cmp orders two stamps, returning -1, 0 or 1.
func (t *Time) Cmp(other Time) int {
	return compareNSec(t.ToNSec(), other.ToNSec())
}
