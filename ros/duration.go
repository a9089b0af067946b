package ros

import (
	"time"
)

// Duration is a non-negative span of time as a normalized {sec, nsec} pair.
type Duration struct {
	temporal
}

// NewDuration builds a normalized Duration from a {sec, nsec} pair.
func NewDuration(sec uint32, nsec uint32) Duration {
	var d Duration
	d.Sec, d.NSec = normalizeTemporal(int64(sec), int64(nsec))
	return d
}

// Add returns d + other.
func (d *Duration) Add(other Duration) Duration {
	var out Duration
	out.Sec, out.NSec = normalizeTemporal(
		int64(d.Sec)+int64(other.Sec), int64(d.NSec)+int64(other.NSec))
	return out
}

// Sub returns d - other. It panics when other is the larger span.
func (d *Duration) Sub(other Duration) Duration {
	var out Duration
	out.Sec, out.NSec = normalizeTemporal(
		int64(d.Sec)-int64(other.Sec), int64(d.NSec)-int64(other.NSec))
	return out
}

// Cmp orders two durations, returning -1, 0 or 1.
func (d *Duration) Cmp(other Duration) int {
	return compareNSec(d.ToNSec(), other.ToNSec())
}

// Sleep blocks the calling goroutine for the duration.
func (d *Duration) Sleep() error {
	if !d.IsZero() {
		time.Sleep(time.Duration(d.ToNSec()))
	}
	return nil
}
