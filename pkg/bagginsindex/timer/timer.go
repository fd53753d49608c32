// Package timer measures how long an indexing step took.
package timer

import "time"

// Timer is a started stopwatch. The zero value is not started.
type Timer struct {
	start time.Time
	now   func() time.Time
}

// Start starts a timer on the wall clock.
func Start() Timer {
	return Timer{start: time.Now(), now: time.Now}
}

// StartWith starts a timer on a custom clock.
func StartWith(now func() time.Time) Timer {
	return Timer{start: now(), now: now}
}

// Elapsed is the time since Start. A zero Timer reports 0.
func (t Timer) Elapsed() time.Duration {
	if t.now == nil {
		return 0
	}
	return t.now().Sub(t.start)
}

// Millis is Elapsed in fractional milliseconds.
func (t Timer) Millis() float64 {
	return float64(t.Elapsed()) / float64(time.Millisecond)
}

// Seconds is Elapsed in fractional seconds, the unit Prometheus histograms use.
func (t Timer) Seconds() float64 {
	return t.Elapsed().Seconds()
}
