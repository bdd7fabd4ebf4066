package utils

import "time"

// Timer measures one provider attempt. The first Stop fixes the duration, so
// a stream wrapper that stops on several exit paths reports the earliest one.
type Timer struct {
	now     func() time.Time
	start   time.Time
	elapsed time.Duration
	stopped bool
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	return &Timer{now: now, start: now()}
}

// Stop records the time since NewTimer and returns it. Later calls return
// the first value.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.elapsed = t.now().Sub(t.start)
		t.stopped = true
	}
	return t.elapsed
}

// Elapsed is the stopped duration, or the time so far while still running.
func (t *Timer) Elapsed() time.Duration {
	if t.stopped {
		return t.elapsed
	}
	return t.now().Sub(t.start)
}
