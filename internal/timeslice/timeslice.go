// Package timeslice implements the cooperative scheduling timer described
// in spec §4.4 and §5: a lap threshold (200ms by default) that drives
// ShouldYield, consulted by TableSource's fetch and push streams to emit
// the 'yield' sentinel. The analyzer does not consult a Ticker itself; it
// hands one to the TableSources it opens.
package timeslice

import "time"

// Ticker tracks elapsed wall-clock time since the last reset and reports
// whether a lap has elapsed, i.e. whether the caller should yield.
type Ticker struct {
	threshold time.Duration
	lapStart  time.Time
	now       func() time.Time
}

// New returns a Ticker with the given lap threshold, started immediately.
func New(threshold time.Duration) *Ticker {
	t := &Ticker{threshold: threshold, now: time.Now}
	t.lapStart = t.now()
	return t
}

// ShouldYield reports whether the current lap has exceeded the threshold.
// Calling it does not reset the lap; callers that act on a true result call
// Reset once they have actually yielded.
func (t *Ticker) ShouldYield() bool {
	return t.now().Sub(t.lapStart) >= t.threshold
}

// Reset starts a new lap, used after the caller has yielded.
func (t *Ticker) Reset() {
	t.lapStart = t.now()
}

// Cancellable wraps a Ticker with a function that may abort the run
// entirely (spec §5 "Cancellation and timeouts": "the time-slice
// shouldYield predicate may throw to abort the pipeline").
type Cancellable struct {
	*Ticker
	cancel func() error
}

// NewCancellable returns a Cancellable ticker; cancel is consulted on every
// ShouldYieldOrCancel call and, if it returns a non-nil error, that error
// propagates to the caller instead of a plain yield.
func NewCancellable(threshold time.Duration, cancel func() error) *Cancellable {
	return &Cancellable{Ticker: New(threshold), cancel: cancel}
}

// ShouldYieldOrCancel reports (yield, err). err non-nil means the pipeline
// must unwind now; iterators run their finalisers (statement return,
// overlay cleanup) as they unwind.
func (c *Cancellable) ShouldYieldOrCancel() (bool, error) {
	if c.cancel != nil {
		if err := c.cancel(); err != nil {
			return false, err
		}
	}
	return c.ShouldYield(), nil
}
