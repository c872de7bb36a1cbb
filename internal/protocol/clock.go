package protocol

import (
	"sync/atomic"
	"time"
)

// Clock issues millisecond timestamps that double as correlation ids. Ids
// are strictly increasing even when several are taken within the same
// millisecond, so two queued items never share an id.
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewClock creates a clock backed by the wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current wall time in milliseconds, without the uniqueness
// guarantee. It is used for receipt timestamps.
func (c *Clock) Now() int64 {
	return c.now().UnixMilli()
}

// Next returns a unique timestamp id.
func (c *Clock) Next() int64 {
	for {
		prev := c.last.Load()
		next := max(c.Now(), prev+1)
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
