// Package quota holds the quota data model shared by the decision engine,
// the event consumer and every state store, together with the wire codec
// for throttle events.
package quota

import (
	"fmt"
	"time"
)

// Period is one of the fixed accounting granularities
type Period string

const (
	Second Period = "second"
	Minute Period = "minute"
	Hour   Period = "hour"
	Week   Period = "week"
	Month  Period = "month"
)

// Periods lists every period, shortest first. Iteration over windows
// always follows this order.
var Periods = []Period{Second, Minute, Hour, Week, Month}

var periodLengths = map[Period]time.Duration{
	Second: time.Second,
	Minute: time.Minute,
	Hour:   time.Hour,
	Week:   7 * 24 * time.Hour,
	Month:  30 * 24 * time.Hour,
}

// Duration returns the length of p, or zero for an unknown period
func (p Period) Duration() time.Duration {
	return periodLengths[p]
}

// Millis returns the length of p in milliseconds
func (p Period) Millis() int64 {
	return periodLengths[p].Milliseconds()
}

func (p Period) Valid() bool {
	_, ok := periodLengths[p]
	return ok
}

// ParsePeriod validates s as a period name
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}
