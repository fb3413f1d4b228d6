package quota

import (
	"strconv"
	"strings"
	"time"

	apperrors "quotagate/internal/common/errors"
)

// UnconfiguredRate is the rate reported for a period the record does not configure
const UnconfiguredRate = -1.0

// eventSeparator splits the fields of an encoded event
const eventSeparator = ","

// timestampLayout keeps millisecond precision so decoded events carry the
// exact instant the decision was made.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// RateToken is the per-period outcome of a single decision
type RateToken struct {
	Period  Period
	Rate    float64
	Allowed bool
}

// ThrottleEvent records the candidate rates of one allowed call.
// Timestamp is Unix milliseconds; Rates holds only strictly positive values.
type ThrottleEvent struct {
	HashKey   string
	ClientID  string
	Timestamp int64
	Rates     map[Period]float64
}

// NewThrottleEvent builds the event for an allowed decision from its tokens,
// keeping only positive rates.
func NewThrottleEvent(hashKey, clientID string, ts int64, tokens []RateToken) ThrottleEvent {
	ev := ThrottleEvent{
		HashKey:   hashKey,
		ClientID:  clientID,
		Timestamp: ts,
		Rates:     make(map[Period]float64, len(tokens)),
	}
	for _, t := range tokens {
		if t.Rate > 0 {
			ev.Rates[t.Period] = t.Rate
		}
	}
	return ev
}

// GroupID is the ordering key used when the event is enqueued
func (e ThrottleEvent) GroupID() string {
	return RecordKey(e.HashKey, e.ClientID)
}

// Encode renders the event as
// hashKey,clientId,timestamp,period1,rate1,...,periodN,rateN
// with periods in canonical order.
func (e ThrottleEvent) Encode() string {
	var b strings.Builder
	b.WriteString(e.HashKey)
	b.WriteByte(',')
	b.WriteString(e.ClientID)
	b.WriteByte(',')
	b.WriteString(time.UnixMilli(e.Timestamp).UTC().Format(timestampLayout))
	for _, p := range Periods {
		rate, ok := e.Rates[p]
		if !ok || !(rate > 0) {
			continue
		}
		b.WriteByte(',')
		b.WriteString(string(p))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(rate, 'g', -1, 64))
	}
	return b.String()
}

// ParseThrottleEvent decodes a message body produced by Encode.
// Non-positive rates are dropped; unknown period names are ignored.
func ParseThrottleEvent(body string) (ThrottleEvent, error) {
	parts := strings.Split(strings.TrimSpace(body), eventSeparator)
	if len(parts) < 3 {
		return ThrottleEvent{}, apperrors.ParseError("throttle event needs hashKey, clientId and timestamp", nil).
			WithContext("body", body)
	}
	if parts[0] == "" || parts[1] == "" {
		return ThrottleEvent{}, apperrors.ParseError("throttle event has empty identity", nil).
			WithContext("body", body)
	}
	if (len(parts)-3)%2 != 0 {
		return ThrottleEvent{}, apperrors.ParseError("throttle event has an unpaired period", nil).
			WithContext("body", body)
	}

	ts, err := time.Parse(time.RFC3339Nano, parts[2])
	if err != nil {
		return ThrottleEvent{}, apperrors.ParseError("invalid throttle event timestamp", err).
			WithContext("body", body)
	}

	ev := ThrottleEvent{
		HashKey:   parts[0],
		ClientID:  parts[1],
		Timestamp: ts.UnixMilli(),
		Rates:     make(map[Period]float64),
	}
	for i := 3; i < len(parts); i += 2 {
		rate, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return ThrottleEvent{}, apperrors.ParseError("invalid rate", err).
				WithContext("period", parts[i])
		}
		p := Period(parts[i])
		if !p.Valid() || !(rate > 0) {
			continue
		}
		ev.Rates[p] = rate
	}
	return ev, nil
}
