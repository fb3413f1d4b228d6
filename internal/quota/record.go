package quota

import (
	"fmt"
	"strings"
)

// DefaultClientID is the record consulted when a client has no quota of its own
const DefaultClientID = "default"

// WindowState is the per-period accounting for one (endpoint, client).
// Timestamps are Unix milliseconds and rates are events per millisecond.
// MaxAllowedRate and MaxAllowedCallsInPeriod are configuration; only the
// consumer mutates the other fields.
type WindowState struct {
	LastUpdated             int64   `json:"lastUpdated" yaml:"lastUpdated"`
	MaxAllowedRate          float64 `json:"maxAllowedRateInPeriod" yaml:"maxRate"`
	ObservedRate            float64 `json:"rate" yaml:"rate"`
	LastUpdatedBurst        int64   `json:"lastUpdatedBurst" yaml:"lastUpdatedBurst"`
	MaxAllowedCallsInPeriod int64   `json:"maxAllowedCallsInPeriod" yaml:"maxCalls"`
	CallsInPeriod           int64   `json:"callsInPeriod" yaml:"calls"`
}

// Record is the persisted quota state of one client on one endpoint.
// A period absent from Windows is unconfigured and never throttles.
type Record struct {
	HashKey  string                  `json:"hashKey"`
	ClientID string                  `json:"clientId"`
	Windows  map[Period]*WindowState `json:"payload"`
}

// HashKey builds the endpoint identity "api:verb"
func HashKey(api, verb string) string {
	return api + ":" + verb
}

// RecordKey identifies a record; it doubles as the queue grouping id
func RecordKey(hashKey, clientID string) string {
	return hashKey + ":" + clientID
}

// Key returns the record's identity
func (r *Record) Key() string {
	return RecordKey(r.HashKey, r.ClientID)
}

// Clone returns a deep copy so callers can mutate windows without
// touching the original.
func (r *Record) Clone() *Record {
	out := &Record{
		HashKey:  r.HashKey,
		ClientID: r.ClientID,
		Windows:  make(map[Period]*WindowState, len(r.Windows)),
	}
	for p, w := range r.Windows {
		if w == nil {
			continue
		}
		cp := *w
		out.Windows[p] = &cp
	}
	return out
}

// Validate checks identity and that every window has a known period and
// non-negative limits. Identities may not contain the event field
// separator, or events for the record could never be decoded.
func (r *Record) Validate() error {
	if r.HashKey == "" || r.ClientID == "" {
		return fmt.Errorf("record requires hashKey and clientId")
	}
	if strings.Contains(r.HashKey, eventSeparator) || strings.Contains(r.ClientID, eventSeparator) {
		return fmt.Errorf("record %s: hashKey and clientId must not contain %q", r.Key(), eventSeparator)
	}
	for p, w := range r.Windows {
		if !p.Valid() {
			return fmt.Errorf("record %s: unknown period %q", r.Key(), p)
		}
		if w == nil {
			return fmt.Errorf("record %s: nil window for %s", r.Key(), p)
		}
		if w.MaxAllowedRate < 0 || w.MaxAllowedCallsInPeriod < 0 {
			return fmt.Errorf("record %s: negative limit for %s", r.Key(), p)
		}
	}
	return nil
}
