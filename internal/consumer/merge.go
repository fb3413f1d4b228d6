package consumer

import "quotagate/internal/quota"

// Merge folds one throttle event into rec. For each period the event
// carries, the window takes the event's timestamp and rate; its burst
// counter restarts when the event falls a full period after the burst
// anchor and is incremented otherwise. Periods the record does not
// configure are skipped and returned.
func Merge(rec *quota.Record, ev quota.ThrottleEvent) (skipped []quota.Period) {
	for _, p := range quota.Periods {
		rate, ok := ev.Rates[p]
		if !ok {
			continue
		}
		w := rec.Windows[p]
		if w == nil {
			skipped = append(skipped, p)
			continue
		}

		w.LastUpdated = ev.Timestamp
		w.ObservedRate = rate
		if ev.Timestamp-w.LastUpdatedBurst >= p.Millis() {
			w.CallsInPeriod = 1
			w.LastUpdatedBurst = ev.Timestamp
		} else {
			w.CallsInPeriod++
		}
	}
	return skipped
}
