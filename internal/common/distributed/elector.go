// Package distributed decides which node runs the event pipeline and
// schedules it.
package distributed

import (
	"context"
	"net/netip"
)

// LocalIP is reported by electors that run without a fleet
const LocalIP = "127.0.0.1"

// Elector reports and competes for pipeline leadership
type Elector interface {
	// IsLeader reports whether this node may run the pipeline now
	IsLeader(ctx context.Context) bool
	// ElectLeader takes part in an election round and reports the outcome
	ElectLeader(ctx context.Context) bool
	// LeaderIP returns the current leader, or "" when none is known
	LeaderIP(ctx context.Context) string
}

// SelfElector makes every node its own leader. Only correct for a single
// node deployment.
type SelfElector struct{}

func (SelfElector) IsLeader(context.Context) bool    { return true }
func (SelfElector) ElectLeader(context.Context) bool { return true }
func (SelfElector) LeaderIP(context.Context) string  { return LocalIP }

// higherIP orders addresses numerically; unparsable ones lose to any
// valid address and compare as strings among themselves.
func higherIP(a, b string) bool {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	switch {
	case errA == nil && errB == nil:
		return pa.Compare(pb) > 0
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a > b
	}
}
