package ratelimit

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// LeakyBucket is a per-node admission gate for one endpoint. Each admitted
// call adds a drop; one drop leaks out every refill interval.
type LeakyBucket struct {
	mu       sync.Mutex
	clock    clock.PassiveClock
	size     int64
	refill   time.Duration
	drops    int64
	lastLeak time.Time
}

// NewLeakyBucket creates an empty bucket. A nil clock uses wall time.
func NewLeakyBucket(cfg BucketConfig, clk clock.PassiveClock) (*LeakyBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &LeakyBucket{
		clock:  clk,
		size:   int64(cfg.Size),
		refill: cfg.RefillInterval,
	}, nil
}

// Consume admits the call if the bucket has room
func (b *LeakyBucket) Consume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if !b.lastLeak.IsZero() {
		if leaked := int64(now.Sub(b.lastLeak) / b.refill); leaked > 0 {
			b.drops -= leaked
			if b.drops < 0 {
				b.drops = 0
			}
			b.lastLeak = now
		}
	}

	if b.drops >= b.size {
		return false
	}
	if b.lastLeak.IsZero() {
		b.lastLeak = now
	}
	b.drops++
	return true
}

// Drops reports how many drops are currently in the bucket, ignoring any
// leak that is due but not yet applied.
func (b *LeakyBucket) Drops() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}

// Buckets holds one LeakyBucket per endpoint hash key, created on first use
type Buckets struct {
	mu      sync.Mutex
	cfg     BucketConfig
	clock   clock.PassiveClock
	buckets map[string]*LeakyBucket
}

func NewBuckets(cfg BucketConfig, clk clock.PassiveClock) (*Buckets, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Buckets{
		cfg:     cfg,
		clock:   clk,
		buckets: make(map[string]*LeakyBucket),
	}, nil
}

// For returns the bucket for hashKey
func (bs *Buckets) For(hashKey string) EndpointLimiter {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.buckets[hashKey]
	if !ok {
		// cfg was validated in NewBuckets
		b, _ = NewLeakyBucket(bs.cfg, bs.clock)
		bs.buckets[hashKey] = b
	}
	return b
}
