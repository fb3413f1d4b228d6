package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func newTestBucket(t *testing.T, size int, refill time.Duration) (*LeakyBucket, *testclock.FakeClock) {
	t.Helper()
	clk := testclock.NewFakeClock(time.UnixMilli(1_700_000_000_000))
	b, err := NewLeakyBucket(BucketConfig{Size: size, RefillInterval: refill}, clk)
	require.NoError(t, err)
	return b, clk
}

func TestLeakyBucket_FillsThenDenies(t *testing.T) {
	b, _ := newTestBucket(t, 3, time.Second)

	assert.True(t, b.Consume())
	assert.True(t, b.Consume())
	assert.True(t, b.Consume())
	assert.False(t, b.Consume())
	assert.Equal(t, int64(3), b.Drops())
}

func TestLeakyBucket_LeaksOverTime(t *testing.T) {
	b, clk := newTestBucket(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, b.Consume())
	}
	require.False(t, b.Consume())

	clk.Step(999 * time.Millisecond)
	assert.False(t, b.Consume(), "less than one refill interval has passed")

	clk.Step(time.Millisecond)
	assert.True(t, b.Consume(), "one drop leaked")
	assert.False(t, b.Consume())
}

func TestLeakyBucket_LeakFloorsAtZero(t *testing.T) {
	b, clk := newTestBucket(t, 3, time.Second)
	require.True(t, b.Consume())

	clk.Step(time.Hour)
	assert.True(t, b.Consume())
	assert.Equal(t, int64(1), b.Drops())
}

func TestLeakyBucket_LeaksBeforeFull(t *testing.T) {
	b, clk := newTestBucket(t, 3, time.Second)
	require.True(t, b.Consume())
	require.True(t, b.Consume())

	clk.Step(2 * time.Second)
	require.True(t, b.Consume())
	assert.Equal(t, int64(1), b.Drops(), "two drops leaked before the bucket ever filled")
}

func TestLeakyBucket_Concurrent(t *testing.T) {
	b, _ := newTestBucket(t, 100, time.Hour)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Consume() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), admitted.Load())
}

func TestBucketConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BucketConfig
		wantErr bool
	}{
		{"defaults", DefaultBucketConfig(), false},
		{"zero size", BucketConfig{Size: 0, RefillInterval: time.Second}, true},
		{"zero refill", BucketConfig{Size: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuckets_OnePerEndpoint(t *testing.T) {
	bs, err := NewBuckets(BucketConfig{Size: 1, RefillInterval: time.Hour}, testclock.NewFakeClock(time.Now()))
	require.NoError(t, err)

	assert.True(t, bs.For("orders:POST").Consume())
	assert.False(t, bs.For("orders:POST").Consume())
	assert.True(t, bs.For("orders:GET").Consume())
	assert.Same(t, bs.For("orders:GET"), bs.For("orders:GET"))
}
