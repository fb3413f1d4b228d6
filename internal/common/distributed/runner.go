package distributed

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"quotagate/internal/common/logging"
)

// FixedDelay runs a task repeatedly, waiting Delay after each run finishes
// before starting the next, so runs never overlap.
type FixedDelay struct {
	Name         string
	InitialDelay time.Duration
	Delay        time.Duration
	Clock        clock.Clock
	Logger       logging.Logger
}

// Run blocks until ctx is done. Task errors and panics are logged and do
// not stop the schedule.
func (f *FixedDelay) Run(ctx context.Context, task func(context.Context) error) error {
	clk := f.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := f.Logger
	if logger == nil {
		logger = logging.Component("scheduler")
	}
	logger = logger.WithFields(logging.String("task", f.Name))

	timer := clk.NewTimer(f.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C():
		}

		if err := runOnce(ctx, task); err != nil {
			logger.Error("Scheduled task failed", err)
		}
		timer.Reset(f.Delay)
	}
}

func runOnce(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
