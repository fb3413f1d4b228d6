package brokers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// DefaultVisibilityTimeout is how long a received message stays hidden
const DefaultVisibilityTimeout = 30 * time.Second

type memoryEntry struct {
	msg            Message
	group          string
	receipt        string
	invisibleUntil time.Time
}

// MemoryQueue is an in-process FIFO queue with visibility timeouts and
// per-group ordering: a group with a message in flight delivers nothing
// more until that message is deleted or becomes visible again.
type MemoryQueue struct {
	mu         sync.Mutex
	entries    []*memoryEntry
	clock      clock.PassiveClock
	visibility time.Duration
}

func NewMemoryQueue(clk clock.PassiveClock, visibility time.Duration) *MemoryQueue {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	return &MemoryQueue{clock: clk, visibility: visibility}
}

func (q *MemoryQueue) Send(_ context.Context, groupID, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, &memoryEntry{
		msg:   Message{ID: uuid.NewString(), Body: body},
		group: groupID,
	})
	return nil
}

func (q *MemoryQueue) ReceiveBatch(_ context.Context, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	inFlight := make(map[string]bool)
	for _, e := range q.entries {
		if now.Before(e.invisibleUntil) {
			inFlight[e.group] = true
		}
	}

	out := make([]Message, 0, max)
	for _, e := range q.entries {
		if len(out) >= max {
			break
		}
		if now.Before(e.invisibleUntil) || inFlight[e.group] {
			continue
		}
		e.receipt = uuid.NewString()
		e.invisibleUntil = now.Add(q.visibility)
		msg := e.msg
		msg.ReceiptHandle = e.receipt
		out = append(out, msg)
	}
	return out, nil
}

func (q *MemoryQueue) DeleteBatch(_ context.Context, messages []Message) ([]DeleteFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var failed []DeleteFailure
	for _, m := range messages {
		idx := -1
		for i, e := range q.entries {
			if e.msg.ID == m.ID && e.receipt == m.ReceiptHandle && e.receipt != "" {
				idx = i
				break
			}
		}
		if idx < 0 {
			failed = append(failed, DeleteFailure{ID: m.ID, Code: "ReceiptHandleIsInvalid", Reason: "message not in flight"})
			continue
		}
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	}
	return failed, nil
}

// Len returns the number of undeleted messages
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MemoryQueue) Close() error {
	return nil
}
