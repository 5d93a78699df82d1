package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"rollcall/internal/queue"
)

// Recorder appends records to the ledger. The API process publishes to a
// queue and a worker does the actual insert; tests use the in-memory variant.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// QueueRecorder ships records over a queue for asynchronous persistence.
type QueueRecorder struct {
	q queue.Queue
}

// NewQueueRecorder wraps a queue as a Recorder.
func NewQueueRecorder(q queue.Queue) *QueueRecorder {
	return &QueueRecorder{q: q}
}

// Append publishes the record as a queue message.
func (r *QueueRecorder) Append(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.q.Publish(ctx, queue.Message{Type: queue.TypeRecord, Body: body})
}

// MemoryRecorder collects records in memory, for tests and the simulator.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Append stores the record.
func (r *MemoryRecorder) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (r *MemoryRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
