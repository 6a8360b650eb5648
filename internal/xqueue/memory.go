package xqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pavelanni/capagrader/internal/model"
)

// MemoryQueue is a process-local Queue. It is not durable and is meant for
// tests and single-process runs.
type MemoryQueue struct {
	mu      sync.Mutex
	details map[string]*model.ExternalGraderDetail
	pending map[string][]string
	// waiters holds one channel per queue, closed when a detail arrives.
	waiters map[string]chan struct{}
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		details: make(map[string]*model.ExternalGraderDetail),
		pending: make(map[string][]string),
		waiters: make(map[string]chan struct{}),
	}
}

// CreateExternalGraderDetail stores d unless its identity is already known.
func (q *MemoryQueue) CreateExternalGraderDetail(_ context.Context, d model.ExternalGraderDetail) (model.ExternalGraderDetail, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := d.StudentItem.Key()
	if existing, ok := q.details[key]; ok {
		return *existing, false, nil
	}
	stored := d
	q.details[key] = &stored
	q.pending[d.QueueName] = append(q.pending[d.QueueName], key)
	if ch, ok := q.waiters[d.QueueName]; ok {
		close(ch)
		delete(q.waiters, d.QueueName)
	}
	return stored, true, nil
}

// SetScore moves a submitted detail to status.
func (q *MemoryQueue) SetScore(_ context.Context, item model.StudentItem, status model.SubmissionStatus, score *model.ScoreMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.details[item.Key()]
	if !ok {
		return ErrUnknownSubmission
	}
	if !d.Status.CanTransition(status) {
		return ErrInvalidTransition
	}
	d.Status = status
	d.Score = score
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns the stored detail for item.
func (q *MemoryQueue) Get(_ context.Context, item model.StudentItem) (model.ExternalGraderDetail, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.details[item.Key()]
	if !ok {
		return model.ExternalGraderDetail{}, ErrUnknownSubmission
	}
	return *d, nil
}

// List returns the details on queueName, or on every queue when it is empty,
// oldest first.
func (q *MemoryQueue) List(_ context.Context, queueName string) ([]model.ExternalGraderDetail, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.ExternalGraderDetail
	for _, d := range q.details {
		if queueName == "" || d.QueueName == queueName {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UUID < out[j].UUID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Pop removes and returns the oldest pending detail on queueName, waiting up
// to timeout for one to arrive. It returns nil when the wait times out.
func (q *MemoryQueue) Pop(ctx context.Context, queueName string, timeout time.Duration) (*model.ExternalGraderDetail, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		d, wake := q.take(queueName)
		if d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-wake:
		}
	}
}

// take pops the oldest pending detail on queueName. When there is none it
// returns the channel that is closed by the next arrival on that queue.
func (q *MemoryQueue) take(queueName string) (*model.ExternalGraderDetail, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := q.pending[queueName]
	if len(keys) == 0 {
		ch, ok := q.waiters[queueName]
		if !ok {
			ch = make(chan struct{})
			q.waiters[queueName] = ch
		}
		return nil, ch
	}
	q.pending[queueName] = keys[1:]
	d := *q.details[keys[0]]
	return &d, nil
}

// ExportSubmissions summarizes the details on queueName.
func (q *MemoryQueue) ExportSubmissions(ctx context.Context, queueName string) (model.SubmissionExport, error) {
	details, err := q.List(ctx, queueName)
	if err != nil {
		return model.SubmissionExport{}, err
	}
	return model.NewSubmissionExport(queueName, details, time.Now().UTC()), nil
}
