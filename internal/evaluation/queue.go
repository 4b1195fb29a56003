package evaluation

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Queue dispatches trigger jobs to a worker pool. Enqueue collapses
// duplicates: while a task is queued or running, further enqueues
// for it are dropped, so at most one trigger per task is ever in
// flight. Reconciliation fires jobs here and never waits on the
// scorer.
type Queue struct {
	trigger *Trigger
	jobs    chan string
	log     *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewQueue(trigger *Trigger, size int, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		trigger:  trigger,
		jobs:     make(chan string, size),
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// Start launches workers; they stop when Stop is called.
func (q *Queue) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

// Enqueue schedules a trigger for taskID. Returns false if the task
// is already queued or running, the queue is full, or the queue has
// been stopped; a dropped job is recovered by the next reconcile for
// the same order. The send happens under the mutex so a concurrent
// Stop cannot close the channel out from under it.
func (q *Queue) Enqueue(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, dup := q.inflight[taskID]; dup {
		return false
	}

	select {
	case q.jobs <- taskID:
		q.inflight[taskID] = struct{}{}
		return true
	default:
		q.log.Warn("evaluation queue full, dropping job", zap.String("task_id", taskID))
		return false
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for taskID := range q.jobs {
		if err := q.trigger.Run(ctx, taskID); err != nil {
			q.log.Error("trigger run failed",
				zap.String("task_id", taskID),
				zap.Error(err))
		}
		q.release(taskID)
	}
}

func (q *Queue) release(taskID string) {
	q.mu.Lock()
	delete(q.inflight, taskID)
	q.mu.Unlock()
}
