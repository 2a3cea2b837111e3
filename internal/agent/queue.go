package agent

import (
	"context"
	"sync"
)

// serialQueue runs jobs one at a time per key, in submission order. Different keys
// run concurrently. A key's worker goroutine exits once its queue drains.
type serialQueue struct {
	mu     sync.Mutex
	queues map[string][]func(context.Context)
	wg     sync.WaitGroup
}

func newSerialQueue() *serialQueue {
	return &serialQueue{queues: make(map[string][]func(context.Context))}
}

func (q *serialQueue) Submit(ctx context.Context, key string, job func(context.Context)) {
	q.mu.Lock()
	pending, active := q.queues[key]
	q.queues[key] = append(pending, job)
	q.mu.Unlock()
	if active {
		return
	}
	q.wg.Add(1)
	go q.drain(ctx, key)
}

func (q *serialQueue) drain(ctx context.Context, key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.queues[key]
		if len(jobs) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.queues[key] = jobs[1:]
		q.mu.Unlock()

		job(ctx)
	}
}

// Wait blocks until every submitted job has finished.
func (q *serialQueue) Wait() { q.wg.Wait() }
