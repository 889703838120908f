package syncer

import (
	"sync"
)

// writeQueue runs a target's remote writes one at a time, in issue order.
// Pushing never blocks.
type writeQueue struct {
	mu     sync.Mutex
	jobs   []func()
	signal chan struct{}
	closed bool
	done   chan struct{}
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *writeQueue) push(job func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting jobs; queued jobs still run.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *writeQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.signal
			continue
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		job()
	}
}
