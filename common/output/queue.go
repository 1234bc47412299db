package output

import (
	"sync"

	"github.com/stochkit/replisched/common/queue"
	"github.com/stochkit/replisched/common/simfile"
)

// Queue is the FIFO of output records connecting replicate goroutines to the
// single output worker.
//
// Push is safe for concurrent calls from any number of replicate goroutines
// and never blocks them; the queue is unbounded. Draining is reserved for
// the one Worker goroutine.
type Queue struct {
	mu      sync.Mutex
	records *queue.Fifo[*simfile.Record]

	// notify wakes the worker after a push; capacity 1 so producers never block.
	notify chan struct{}
}

// NewQueue creates a new, empty output Queue and returns a pointer to it.
func NewQueue() *Queue {
	return &Queue{
		records: queue.NewFifo[*simfile.Record](64),
		notify:  make(chan struct{}, 1),
	}
}

// Push appends the record to the queue. Push is non-blocking and safe for
// concurrent use.
func (q *Queue) Push(record *simfile.Record) {
	q.mu.Lock()
	q.records.Enqueue(record)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of records currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.records.Len()
}

// pop removes and returns the next record, if any.
func (q *Queue) pop() (*simfile.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.records.Dequeue()
}
