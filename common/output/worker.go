package output

import (
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"

	"github.com/stochkit/replisched/common/simfile"
)

// Worker is the single consumer of the output Queue. It drains records
// continuously and serializes them to the store in arrival order.
//
// On a graceful stop the worker drains every remaining queued record before
// exiting, so no data is lost. On abort it exits immediately and discards
// whatever is still queued; abort semantics prioritize fast termination.
type Worker struct {
	log logger.Logger

	queue *Queue
	store simfile.Store

	stop      chan struct{}
	stopOnce  sync.Once
	abort     chan struct{}
	abortOnce sync.Once
	done      chan struct{}

	written int64
}

// NewWorker creates a new output Worker draining the given queue into the
// given store, and returns a pointer to it.
func NewWorker(queue *Queue, store simfile.Store) *Worker {
	worker := &Worker{
		queue: queue,
		store: store,
		stop:  make(chan struct{}),
		abort: make(chan struct{}),
		done:  make(chan struct{}),
	}
	config.InitLogger(&worker.log, worker)

	return worker
}

// Start launches the worker goroutine. Start is non-blocking.
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		w.drain()

		select {
		case <-w.queue.notify:
			// More records arrived; loop around and drain them.
		case <-w.stop:
			// Graceful stop: everything pushed before the stop request was
			// issued is already queued, so one final drain loses nothing.
			w.drain()
			w.log.Debug("Output worker stopping after writing %d record(s).", w.written)
			return
		case <-w.abort:
			discarded := w.queue.Len()
			if discarded > 0 {
				w.log.Warn("Output worker aborting; discarding %d queued record(s).", discarded)
			}
			return
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case <-w.abort:
			return
		default:
		}

		record, ok := w.queue.pop()
		if !ok {
			return
		}

		if err := w.store.AppendRecord(record); err != nil {
			// Losing one record is less severe than killing the batch; log
			// and keep draining.
			w.log.Error("Failed to write output record for replicate %d: %v", record.ReplicateID, err)
			continue
		}

		w.written++
	}
}

// Written returns the number of records successfully written so far. It is
// only exact once the worker has stopped.
func (w *Worker) Written() int64 {
	return w.written
}

// Name returns the worker identity used by the WorkerManager.
func (w *Worker) Name() string {
	return "output-worker"
}

// StopWorker requests a graceful stop and blocks until the queue has been
// fully drained and the worker goroutine has exited.
func (w *Worker) StopWorker() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

// AbortWorker requests an immediate stop, discarding undrained records, and
// blocks until the worker goroutine has exited.
func (w *Worker) AbortWorker() {
	w.abortOnce.Do(func() { close(w.abort) })
	<-w.done
}
