package lifecycle

import (
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Worker is an execution unit supervised by the WorkerManager: a replicate
// runner, the output worker, the checkpoint signaler, or the signal watcher.
type Worker interface {
	// Name returns a process-unique identity for the worker.
	Name() string

	// StopWorker instructs the worker to finish at its own pace and blocks
	// until it has exited.
	StopWorker()

	// AbortWorker instructs the worker to terminate immediately, without
	// waiting for in-flight work to reach a natural boundary, and blocks
	// until it has exited.
	AbortWorker()
}

// WorkerManager tracks every live Worker so that shutdown can fan out a
// stop-or-abort instruction to all of them.
//
// Workers register themselves (or are registered by the scheduler) when they
// start and are removed when they are reaped. Registration may happen from
// any goroutine.
type WorkerManager struct {
	log logger.Logger

	workers cmap.ConcurrentMap[string, Worker]
}

// NewWorkerManager creates a new WorkerManager and returns a pointer to it.
func NewWorkerManager() *WorkerManager {
	manager := &WorkerManager{
		workers: cmap.New[Worker](),
	}
	config.InitLogger(&manager.log, manager)

	return manager
}

// Register adds the given worker to the manager.
func (m *WorkerManager) Register(worker Worker) {
	m.workers.Set(worker.Name(), worker)
}

// Remove removes the worker with the given name from the manager, if present.
func (m *WorkerManager) Remove(name string) {
	m.workers.Remove(name)
}

// NumWorkers returns the number of currently-registered workers.
func (m *WorkerManager) NumWorkers() int {
	return m.workers.Count()
}

// StopWorkers instructs every registered worker to finish at its own pace
// and blocks until all of them have exited. Workers are removed from the
// manager as they stop.
func (m *WorkerManager) StopWorkers() {
	m.fanOut(func(worker Worker) {
		worker.StopWorker()
	})
}

// AbortWorkers instructs every registered worker to terminate immediately
// and blocks until all of them have exited. Workers are removed from the
// manager as they stop.
func (m *WorkerManager) AbortWorkers() {
	m.fanOut(func(worker Worker) {
		worker.AbortWorker()
	})
}

func (m *WorkerManager) fanOut(instruct func(Worker)) {
	var joined sync.WaitGroup

	for entry := range m.workers.IterBuffered() {
		worker := entry.Val

		joined.Add(1)
		go func() {
			defer joined.Done()
			instruct(worker)
			m.workers.Remove(worker.Name())
		}()
	}

	joined.Wait()
}
