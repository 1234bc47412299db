package checkpoint

import (
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
)

// Signaler periodically requests that all active replicates persist
// checkpoint state.
//
// What a replicate does with a checkpoint request is delegated to its
// execution unit; the Signaler's contract is only that it fires at most once
// per configured interval, stops cleanly on request, and never fires after
// StopCheckpointing has returned.
type Signaler struct {
	log logger.Logger

	mu          sync.Mutex
	subscribers map[string]chan struct{}

	interval time.Duration
	ticking  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewSignaler creates a new checkpoint Signaler and returns a pointer to it.
func NewSignaler() *Signaler {
	signaler := &Signaler{
		subscribers: make(map[string]chan struct{}),
	}
	config.InitLogger(&signaler.log, signaler)

	return signaler
}

// Subscribe registers a listener under the given name and returns the
// channel on which checkpoint requests are delivered. A request is a single
// value on the channel; a listener that has not consumed the previous
// request is skipped rather than blocked on.
func (s *Signaler) Subscribe(name string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make(chan struct{}, 1)
	s.subscribers[name] = requests

	return requests
}

// Unsubscribe removes the named listener, if present.
func (s *Signaler) Unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscribers, name)
}

// StartCheckpointing begins firing checkpoint requests every interval.
// An interval of zero (or less) disables checkpointing entirely.
func (s *Signaler) StartCheckpointing(interval time.Duration) {
	if interval <= 0 {
		s.log.Debug("Checkpointing is disabled.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticking {
		return
	}

	s.interval = interval
	s.ticking = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.log.Info("Checkpointing every %v.", interval)
	go s.tick()
}

func (s *Signaler) tick() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcast()
		case <-s.stop:
			return
		}
	}
}

func (s *Signaler) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, requests := range s.subscribers {
		select {
		case requests <- struct{}{}:
		default:
			s.log.Debug("Replicate %s has not consumed its previous checkpoint request; skipping.", name)
		}
	}
}

// StopCheckpointing stops the ticker and joins the signaling goroutine. Once
// StopCheckpointing returns, no further checkpoint request will be delivered.
// Calling it when checkpointing never started (or has already stopped) is a
// no-op.
func (s *Signaler) StopCheckpointing() {
	s.mu.Lock()
	if !s.ticking {
		s.mu.Unlock()
		return
	}
	s.ticking = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Name returns the worker identity used by the WorkerManager.
func (s *Signaler) Name() string {
	return "checkpoint-signaler"
}

// StopWorker stops checkpointing; it satisfies the lifecycle Worker interface.
func (s *Signaler) StopWorker() {
	s.StopCheckpointing()
}

// AbortWorker stops checkpointing immediately. There is no in-flight work to
// discard, so it is identical to StopWorker.
func (s *Signaler) AbortWorker() {
	s.StopCheckpointing()
}
