package lifecycle

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
)

// SignalWatcher intercepts process-level termination signals on a dedicated
// goroutine and sets the abort flag on the first one received.
//
// Subsequent signals of the same kind are idempotent no-ops as far as the
// abort flag is concerned; they are logged and otherwise ignored.
type SignalWatcher struct {
	log logger.Logger

	abort *AbortController

	sig     chan os.Signal
	stopped chan struct{}
	done    chan struct{}
}

// NewSignalWatcher creates a new SignalWatcher bound to the given
// AbortController and returns a pointer to it.
func NewSignalWatcher(abort *AbortController) *SignalWatcher {
	watcher := &SignalWatcher{
		abort:   abort,
		sig:     make(chan os.Signal, 1),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	config.InitLogger(&watcher.log, watcher)

	return watcher
}

// Start subscribes to SIGINT, SIGTERM, and SIGABRT and begins watching for
// them on a dedicated goroutine. Start is non-blocking.
func (w *SignalWatcher) Start() {
	signal.Notify(w.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)

	go w.watch()
}

func (w *SignalWatcher) watch() {
	defer close(w.done)

	for {
		select {
		case received := <-w.sig:
			if w.abort.Abort() {
				w.log.Warn("Received signal %v. Aborting.", received)
			} else {
				w.log.Warn("Received signal %v. Abort already in progress.", received)
			}
		case <-w.stopped:
			return
		}
	}
}

// Name returns the worker identity used by the WorkerManager.
func (w *SignalWatcher) Name() string {
	return "signal-watcher"
}

// StopWorker unsubscribes from the watched signals and joins the watcher
// goroutine. Signals received after StopWorker returns follow the default
// process disposition again.
func (w *SignalWatcher) StopWorker() {
	signal.Stop(w.sig)
	close(w.stopped)
	<-w.done
}

// AbortWorker is identical to StopWorker; the watcher has nothing to
// terminate abruptly.
func (w *SignalWatcher) AbortWorker() {
	w.StopWorker()
}
