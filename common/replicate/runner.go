package replicate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
)

const (
	// ExitSuccess is the exit code of a replicate whose solver returned nil.
	ExitSuccess = 0

	// ExitSolverFailure is the exit code of a replicate whose solver
	// returned a non-nil error.
	ExitSolverFailure = 1

	// ExitPanicked is the exit code of a replicate whose solver panicked.
	// The panic is recovered at the replicate goroutine boundary and never
	// propagates into the scheduler.
	ExitPanicked = 2
)

// Runner states. Transitions are strictly Created -> Running -> Finished.
const (
	stateCreated int32 = iota
	stateRunning
	stateFinished
)

var (
	// ErrAlreadyStarted indicates that Start was called more than once.
	ErrAlreadyStarted = errors.New("replicate runner has already been started")
)

// Runner supervises the execution of one replicate on its own goroutine,
// bound (best-effort) to the CPU cores of its resource grant.
//
// A nonzero exit code is recorded but never raised as an error: individual
// replicate failures are expected in multi-replicate batches and are
// surfaced to the scheduler as data.
type Runner struct {
	log logger.Logger

	replicate int
	solver    Solver
	run       *Run

	ctx    context.Context
	cancel context.CancelFunc

	state    atomic.Int32
	exitCode atomic.Int32

	startedAt time.Time
	done      chan struct{}
}

// NewRunner creates a Runner for the given replicate, in the Created state,
// and returns a pointer to it.
func NewRunner(replicate int, solver Solver, run *Run) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	runner := &Runner{
		replicate: replicate,
		solver:    solver,
		run:       run,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	config.InitLogger(&runner.log, runner)

	return runner
}

// Replicate returns the id of the replicate this runner supervises.
func (r *Runner) Replicate() int {
	return r.replicate
}

// StartedAt returns the time at which Start was called.
func (r *Runner) StartedAt() time.Time {
	return r.startedAt
}

// Start launches the replicate's execution. It is non-blocking and valid
// exactly once; a second call returns ErrAlreadyStarted.
func (r *Runner) Start() error {
	if !r.state.CompareAndSwap(stateCreated, stateRunning) {
		return ErrAlreadyStarted
	}

	r.startedAt = time.Now()
	go r.work()

	return nil
}

func (r *Runner) work() {
	defer close(r.done)

	// Pin the goroutine's OS thread to the granted cores. The thread is
	// discarded when the goroutine exits while still locked, so there is
	// nothing to undo.
	runtime.LockOSThread()
	if err := pinToCores(r.run.Resources.Cores); err != nil {
		r.log.Warn("Could not bind replicate %d to %s: %v", r.replicate, r.run.Resources.String(), err)
	}

	r.exitCode.Store(int32(r.execute()))
	r.state.Store(stateFinished)
}

// execute invokes the solver and converts its outcome into an exit code.
// A panic inside the solver is recovered here, at the execution-unit
// boundary.
func (r *Runner) execute() (exitCode int) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Replicate %d panicked: %v", r.replicate, p)
			exitCode = ExitPanicked
		}
	}()

	if err := r.solver.Run(r.ctx, r.run); err != nil {
		r.log.Error("Replicate %d solver failed: %v", r.replicate, err)
		return ExitSolverFailure
	}

	return ExitSuccess
}

// Finished is a non-blocking poll for completion. Once it has returned true
// it keeps returning true.
func (r *Runner) Finished() bool {
	return r.state.Load() == stateFinished
}

// ExitCode returns the replicate's exit code. It is meaningful only once
// Finished reports true.
func (r *Runner) ExitCode() int {
	return int(r.exitCode.Load())
}

// Stop blocks until the replicate's goroutine has exited. It is the only
// blocking call on the runner and must be invoked before the runner is
// discarded. Stopping a runner that was never started returns immediately.
func (r *Runner) Stop() {
	if r.state.Load() == stateCreated {
		return
	}
	<-r.done
}

// Abort cancels the replicate's context, instructing the solver to terminate
// immediately rather than run to natural completion, and joins it.
func (r *Runner) Abort() {
	r.cancel()
	r.Stop()
}

// Name returns the worker identity used by the WorkerManager.
func (r *Runner) Name() string {
	return fmt.Sprintf("replicate-%d", r.replicate)
}

// StopWorker lets the replicate finish at its own pace and joins it.
func (r *Runner) StopWorker() {
	r.Stop()
}

// AbortWorker terminates the replicate immediately and joins it.
func (r *Runner) AbortWorker() {
	r.Abort()
}
