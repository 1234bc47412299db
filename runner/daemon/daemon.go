package daemon

import (
	"runtime"
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/pkg/errors"

	"github.com/stochkit/replisched/common/checkpoint"
	"github.com/stochkit/replisched/common/lifecycle"
	"github.com/stochkit/replisched/common/metrics"
	"github.com/stochkit/replisched/common/output"
	"github.com/stochkit/replisched/common/replicate"
	"github.com/stochkit/replisched/common/resources"
	"github.com/stochkit/replisched/common/simfile"
	"github.com/stochkit/replisched/common/utils"
	"github.com/stochkit/replisched/runner/domain"
)

const (
	// The scheduler loop counts consecutive cycles in which nothing finished.
	// Start attempts begin only once the count exceeds startAttemptThreshold,
	// so that a burst of completions is fully reaped before new replicates
	// claim the freed resources.
	startAttemptThreshold = 1000

	// Past these thresholds the loop sleeps longer between polls.
	mediumSleepThreshold = 2000
	longSleepThreshold   = 2100

	// Past progressLogThreshold a progress line is logged every
	// progressLogInterval idle cycles.
	progressLogThreshold = 3000
	progressLogInterval  = 1000

	shortSleep  = time.Millisecond
	mediumSleep = 10 * time.Millisecond
	longSleep   = 100 * time.Millisecond
)

var (
	// ErrNoReplicateCapacity indicates that the resource pool cannot host even
	// one replicate under the configured per-replicate ratios.
	ErrNoReplicateCapacity = errors.New("invalid configuration, no replicates can be processed")
)

// SchedulerDaemon runs a batch of simulation replicates to completion.
//
// It owns the resource allocator, the ordered status table, and the shared
// infrastructure workers (signal watcher, checkpoint signaler, output
// worker). All scheduling decisions happen on the single goroutine that
// calls Run; the only cross-goroutine state it polls is each runner's
// finished flag and the process-wide abort flag.
type SchedulerDaemon struct {
	log logger.Logger

	opts         *domain.SchedulerOptions
	replicateIDs []int
	overrides    []string

	store   simfile.Store
	factory replicate.SolverFactory
	abort   *lifecycle.AbortController

	allocator     *resources.Allocator
	workerManager *lifecycle.WorkerManager
	signaler      *checkpoint.Signaler
	outputQueue   *output.Queue
	outputWorker  *output.Worker
	signalWatcher *lifecycle.SignalWatcher
	prometheus    *metrics.SchedulerPrometheusManager

	// Shared read-only model data, loaded once before any replicate starts
	// and released after the last one has stopped.
	parameters     map[string]string
	reactionModel  *simfile.ReactionModel
	diffusionModel *simfile.DiffusionModel
	lattice        *simfile.Lattice

	// statuses is the ordered status table. The scheduler goroutine is its
	// sole writer; the lock exists so observers (tests, progress logging off
	// a snapshot) can read consistently.
	mu       sync.RWMutex
	statuses *orderedmap.OrderedMap[int, *ReplicateStatus]

	running []*replicate.Runner

	shutdownOnce sync.Once
}

// NewSchedulerDaemon creates a SchedulerDaemon for the given batch and
// returns a pointer to it. The overrides are raw "key=value" command-line
// tokens applied on top of the file-sourced simulation parameters.
func NewSchedulerDaemon(opts *domain.SchedulerOptions, overrides []string, store simfile.Store, factory replicate.SolverFactory, abort *lifecycle.AbortController) (*SchedulerDaemon, error) {
	if err := opts.ValidateSchedulerOptions(); err != nil {
		return nil, err
	}

	// Replicates start in the order the list was written on the command
	// line; the status table preserves it.
	replicateIDs, err := opts.ReplicateList()
	if err != nil {
		return nil, err
	}

	daemon := &SchedulerDaemon{
		opts:          opts,
		replicateIDs:  replicateIDs,
		overrides:     overrides,
		store:         store,
		factory:       factory,
		abort:         abort,
		workerManager: lifecycle.NewWorkerManager(),
		signaler:      checkpoint.NewSignaler(),
		outputQueue:   output.NewQueue(),
		statuses:      orderedmap.NewOrderedMap[int, *ReplicateStatus](),
	}
	config.InitLogger(&daemon.log, daemon)

	daemon.outputWorker = output.NewWorker(daemon.outputQueue, store)

	for _, id := range replicateIDs {
		daemon.statuses.Set(id, &ReplicateStatus{ID: id, State: Pending})
	}

	return daemon, nil
}

// Run executes the batch: it builds the resource pool, starts the shared
// infrastructure workers, schedules every replicate, and shuts everything
// down again. Run blocks until the batch has completed or been aborted.
//
// An abort (via signal or AbortController) is a clean outcome, not an error;
// Run returns an error only for setup failures and fatal scheduling faults.
func (d *SchedulerDaemon) Run() error {
	if err := d.setup(); err != nil {
		d.shutdown()
		return err
	}

	err := d.schedule()
	d.shutdown()

	return err
}

func (d *SchedulerDaemon) setup() error {
	cores := d.opts.Cores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}

	allocator, err := resources.NewAllocator(cores, d.opts.CoresPerReplicate, d.opts.Devices, d.opts.DevicesPerReplicate)
	if err != nil {
		return errors.Wrap(err, "could not build the resource pool")
	}
	d.allocator = allocator

	d.log.Info("Using %d CPU core(s) and %d accelerator device(s); %.2f core(s) and %.2f device(s) per replicate.",
		cores, d.opts.Devices, d.opts.CoresPerReplicate, d.opts.DevicesPerReplicate)

	if d.opts.ReserveOutputCore {
		core, err := d.allocator.ReserveCore()
		if err != nil {
			return errors.Wrap(err, "could not reserve a core for the output thread")
		}
		d.log.Info("Reserved CPU core %d for output and infrastructure threads.", core)
	}

	if !d.opts.LocalMode {
		d.signalWatcher = lifecycle.NewSignalWatcher(d.abort)
		d.signalWatcher.Start()
		d.workerManager.Register(d.signalWatcher)
	}

	d.signaler.StartCheckpointing(d.opts.CheckpointInterval())
	d.workerManager.Register(d.signaler)

	d.outputWorker.Start()
	d.workerManager.Register(d.outputWorker)

	if d.opts.PrometheusPort > 0 && !d.opts.LocalMode {
		d.prometheus = metrics.NewSchedulerPrometheusManager(d.opts.PrometheusPort)
		if err := d.prometheus.Start(); err != nil {
			// A simulation batch should not die because a metrics port is
			// taken; run without metrics instead.
			d.log.Error("Could not start the Prometheus manager: %v", err)
			d.prometheus = nil
		}
	}

	if err := d.loadModelData(); err != nil {
		return err
	}

	return nil
}

// loadModelData reads the simulation parameters (applying command-line
// overrides) and whatever model data the configured solver declares it needs.
func (d *SchedulerDaemon) loadModelData() error {
	parameters, err := d.store.Parameters()
	if err != nil {
		return errors.Wrap(err, "could not read the simulation parameters")
	}
	d.parameters = simfile.ApplyOverrides(parameters, d.overrides, d.log)

	if d.factory.NeedsReactionModel() {
		if d.reactionModel, err = d.store.ReactionModel(); err != nil {
			return errors.Wrap(err, "could not read the reaction model")
		}
		d.log.Debug("Loaded reaction model: %d species, %d reaction(s).",
			d.reactionModel.NumSpecies, d.reactionModel.NumReactions)
	}

	if d.factory.NeedsDiffusionModel() {
		if d.diffusionModel, err = d.store.DiffusionModel(); err != nil {
			return errors.Wrap(err, "could not read the diffusion model")
		}
		if d.lattice, err = d.store.Lattice(d.diffusionModel); err != nil {
			return errors.Wrap(err, "could not load the lattice buffers")
		}
		d.log.Debug("Loaded lattice buffers: %d particle byte(s), %d site byte(s).",
			d.diffusionModel.LatticeBytes(), d.diffusionModel.SiteBytes())
	}

	return nil
}

// schedule is the polling scheduler loop. Each cycle reaps finished
// replicates first; once enough consecutive cycles have passed with nothing
// to reap, it starts pending replicates up to the concurrency bound, and
// otherwise sleeps with the backoff schedule.
func (d *SchedulerDaemon) schedule() error {
	maxSimultaneous := d.allocator.MaxSimultaneousReplicates()
	if maxSimultaneous == 0 {
		d.log.Error(utils.RedStyle.Render("Cannot run even one replicate with the configured resource pool."))
		return errors.Wrapf(ErrNoReplicateCapacity,
			"%d usable core(s) at %.2f per replicate, %d device(s) at %.2f per replicate",
			d.allocator.UsableCores(), d.opts.CoresPerReplicate, d.allocator.NumDevices(), d.opts.DevicesPerReplicate)
	}

	d.log.Info("Running %d replicate(s) with solver \"%s\", at most %d simultaneously.",
		len(d.replicateIDs), d.factory.Name(), maxSimultaneous)

	var noopCycles uint64
	for !d.abort.Signaled() {
		noopCycles++

		for d.reapFinished() {
			noopCycles = 0
		}

		if noopCycles <= startAttemptThreshold {
			continue
		}

		next, pending := d.nextPending()
		if !pending && len(d.running) == 0 {
			d.log.Info("All %d replicate(s) have finished.", len(d.replicateIDs))
			return nil
		}

		if pending && len(d.running) < maxSimultaneous {
			if err := d.startReplicate(next); err != nil {
				return err
			}
			continue
		}

		d.idle(noopCycles)
	}

	return nil
}

// reapFinished reaps at most one finished replicate: joins its goroutine,
// releases its resources, and records its exit code. It returns true if a
// replicate was reaped.
func (d *SchedulerDaemon) reapFinished() bool {
	for i, runner := range d.running {
		if !runner.Finished() {
			continue
		}

		d.running = append(d.running[:i], d.running[i+1:]...)
		runner.Stop()
		d.finishReplicate(runner)

		return true
	}

	return false
}

func (d *SchedulerDaemon) startReplicate(id int) error {
	grant, err := d.allocator.Assign(id)
	if err != nil {
		return errors.Wrapf(err, "could not assign resources to replicate %d", id)
	}

	run := &replicate.Run{
		Replicate:      id,
		Parameters:     d.parameters,
		ReactionModel:  d.reactionModel,
		DiffusionModel: d.diffusionModel,
		Lattice:        d.lattice,
		Resources:      grant,
		Output:         d.outputQueue,
	}

	runner := replicate.NewRunner(id, d.factory.NewSolver(), run)
	run.Checkpoints = d.signaler.Subscribe(runner.Name())

	if err := runner.Start(); err != nil {
		d.signaler.Unsubscribe(runner.Name())
		d.allocator.Release(id)
		return errors.Wrapf(err, "could not start replicate %d", id)
	}

	d.workerManager.Register(runner)
	d.running = append(d.running, runner)

	d.updateStatus(id, func(status *ReplicateStatus) {
		status.State = Running
		status.StartedAt = runner.StartedAt()
	})

	d.log.Debug(utils.LightBlueStyle.Render("Started replicate %d on %s."), id, grant.String())
	d.publishGauges()

	return nil
}

// finishReplicate records the final state of a runner whose goroutine has
// already been joined.
func (d *SchedulerDaemon) finishReplicate(runner *replicate.Runner) {
	id := runner.Replicate()
	exitCode := runner.ExitCode()
	finishedAt := time.Now()

	d.signaler.Unsubscribe(runner.Name())
	d.workerManager.Remove(runner.Name())
	d.allocator.Release(id)

	d.updateStatus(id, func(status *ReplicateStatus) {
		status.State = Finished
		status.FinishedAt = finishedAt
		status.ExitCode = exitCode
	})

	duration := finishedAt.Sub(runner.StartedAt())
	if exitCode == replicate.ExitSuccess {
		d.log.Info(utils.GreenStyle.Render("Replicate %d finished in %v."), id, duration)
	} else {
		// A nonzero exit code is per-replicate data; it never fails the batch.
		d.log.Warn(utils.OrangeStyle.Render("Replicate %d finished with exit code %d after %v."), id, exitCode, duration)
	}

	if d.prometheus != nil {
		outcome := "success"
		if exitCode != replicate.ExitSuccess {
			outcome = "failure"
		}
		d.prometheus.ReplicatesCompletedCounter.WithLabelValues(outcome).Inc()
		d.prometheus.ReplicateDurationHistogram.Observe(duration.Seconds())
	}
	d.publishGauges()
}

// idle sleeps between polls, escalating the sleep as idle cycles accumulate,
// and periodically logs a progress line. The sleep is cut short by an abort.
func (d *SchedulerDaemon) idle(noopCycles uint64) {
	sleep := shortSleep
	if noopCycles > longSleepThreshold {
		sleep = longSleep
	} else if noopCycles > mediumSleepThreshold {
		sleep = mediumSleep
	}

	if noopCycles >= progressLogThreshold && noopCycles%progressLogInterval == 0 {
		running, pending, _ := d.Counts()
		d.log.Debug("Waiting for %d replicate(s) to finish; %d left to start.", running, pending)
		d.publishGauges()
	}

	select {
	case <-d.abort.Done():
	case <-time.After(sleep):
	}
}

func (d *SchedulerDaemon) shutdown() {
	d.shutdownOnce.Do(func() {
		d.log.Info("Scheduler shutting down.")

		// No checkpoint request fires after this returns, so no replicate can
		// observe one mid-teardown.
		d.signaler.StopCheckpointing()

		if d.abort.Signaled() {
			d.log.Warn(utils.YellowStyle.Render("Aborting %d worker(s)."), d.workerManager.NumWorkers())
			d.workerManager.AbortWorkers()
			for _, runner := range d.running {
				d.finishReplicate(runner)
			}
		} else {
			// Wait every replicate out before stopping the output worker, so
			// that the final drain sees every record.
			for d.reapFinished() {
			}
			for _, runner := range d.running {
				runner.Stop()
				d.finishReplicate(runner)
			}
			d.running = nil
			d.log.Debug("Stopping %d remaining worker(s).", d.workerManager.NumWorkers())
			d.workerManager.StopWorkers()
		}
		d.running = nil

		if err := d.store.Close(); err != nil {
			d.log.Error("Failed to close the simulation store: %v", err)
		}

		d.reactionModel = nil
		d.diffusionModel = nil
		d.lattice = nil

		if d.prometheus != nil {
			d.prometheus.Stop()
		}

		d.log.Info("Scheduler shutdown complete. Wrote %d output record(s).", d.outputWorker.Written())
	})
}

// nextPending returns the first pending replicate id in input-list order,
// and whether one exists.
func (d *SchedulerDaemon) nextPending() (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for el := d.statuses.Front(); el != nil; el = el.Next() {
		if el.Value.State == Pending {
			return el.Key, true
		}
	}

	return -1, false
}

func (d *SchedulerDaemon) updateStatus(id int, mutate func(*ReplicateStatus)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if status, ok := d.statuses.Get(id); ok {
		mutate(status)
	}
}

// StatusOf returns a copy of the status row for the given replicate id.
func (d *SchedulerDaemon) StatusOf(id int) (ReplicateStatus, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status, ok := d.statuses.Get(id)
	if !ok {
		return ReplicateStatus{}, false
	}

	return *status, true
}

// Counts returns how many replicates are currently Running, still Pending,
// and already Finished.
func (d *SchedulerDaemon) Counts() (running, pending, finished int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for el := d.statuses.Front(); el != nil; el = el.Next() {
		switch el.Value.State {
		case Running:
			running++
		case Pending:
			pending++
		case Finished:
			finished++
		}
	}

	return running, pending, finished
}

// RecordsWritten returns the number of output records written so far. It is
// exact once Run has returned.
func (d *SchedulerDaemon) RecordsWritten() int64 {
	return d.outputWorker.Written()
}

func (d *SchedulerDaemon) publishGauges() {
	if d.prometheus == nil {
		return
	}

	running, pending, _ := d.Counts()
	d.prometheus.ReplicatesRunningGauge.Set(float64(running))
	d.prometheus.ReplicatesRemainingGauge.Set(float64(pending))
	d.prometheus.OutputQueueDepthGauge.Set(float64(d.outputQueue.Len()))
	d.prometheus.CommittedCoreSharesGauge.Set(d.allocator.CommittedCoreShares().InexactFloat64())
	d.prometheus.CommittedDeviceSharesGauge.Set(d.allocator.CommittedDeviceShares().InexactFloat64())
}
