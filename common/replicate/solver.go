package replicate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stochkit/replisched/common/output"
	"github.com/stochkit/replisched/common/resources"
	"github.com/stochkit/replisched/common/simfile"
)

var (
	// ErrUnknownSolver indicates that no solver factory is registered under
	// the requested name.
	ErrUnknownSolver = errors.New("no solver factory registered under the requested name")
)

// Run bundles everything one replicate needs to execute: the shared
// read-only model data, the per-replicate resource grant, the output queue,
// and the checkpoint request channel.
//
// Parameters, models, and lattice buffers are shared by reference with every
// sibling replicate and must not be mutated.
type Run struct {
	// Replicate is the id of the replicate being executed.
	Replicate int

	// Parameters are the simulation parameters, including any command-line
	// overrides. Read-only.
	Parameters map[string]string

	// ReactionModel is nil when the solver does not need one.
	ReactionModel *simfile.ReactionModel

	// DiffusionModel and Lattice are nil when the solver does not need them.
	DiffusionModel *simfile.DiffusionModel
	Lattice        *simfile.Lattice

	// Resources is the compute grant bound to this replicate.
	Resources resources.ComputeResources

	// Output receives the replicate's result records.
	Output *output.Queue

	// Checkpoints delivers periodic checkpoint requests. The solver decides
	// what, if anything, to persist on each request.
	Checkpoints <-chan struct{}
}

// Solver advances one replicate of the simulation to completion. It is the
// opaque numerical method consumed by this system; implementations live
// outside the scheduler core.
//
// Run must return promptly once ctx is cancelled (the abort path) and must
// confine any failure to its error return; the runner converts errors and
// panics into replicate exit codes.
type Solver interface {
	Run(ctx context.Context, run *Run) error
}

// SolverFactory describes a solver implementation and creates instances of it.
type SolverFactory interface {
	// Name is the identifier used to select the solver on the command line.
	Name() string

	// NeedsReactionModel reports whether replicates require the reaction
	// model to be loaded.
	NeedsReactionModel() bool

	// NeedsDiffusionModel reports whether replicates require the diffusion
	// model and lattice buffers to be loaded.
	NeedsDiffusionModel() bool

	// NewSolver creates a solver instance. Each replicate gets its own.
	NewSolver() Solver
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]SolverFactory)
)

// RegisterSolverFactory makes a solver factory selectable by name. It panics
// if the name is already taken; registration happens from init functions
// where a duplicate is a programming error.
func RegisterSolverFactory(factory SolverFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, ok := factories[factory.Name()]; ok {
		panic(fmt.Sprintf("solver factory %q registered twice", factory.Name()))
	}

	factories[factory.Name()] = factory
}

// GetSolverFactory returns the factory registered under the given name.
func GetSolverFactory(name string) (SolverFactory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	factory, ok := factories[name]
	if !ok {
		return nil, ErrUnknownSolver
	}

	return factory, nil
}

// RegisteredSolvers returns the names of all registered solver factories in
// sorted order.
func RegisteredSolvers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
