package replicate

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/stochkit/replisched/common/simfile"
)

// noopSolverFactory provides the built-in "noop" solver: a stand-in
// execution unit that needs no model data, optionally sleeps for the
// "noopRunMilliseconds" parameter, and emits a single completion record.
// Real numerical solvers register themselves with RegisterSolverFactory.
type noopSolverFactory struct{}

func (noopSolverFactory) Name() string              { return "noop" }
func (noopSolverFactory) NeedsReactionModel() bool  { return false }
func (noopSolverFactory) NeedsDiffusionModel() bool { return false }
func (noopSolverFactory) NewSolver() Solver         { return &noopSolver{} }

type noopSolver struct {
	checkpoints int
}

func (s *noopSolver) Run(ctx context.Context, run *Run) error {
	deadline := time.Now()
	if raw, ok := run.Parameters["noopRunMilliseconds"]; ok {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		deadline = deadline.Add(time.Duration(ms) * time.Millisecond)
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-run.Checkpoints:
			s.checkpoints++
		case <-time.After(time.Millisecond):
		}
	}

	payload, _ := json.Marshal(map[string]int{"checkpoints": s.checkpoints})
	run.Output.Push(&simfile.Record{
		ReplicateID: run.Replicate,
		Type:        "completion",
		Time:        time.Now(),
		Payload:     payload,
	})

	return nil
}

func init() {
	RegisterSolverFactory(noopSolverFactory{})
}
