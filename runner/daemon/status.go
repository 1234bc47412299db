package daemon

import (
	"fmt"
	"time"
)

// ReplicateState is the scheduling lifecycle state of one replicate.
// Transitions are strictly Pending -> Running -> Finished; a state never
// moves backwards.
type ReplicateState int32

const (
	// Pending means the replicate has not been started yet.
	Pending ReplicateState = iota

	// Running means the replicate holds a resource grant and its execution
	// unit is active.
	Running

	// Finished means the replicate's execution unit has exited, its exit
	// code has been recorded, and its resources have been released.
	Finished
)

func (s ReplicateState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	default:
		return fmt.Sprintf("ReplicateState(%d)", int32(s))
	}
}

// ReplicateStatus is one row of the scheduler's status table.
type ReplicateStatus struct {
	ID    int
	State ReplicateState

	// StartedAt is set on the transition to Running, FinishedAt on the
	// transition to Finished.
	StartedAt  time.Time
	FinishedAt time.Time

	// ExitCode is meaningful only once State is Finished. A nonzero exit
	// code is recorded per replicate and never escalated to a scheduler
	// failure.
	ExitCode int
}

// Duration returns the wall-clock time between the replicate's start and
// finish. It is zero until the replicate has finished.
func (s *ReplicateStatus) Duration() time.Duration {
	if s.State != Finished {
		return 0
	}

	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *ReplicateStatus) String() string {
	switch s.State {
	case Finished:
		return fmt.Sprintf("replicate %d: %s (exit code %d, %v)", s.ID, s.State, s.ExitCode, s.Duration())
	default:
		return fmt.Sprintf("replicate %d: %s", s.ID, s.State)
	}
}
