package replicate_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/output"
	"github.com/stochkit/replisched/common/replicate"
	"github.com/stochkit/replisched/common/simfile"
)

// funcSolver adapts a plain function to the Solver interface.
type funcSolver func(ctx context.Context, run *replicate.Run) error

func (f funcSolver) Run(ctx context.Context, run *replicate.Run) error {
	return f(ctx, run)
}

func newRun(id int) *replicate.Run {
	return &replicate.Run{
		Replicate:  id,
		Parameters: map[string]string{},
		Output:     output.NewQueue(),
	}
}

var _ = Describe("Replicate runner", func() {
	It("Should record a zero exit code when the solver succeeds", func() {
		solver := funcSolver(func(ctx context.Context, run *replicate.Run) error {
			return nil
		})

		runner := replicate.NewRunner(4, solver, newRun(4))
		Expect(runner.Start()).To(Succeed())

		Eventually(runner.Finished, time.Second).Should(BeTrue())
		runner.Stop()
		Expect(runner.ExitCode()).To(Equal(replicate.ExitSuccess))
	})

	It("Should record a solver-failure exit code when the solver errors", func() {
		solver := funcSolver(func(ctx context.Context, run *replicate.Run) error {
			return fmt.Errorf("numerical instability")
		})

		runner := replicate.NewRunner(5, solver, newRun(5))
		Expect(runner.Start()).To(Succeed())

		Eventually(runner.Finished, time.Second).Should(BeTrue())
		runner.Stop()
		Expect(runner.ExitCode()).To(Equal(replicate.ExitSolverFailure))
	})

	It("Should confine a solver panic to the replicate", func() {
		solver := funcSolver(func(ctx context.Context, run *replicate.Run) error {
			panic("index out of range in the propensity table")
		})

		runner := replicate.NewRunner(6, solver, newRun(6))
		Expect(runner.Start()).To(Succeed())

		Eventually(runner.Finished, time.Second).Should(BeTrue())
		runner.Stop()
		Expect(runner.ExitCode()).To(Equal(replicate.ExitPanicked))
	})

	It("Should reject a second start", func() {
		solver := funcSolver(func(ctx context.Context, run *replicate.Run) error {
			return nil
		})

		runner := replicate.NewRunner(7, solver, newRun(7))
		Expect(runner.Start()).To(Succeed())
		Expect(runner.Start()).To(Equal(replicate.ErrAlreadyStarted))

		runner.Stop()
	})

	It("Should return immediately from Stop when never started", func() {
		solver := funcSolver(func(ctx context.Context, run *replicate.Run) error {
			return nil
		})

		runner := replicate.NewRunner(8, solver, newRun(8))

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			runner.Stop()
		}()
		Eventually(finished, time.Second).Should(BeClosed())
	})

	It("Should cancel the solver's context on abort", func() {
		started := make(chan struct{})
		solver := funcSolver(func(ctx context.Context, run *replicate.Run) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})

		runner := replicate.NewRunner(9, solver, newRun(9))
		Expect(runner.Start()).To(Succeed())
		Eventually(started, time.Second).Should(BeClosed())

		runner.Abort()

		Expect(runner.Finished()).To(BeTrue())
		Expect(runner.ExitCode()).To(Equal(replicate.ExitSolverFailure))
	})

	It("Should expose the pushed records to the output queue", func() {
		run := newRun(10)
		solver := funcSolver(func(ctx context.Context, r *replicate.Run) error {
			r.Output.Push(&simfile.Record{ReplicateID: r.Replicate, Type: "result", Time: time.Now()})
			return nil
		})

		runner := replicate.NewRunner(10, solver, run)
		Expect(runner.Start()).To(Succeed())
		runner.Stop()

		Expect(run.Output.Len()).To(Equal(1))
	})
})

var _ = Describe("Solver registry", func() {
	It("Should resolve the built-in noop solver", func() {
		factory, err := replicate.GetSolverFactory("noop")
		Expect(err).To(BeNil())
		Expect(factory.Name()).To(Equal("noop"))
		Expect(factory.NeedsReactionModel()).To(BeFalse())
		Expect(factory.NeedsDiffusionModel()).To(BeFalse())
	})

	It("Should fail for an unregistered solver name", func() {
		_, err := replicate.GetSolverFactory("next-subvolume-method")
		Expect(err).To(Equal(replicate.ErrUnknownSolver))
	})

	It("Should list registered solvers in sorted order", func() {
		Expect(replicate.RegisteredSolvers()).To(ContainElement("noop"))
	})
})
