package lifecycle_test

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/lifecycle"
)

var _ = Describe("AbortController", func() {
	It("Should report only the first call as the one that set the flag", func() {
		abort := lifecycle.NewAbortController()

		Expect(abort.Signaled()).To(BeFalse())
		Expect(abort.Abort()).To(BeTrue())
		Expect(abort.Abort()).To(BeFalse())
		Expect(abort.Signaled()).To(BeTrue())
	})

	It("Should close its done channel exactly once", func() {
		abort := lifecycle.NewAbortController()

		select {
		case <-abort.Done():
			Fail("done channel closed before any abort")
		default:
		}

		abort.Abort()
		abort.Abort()

		Eventually(abort.Done()).Should(BeClosed())
	})

	It("Should tolerate concurrent aborts, with exactly one winner", func() {
		abort := lifecycle.NewAbortController()

		var winners atomic.Int32
		var started sync.WaitGroup

		for i := 0; i < 16; i++ {
			started.Add(1)
			go func() {
				defer started.Done()
				if abort.Abort() {
					winners.Add(1)
				}
			}()
		}
		started.Wait()

		Expect(winners.Load()).To(Equal(int32(1)))
		Expect(abort.Signaled()).To(BeTrue())
	})
})
