package checkpoint_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/checkpoint"
)

var _ = Describe("Checkpoint signaler", func() {
	var signaler *checkpoint.Signaler

	BeforeEach(func() {
		signaler = checkpoint.NewSignaler()
	})

	It("Should deliver checkpoint requests to every subscriber", func() {
		first := signaler.Subscribe("replicate-0")
		second := signaler.Subscribe("replicate-1")

		signaler.StartCheckpointing(5 * time.Millisecond)
		defer signaler.StopCheckpointing()

		Eventually(first, time.Second).Should(Receive())
		Eventually(second, time.Second).Should(Receive())
	})

	It("Should skip a subscriber that has not consumed its previous request", func() {
		requests := signaler.Subscribe("replicate-0")

		signaler.StartCheckpointing(2 * time.Millisecond)

		// Let several intervals elapse without consuming anything.
		time.Sleep(25 * time.Millisecond)
		signaler.StopCheckpointing()

		// The subscriber channel holds at most the single undelivered request.
		Expect(len(requests)).To(Equal(1))
	})

	It("Should never fire after StopCheckpointing has returned", func() {
		requests := signaler.Subscribe("replicate-0")

		signaler.StartCheckpointing(2 * time.Millisecond)
		Eventually(requests, time.Second).Should(Receive())

		signaler.StopCheckpointing()

		// Drain anything delivered before the stop completed, then verify
		// that nothing else ever arrives.
		select {
		case <-requests:
		default:
		}
		Consistently(requests, 30*time.Millisecond).ShouldNot(Receive())
	})

	It("Should treat a non-positive interval as disabled", func() {
		requests := signaler.Subscribe("replicate-0")

		signaler.StartCheckpointing(0)
		Consistently(requests, 30*time.Millisecond).ShouldNot(Receive())

		// Stopping a signaler that never started ticking is a no-op.
		signaler.StopCheckpointing()
	})

	It("Should stop delivering to an unsubscribed listener", func() {
		requests := signaler.Subscribe("replicate-0")
		signaler.Unsubscribe("replicate-0")

		signaler.StartCheckpointing(2 * time.Millisecond)
		defer signaler.StopCheckpointing()

		Consistently(requests, 30*time.Millisecond).ShouldNot(Receive())
	})

	It("Should tolerate repeated stop requests", func() {
		signaler.StartCheckpointing(time.Millisecond)
		signaler.StopCheckpointing()
		signaler.StopCheckpointing()
	})
})
