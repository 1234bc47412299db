package resources_test

import (
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/resources"
)

var _ = Describe("Allocator", func() {
	Context("Concurrency bound", func() {
		It("Should divide the usable cores by the per-replicate ratio", func() {
			allocator, err := resources.NewAllocator(4, 2, 0, 0)
			Expect(err).To(BeNil())
			Expect(allocator.MaxSimultaneousReplicates()).To(Equal(2))
		})

		It("Should shrink when a core is reserved", func() {
			allocator, err := resources.NewAllocator(4, 2, 0, 0)
			Expect(err).To(BeNil())

			core, err := allocator.ReserveCore()
			Expect(err).To(BeNil())
			Expect(core).To(Equal(0))
			Expect(allocator.UsableCores()).To(Equal(3))
			Expect(allocator.MaxSimultaneousReplicates()).To(Equal(1))
		})

		It("Should be bounded by the device pool when a device ratio is configured", func() {
			allocator, err := resources.NewAllocator(4, 1, 2, 1)
			Expect(err).To(BeNil())
			Expect(allocator.MaxSimultaneousReplicates()).To(Equal(2))
		})

		It("Should let multiple replicates share one device under a fractional ratio", func() {
			allocator, err := resources.NewAllocator(8, 1, 2, 0.5)
			Expect(err).To(BeNil())
			Expect(allocator.MaxSimultaneousReplicates()).To(Equal(4))
		})

		It("Should support fractional core ratios", func() {
			allocator, err := resources.NewAllocator(1, 0.5, 0, 0)
			Expect(err).To(BeNil())
			Expect(allocator.MaxSimultaneousReplicates()).To(Equal(2))
		})

		It("Should reject non-positive core ratios", func() {
			_, err := resources.NewAllocator(4, 0, 0, 0)
			Expect(err).To(Equal(resources.ErrInvalidRatio))
		})
	})

	Context("Assigning resources", func() {
		It("Should hand out the lowest free cores first", func() {
			allocator, err := resources.NewAllocator(4, 2, 0, 0)
			Expect(err).To(BeNil())

			first, err := allocator.Assign(0)
			Expect(err).To(BeNil())
			Expect(first.Cores).To(Equal([]int{0, 1}))

			second, err := allocator.Assign(1)
			Expect(err).To(BeNil())
			Expect(second.Cores).To(Equal([]int{2, 3}))
		})

		It("Should fail once the pool is exhausted and recover after a release", func() {
			allocator, err := resources.NewAllocator(4, 2, 0, 0)
			Expect(err).To(BeNil())

			_, err = allocator.Assign(0)
			Expect(err).To(BeNil())
			_, err = allocator.Assign(1)
			Expect(err).To(BeNil())

			_, err = allocator.Assign(2)
			Expect(err).To(Equal(resources.ErrInsufficientResources))

			allocator.Release(0)

			granted, err := allocator.Assign(2)
			Expect(err).To(BeNil())
			Expect(granted.Cores).To(Equal([]int{0, 1}))
		})

		It("Should never grant a reserved core", func() {
			allocator, err := resources.NewAllocator(3, 1, 0, 0)
			Expect(err).To(BeNil())

			reserved, err := allocator.ReserveCore()
			Expect(err).To(BeNil())

			for id := 0; id < allocator.MaxSimultaneousReplicates(); id++ {
				granted, err := allocator.Assign(id)
				Expect(err).To(BeNil())
				Expect(granted.Cores).ToNot(ContainElement(reserved))
			}
		})

		It("Should reject a second grant for the same replicate", func() {
			allocator, err := resources.NewAllocator(4, 1, 0, 0)
			Expect(err).To(BeNil())

			_, err = allocator.Assign(7)
			Expect(err).To(BeNil())

			_, err = allocator.Assign(7)
			Expect(err).To(Equal(resources.ErrReplicateAlreadyAssigned))
		})

		It("Should pack fractional core shares onto the same core", func() {
			allocator, err := resources.NewAllocator(1, 0.5, 0, 0)
			Expect(err).To(BeNil())

			first, err := allocator.Assign(0)
			Expect(err).To(BeNil())
			second, err := allocator.Assign(1)
			Expect(err).To(BeNil())

			Expect(first.Cores).To(Equal([]int{0}))
			Expect(second.Cores).To(Equal([]int{0}))
			Expect(allocator.CommittedCoreShares().Equal(decimal.NewFromInt(1))).To(BeTrue())
		})

		It("Should record fractional device shares in the grant", func() {
			allocator, err := resources.NewAllocator(4, 1, 1, 0.5)
			Expect(err).To(BeNil())

			granted, err := allocator.Assign(0)
			Expect(err).To(BeNil())
			Expect(granted.Devices).To(HaveLen(1))
			Expect(granted.Devices[0].Device).To(Equal(0))
			Expect(granted.Devices[0].Share.Equal(decimal.NewFromFloat(0.5))).To(BeTrue())
		})
	})

	Context("Releasing resources", func() {
		It("Should restore the pool to its pre-assign state", func() {
			allocator, err := resources.NewAllocator(4, 1.5, 2, 0.5)
			Expect(err).To(BeNil())

			maxSimultaneous := allocator.MaxSimultaneousReplicates()
			for id := 0; id < maxSimultaneous; id++ {
				_, err = allocator.Assign(id)
				Expect(err).To(BeNil())
			}
			for id := 0; id < maxSimultaneous; id++ {
				allocator.Release(id)
			}

			Expect(allocator.NumAssigned()).To(Equal(0))
			Expect(allocator.CommittedCoreShares().IsZero()).To(BeTrue())
			Expect(allocator.CommittedDeviceShares().IsZero()).To(BeTrue())

			// The freed pool must support a full second round.
			for id := 0; id < maxSimultaneous; id++ {
				_, err = allocator.Assign(id)
				Expect(err).To(BeNil())
			}
		})

		It("Should treat releasing an unassigned replicate as a no-op", func() {
			allocator, err := resources.NewAllocator(2, 1, 0, 0)
			Expect(err).To(BeNil())

			_, err = allocator.Assign(0)
			Expect(err).To(BeNil())

			allocator.Release(99)
			allocator.Release(0)
			allocator.Release(0)

			Expect(allocator.NumAssigned()).To(Equal(0))
			Expect(allocator.CommittedCoreShares().IsZero()).To(BeTrue())
		})
	})

	Context("Reserving cores", func() {
		It("Should fail when no fully-free core remains", func() {
			allocator, err := resources.NewAllocator(1, 0.5, 0, 0)
			Expect(err).To(BeNil())

			_, err = allocator.Assign(0)
			Expect(err).To(BeNil())

			_, err = allocator.ReserveCore()
			Expect(err).To(Equal(resources.ErrNoFreeCores))
		})
	})
})
