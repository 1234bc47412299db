package utils_test

import (
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/utils"
)

var _ = Describe("Decimal tolerance helpers", func() {
	Context("EqualWithTolerance", func() {
		It("Should treat values within epsilon of each other as equal", func() {
			a := decimal.NewFromFloat(1.0)
			b := decimal.NewFromFloat(1.0).Sub(decimal.NewFromFloat(1.0e-7))

			Expect(utils.EqualWithTolerance(a, b)).To(BeTrue())
			Expect(utils.EqualWithTolerance(b, a)).To(BeTrue())
		})

		It("Should treat values further apart than epsilon as unequal", func() {
			a := decimal.NewFromFloat(1.0)
			b := decimal.NewFromFloat(1.001)

			Expect(utils.EqualWithTolerance(a, b)).To(BeFalse())
		})

		It("Should treat a value as equal to itself", func() {
			a := decimal.NewFromFloat(0.5)

			Expect(utils.EqualWithTolerance(a, a)).To(BeTrue())
		})
	})

	Context("TryRoundToDecimal", func() {
		It("Should snap a value carrying rounding residue back to the target", func() {
			residue := decimal.NewFromFloat(1.0).Sub(decimal.NewFromFloat(2.0e-7))
			target := decimal.NewFromFloat(1.0)

			Expect(utils.TryRoundToDecimal(residue, target).Equal(target)).To(BeTrue())
		})

		It("Should leave a genuinely different value untouched", func() {
			value := decimal.NewFromFloat(0.5)
			target := decimal.NewFromFloat(1.0)

			Expect(utils.TryRoundToDecimal(value, target).Equal(value)).To(BeTrue())
		})
	})
})
