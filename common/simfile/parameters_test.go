package simfile_test

import (
	"github.com/Scusemua/go-utils/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/simfile"
)

var _ = Describe("Parameter overrides", func() {
	It("Should apply overrides on top of the file-sourced parameters", func() {
		parameters := map[string]string{
			"maxTime":   "100.0",
			"writeTime": "1.0",
		}

		result := simfile.ApplyOverrides(parameters, []string{"maxTime=250.0", "seed=7"}, config.GetLogger(""))

		Expect(result).To(HaveKeyWithValue("maxTime", "250.0"))
		Expect(result).To(HaveKeyWithValue("writeTime", "1.0"))
		Expect(result).To(HaveKeyWithValue("seed", "7"))
	})

	It("Should let the last duplicate win", func() {
		parameters := map[string]string{}

		simfile.ApplyOverrides(parameters, []string{"seed=1", "seed=2", "seed=3"}, config.GetLogger(""))

		Expect(parameters).To(HaveKeyWithValue("seed", "3"))
	})

	It("Should skip a malformed token without aborting", func() {
		parameters := map[string]string{}

		simfile.ApplyOverrides(parameters, []string{"badtoken", "k1=v1"}, config.GetLogger(""))

		Expect(parameters).ToNot(HaveKey("badtoken"))
		Expect(parameters).To(HaveKeyWithValue("k1", "v1"))
	})

	It("Should keep everything after the first equals sign as the value", func() {
		parameters := map[string]string{}

		simfile.ApplyOverrides(parameters, []string{"expression=a=b+c"}, config.GetLogger(""))

		Expect(parameters).To(HaveKeyWithValue("expression", "a=b+c"))
	})
})
