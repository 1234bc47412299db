package metrics_test

import (
	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stochkit/replisched/common/metrics"
)

var _ = Describe("SchedulerPrometheusManager", func() {
	It("Should register its collectors and reject a second start", func() {
		manager := metrics.NewSchedulerPrometheusManager(0)

		Expect(manager.Start()).To(Succeed())
		defer manager.Stop()

		Expect(manager.Start()).To(Equal(metrics.ErrManagerAlreadyRunning))

		manager.ReplicatesRunningGauge.Set(2)
		manager.ReplicatesRemainingGauge.Set(5)
		manager.ReplicatesCompletedCounter.WithLabelValues("success").Inc()
		manager.ReplicateDurationHistogram.Observe(1.5)
		manager.OutputQueueDepthGauge.Set(3)
		manager.CommittedCoreSharesGauge.Set(4)
		manager.CommittedDeviceSharesGauge.Set(0.5)

		families, err := prometheus.DefaultGatherer.Gather()
		Expect(err).To(BeNil())

		names := make(map[string]bool, len(families))
		for _, family := range families {
			names[family.GetName()] = true
		}

		Expect(names).To(HaveKey("replisched_replicates_running"))
		Expect(names).To(HaveKey("replisched_replicates_remaining"))
		Expect(names).To(HaveKey("replisched_replicates_completed_total"))
		Expect(names).To(HaveKey("replisched_replicate_duration_seconds"))
		Expect(names).To(HaveKey("replisched_output_queue_depth"))
		Expect(names).To(HaveKey("replisched_committed_core_shares"))
		Expect(names).To(HaveKey("replisched_committed_device_shares"))
	})
})
