package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ErrManagerAlreadyRunning = errors.New("SchedulerPrometheusManager is already running")
)

// SchedulerPrometheusManager registers the scheduler's metrics with
// Prometheus and serves them over HTTP.
type SchedulerPrometheusManager struct {
	log logger.Logger

	port       int
	engine     *gin.Engine
	httpServer *http.Server

	running bool

	// ReplicatesRunningGauge tracks how many replicates are currently in the
	// Running state.
	ReplicatesRunningGauge prometheus.Gauge

	// ReplicatesRemainingGauge tracks how many replicates are still Pending.
	ReplicatesRemainingGauge prometheus.Gauge

	// ReplicatesCompletedCounter counts replicates that reached the Finished
	// state, labeled by whether their exit code was zero.
	ReplicatesCompletedCounter *prometheus.CounterVec

	// ReplicateDurationHistogram observes the wall-clock duration of each
	// finished replicate, in seconds.
	ReplicateDurationHistogram prometheus.Histogram

	// OutputQueueDepthGauge tracks the number of records waiting in the
	// output queue.
	OutputQueueDepthGauge prometheus.Gauge

	// CommittedCoreSharesGauge and CommittedDeviceSharesGauge track the sum
	// of CPU core and accelerator device shares currently assigned to
	// running replicates.
	CommittedCoreSharesGauge   prometheus.Gauge
	CommittedDeviceSharesGauge prometheus.Gauge
}

// NewSchedulerPrometheusManager creates a new SchedulerPrometheusManager
// serving on the given port and returns a pointer to it.
func NewSchedulerPrometheusManager(port int) *SchedulerPrometheusManager {
	manager := &SchedulerPrometheusManager{
		port: port,
	}
	config.InitLogger(&manager.log, manager)

	return manager
}

// Start registers the metrics and begins serving them. Start is non-blocking.
func (m *SchedulerPrometheusManager) Start() error {
	if m.running {
		return ErrManagerAlreadyRunning
	}

	if err := m.initMetrics(); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	m.engine = gin.New()
	m.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	m.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.port),
		Handler: m.engine,
	}

	go func() {
		if err := m.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("Prometheus HTTP server failed: %v", err)
		}
	}()

	m.running = true
	m.log.Info("Serving Prometheus metrics on port %d.", m.port)

	return nil
}

// Stop shuts the metrics HTTP server down.
func (m *SchedulerPrometheusManager) Stop() {
	if !m.running {
		return
	}
	m.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.httpServer.Shutdown(ctx); err != nil {
		m.log.Warn("Failed to shut down Prometheus HTTP server cleanly: %v", err)
	}
}

func (m *SchedulerPrometheusManager) initMetrics() error {
	m.ReplicatesRunningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replisched",
		Name:      "replicates_running",
		Help:      "The number of replicates currently running.",
	})

	m.ReplicatesRemainingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replisched",
		Name:      "replicates_remaining",
		Help:      "The number of replicates that have not started yet.",
	})

	m.ReplicatesCompletedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replisched",
		Name:      "replicates_completed_total",
		Help:      "The number of replicates that have finished, by outcome.",
	}, []string{"outcome"})

	m.ReplicateDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replisched",
		Name:      "replicate_duration_seconds",
		Help:      "The wall-clock duration of finished replicates.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200, 14400},
	})

	m.OutputQueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replisched",
		Name:      "output_queue_depth",
		Help:      "The number of records waiting in the output queue.",
	})

	m.CommittedCoreSharesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replisched",
		Name:      "committed_core_shares",
		Help:      "The sum of CPU core shares assigned to running replicates.",
	})

	m.CommittedDeviceSharesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replisched",
		Name:      "committed_device_shares",
		Help:      "The sum of accelerator device shares assigned to running replicates.",
	})

	collectors := []prometheus.Collector{
		m.ReplicatesRunningGauge,
		m.ReplicatesRemainingGauge,
		m.ReplicatesCompletedCounter,
		m.ReplicateDurationHistogram,
		m.OutputQueueDepthGauge,
		m.CommittedCoreSharesGauge,
		m.CommittedDeviceSharesGauge,
	}
	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			m.log.Error("Failed to register metric: %v", err)
			return err
		}
	}

	return nil
}
