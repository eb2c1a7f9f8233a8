package jobqueue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal *prometheus.CounterVec
	handleTotal  *prometheus.CounterVec
	failedTotal  *prometheus.CounterVec

	handleLatency *prometheus.HistogramVec

	pending      prometheus.Gauge
	running      prometheus.Gauge
	workerLeader prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobqueue",
			Name:      "enqueue_total",
			Help:      "Total number of enqueued jobs.",
		}, []string{"kind"}),
		handleTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobqueue",
			Name:      "handle_total",
			Help:      "Total number of handled job attempts.",
		}, []string{"kind", "result"}),
		failedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobqueue",
			Name:      "failed_total",
			Help:      "Total number of jobs that entered failed state.",
		}, []string{"kind"}),
		handleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobqueue",
			Name:      "handle_latency_seconds",
			Help:      "Latency distribution for job handling.",
			Buckets: []float64{
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
				30, 60, 300, 900,
			},
		}, []string{"kind", "result"}),
		pending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobqueue",
			Name:      "pending",
			Help:      "Current number of pending jobs.",
		}),
		running: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobqueue",
			Name:      "running",
			Help:      "Current number of claimed (running) jobs.",
		}),
		workerLeader: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobqueue",
			Name:      "worker_leader",
			Help:      "Whether this instance holds the worker leader lock (1/0).",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
