package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	runsTotal            *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	activeRuns           prometheus.Gauge
	failuresTotal        *prometheus.CounterVec
	itemsProcessedTotal  prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	outputBytesTotal     prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framefold_worker_runs_total",
			Help: "Total conversion runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "framefold_worker_run_duration_seconds",
			Help:    "Total processing duration for each conversion run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "framefold_worker_active_runs",
			Help: "Current number of conversion runs in flight in the worker.",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framefold_worker_failures_total",
			Help: "Failed conversion runs by failure category.",
		}, []string{"category"}),
		itemsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framefold_usage_items_processed_total",
			Help: "Total input images processed across successful runs.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framefold_usage_pixels_processed_total",
			Help: "Total pixels processed across successful runs.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framefold_usage_output_bytes_total",
			Help: "Total output bytes produced across successful runs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framefold_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful runs.",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.activeRuns,
		m.failuresTotal,
		m.itemsProcessedTotal,
		m.pixelsProcessedTotal,
		m.outputBytesTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
