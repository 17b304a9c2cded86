package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siteflow_runs_enqueued_total",
		Help: "Total number of event runs placed on the processing queue.",
	})

	RunsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siteflow_runs_processed_total",
		Help: "Total number of event runs finished, labelled by event type and status.",
	}, []string{"event_type", "status"})

	RunsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siteflow_runs_dropped_total",
		Help: "Total number of trigger requests rejected due to a full queue.",
	})

	HandlersExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siteflow_handlers_executed_total",
		Help: "Total number of handlers executed, labelled by class and status.",
	}, []string{"class", "status"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siteflow_run_duration_ms",
		Help:    "End-to-end event run latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siteflow_queue_utilization_ratio",
		Help: "Current run queue utilization (0-1).",
	})
)
