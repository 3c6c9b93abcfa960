package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	previewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconcile",
		Subsystem: "preview",
		Name:      "total",
		Help:      "Preview requests broken down by result.",
	}, []string{"result"})

	applyRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconcile",
		Subsystem: "apply",
		Name:      "runs_total",
		Help:      "Apply runs broken down by final batch status or rejection reason.",
	}, []string{"result"})

	applyRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconcile",
		Subsystem: "apply",
		Name:      "rows_total",
		Help:      "Applied rows broken down by action and apply status.",
	}, []string{"action", "status"})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reconcile",
		Subsystem: "apply",
		Name:      "duration_seconds",
		Help:      "Wall time of apply runs, lock wait included.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	lockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reconcile",
		Subsystem: "lock",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for the per-target apply lock.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	})
)
