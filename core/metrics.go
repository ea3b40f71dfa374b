// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reconcileMetrics struct {
	runs                 prometheus.Counter
	failures             prometheus.Counter
	methodRuns           *prometheus.CounterVec
	methodSkips          *prometheus.CounterVec
	diagnostics          *prometheus.CounterVec
	methodLatencySecs    *prometheus.SummaryVec
	reconcileLatencySecs prometheus.Summary
}

var metrics reconcileMetrics

func init() {
	metrics = reconcileMetrics{
		runs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "hreconcile",
			Subsystem: "core",
			Name:      "reconciliations",
			Help:      `The number of Reconcile calls that passed input validation.`,
		}),
		failures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "hreconcile",
			Subsystem: "core",
			Name:      "reconciliation_failures",
			Help:      `The number of Reconcile calls that returned an error.`,
		}),
		methodRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hreconcile",
			Subsystem: "core",
			Name:      "method_runs",
			Help:      `The number of (model, method) reconciliations that produced a column.`,
		}, []string{"method"}),
		methodSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hreconcile",
			Subsystem: "core",
			Name:      "method_skips",
			Help: `The number of (model, method) reconciliations skipped in partial-results mode.

A skip is counted once per model, so a method missing its insample data is
counted once for every base model.
`,
		}, []string{"method"}),
		diagnostics: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hreconcile",
			Subsystem: "core",
			Name:      "diagnostics",
			Help:      `The number of recovered numerical problems, by method and kind.`,
		}, []string{"method", "kind"}),
		methodLatencySecs: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  "hreconcile",
			Subsystem:  "core",
			Name:       "method_latency_seconds",
			Help:       `The time one method takes to reconcile one base model, intervals included.`,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"method"}),
		reconcileLatencySecs: promauto.NewSummary(prometheus.SummaryOpts{
			Namespace:  "hreconcile",
			Subsystem:  "core",
			Name:       "reconcile_latency_seconds",
			Help:       `The time a whole Reconcile call takes.`,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
	}
}
