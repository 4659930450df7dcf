// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// Metrics are registered once on the default registry and shared by
// all pipelines in the process.
var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "pipeline",
		Name:      "runs_started_total",
		Help:      "Analysis runs started.",
	})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "pipeline",
		Name:      "runs_finished_total",
		Help:      "Analysis runs finished, by terminal stage.",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blackbox",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of analysis runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "sandbox",
		Name:      "executions_total",
		Help:      "Sandbox executions, by result.",
	}, []string{"result"})

	adaptiveRounds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "pipeline",
		Name:      "adaptive_rounds_total",
		Help:      "Adaptive re-test rounds triggered by ambiguous hypotheses.",
	})

	fallbackResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "pipeline",
		Name:      "fallback_results_total",
		Help:      "Runs that finished with a locally synthesized fallback result.",
	})

	qualityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blackbox",
		Subsystem: "pipeline",
		Name:      "quality_score",
		Help:      "Quality score of finished runs.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})
)

// recordBatchMetrics feeds one batch's stats into the counters.
// TimedOut is a subset of Failed, so the failure label excludes it.
func recordBatchMetrics(stats domain.ExecutionStats) {
	executionsTotal.WithLabelValues("success").Add(float64(stats.Successful))
	executionsTotal.WithLabelValues("timeout").Add(float64(stats.TimedOut))
	executionsTotal.WithLabelValues("failure").Add(float64(stats.Failed - stats.TimedOut))
}
