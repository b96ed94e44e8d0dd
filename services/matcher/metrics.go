// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daleel_match_runs_total",
		Help: "Match runs by outcome.",
	}, []string{"status"})

	matchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "daleel_match_run_duration_seconds",
		Help:    "End-to-end duration of one match run.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	candidatesScoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daleel_match_candidates_scored_total",
		Help: "Candidates successfully judged by the LLM.",
	})

	candidatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daleel_match_candidates_dropped_total",
		Help: "Candidates dropped after a scoring failure.",
	})

	matchRowsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daleel_match_rows_inserted_total",
		Help: "Ranked result rows persisted to the database.",
	})
)
