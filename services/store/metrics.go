// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_store_reads_total",
		Help: "Document reads by status",
	}, []string{"status"})

	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_store_writes_total",
		Help: "Durable write cycles by status",
	}, []string{"status"})

	writeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cinelog_store_write_duration_seconds",
		Help:    "Time for one full acquire-backup-write-validate-rename cycle",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_store_retries_total",
		Help: "Retry rounds by operation and reason",
	}, []string{"operation", "reason"})

	repairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_store_repairs_total",
		Help: "Corruption repair attempts by method and status",
	}, []string{"method", "status"})

	degradedReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinelog_store_degraded_reads_total",
		Help: "Reads that fell back to an empty collection after failed repair",
	})
)
