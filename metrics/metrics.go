/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package metrics contains the Prometheus collectors of GripDB.

All collectors are registered with the default registry and are exported
through the /metrics endpoint of the server.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gripdb"

/*
Storage collectors
*/
var (
	VerticesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "vertices_scanned_total",
		Help:      "Number of vertices read from a graph storage.",
	}, []string{"graph"})

	EdgesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "edges_scanned_total",
		Help:      "Number of edges read from a graph storage.",
	}, []string{"graph"})

	StorageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "retries_total",
		Help:      "Number of retried storage operations after transient errors.",
	}, []string{"graph"})
)

/*
Query collectors
*/
var (
	Queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "queries_total",
		Help:      "Number of executed queries by outcome.",
	}, []string{"graph", "outcome"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "query_duration_seconds",
		Help:      "Duration of executed queries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"graph"})

	RewritesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rewrites_total",
		Help:      "Number of applied compiler rewrite rules.",
	}, []string{"rule"})
)

/*
Job collectors
*/
var (
	JobStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "state_changes_total",
		Help:      "Number of job state changes by target state.",
	}, []string{"state"})

	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "active",
		Help:      "Number of jobs which are queued or running.",
	})
)

/*
Row source collectors
*/
var (
	RowSourceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gripper",
		Name:      "calls_total",
		Help:      "Number of calls to external row sources.",
	}, []string{"source", "method"})

	CollectionInfoCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gripper",
		Name:      "collection_info_cache_hits_total",
		Help:      "Number of collection info lookups answered from the session cache.",
	})
)
