// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package metrics provides Prometheus instrumentation for the visitor
// identity and presence pipeline:
//   - identity resolution outcomes (created / existing / race-lost)
//   - geolocation lookup results (success / fallback / error / private)
//   - presence session lifecycle and event fan-out
//   - visitor store query performance
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Identity resolution metrics

	IdentityResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitormap_identity_resolutions_total",
			Help: "Total identity resolutions by outcome",
		},
		[]string{"outcome"}, // "created", "existing", "race_lost"
	)

	// Geolocation metrics

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitormap_geo_lookups_total",
			Help: "Total geolocation lookups by result",
		},
		[]string{"result"}, // "success", "fallback_private", "fallback_error", "fallback_status"
	)

	GeoLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitormap_geo_lookup_duration_seconds",
			Help:    "Duration of external geolocation lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Presence metrics

	PresenceSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "visitormap_presence_sessions",
			Help: "Currently connected presence sessions",
		},
	)

	PresenceEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitormap_presence_events_published_total",
			Help: "Presence events published by type",
		},
		[]string{"type"}, // "created", "updated", "deleted", "cleared"
	)

	PresenceEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitormap_presence_events_dropped_total",
			Help: "Per-session deliveries dropped because the session queue was full",
		},
	)

	SnapshotsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitormap_snapshots_delivered_total",
			Help: "Snapshots delivered to newly connected sessions",
		},
	)

	// Store metrics

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visitormap_store_query_duration_seconds",
			Help:    "Duration of visitor store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitormap_store_errors_total",
			Help: "Total visitor store errors by operation",
		},
		[]string{"operation"},
	)
)

// ObserveStoreQuery records a store query duration, and the error counter when
// the query failed.
func ObserveStoreQuery(operation string, start time.Time, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}
