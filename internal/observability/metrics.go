package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rentonmap_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ListingSearches counts searches by mode (bbox, fallback) and backend.
	ListingSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentonmap_listing_searches_total",
		Help: "Total number of listing searches",
	}, []string{"mode", "source"})

	// SearchCacheResults counts search cache hits and misses.
	SearchCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentonmap_search_cache_total",
		Help: "Search cache lookups by result",
	}, []string{"result"})

	// MessagesSent counts messages appended to conversations.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentonmap_messages_sent_total",
		Help: "Total number of chat messages sent",
	})

	// MediaOperations counts image uploads and deletions by driver and outcome.
	MediaOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentonmap_media_operations_total",
		Help: "Image host operations by driver, operation and outcome",
	}, []string{"driver", "operation", "outcome"})

	// EventsPublished counts domain events by driver and outcome.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentonmap_events_published_total",
		Help: "Domain events published by driver and outcome",
	}, []string{"driver", "outcome"})

	// FeaturedExpired counts listings un-featured by the expiry sweeper.
	FeaturedExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentonmap_featured_expired_total",
		Help: "Listings whose featured window was cleared by the sweeper",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// Outcome maps an error to the "ok"/"error" label used by counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
