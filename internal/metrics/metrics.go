package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncQueueLength tracks the number of wallets waiting for a content sync
	SyncQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "karmad_sync_queue_length",
		Help: "The number of wallets currently in the sync queue",
	})

	// WorkersActive tracks the number of active sync workers
	WorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "karmad_workers_active",
		Help: "The number of sync workers currently active",
	})

	// KarmaAwarded tracks karma points awarded by source
	KarmaAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karmad_karma_awarded_total",
			Help: "The total karma points awarded",
		},
		[]string{"source"}, // activity, sentiment, stake, redeem
	)

	// ActivitiesRecorded tracks ledger writes by type and status
	ActivitiesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karmad_activities_recorded_total",
			Help: "The total number of activity ledger entries recorded",
		},
		[]string{"type", "status"}, // success, failed, duplicate
	)

	// ProviderRequests tracks external provider requests by provider and status
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karmad_provider_requests_total",
			Help: "The total number of external provider requests",
		},
		[]string{"provider", "status"},
	)

	// ContentSyncSeconds tracks time taken to sync one wallet's content
	ContentSyncSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "karmad_content_sync_seconds",
		Help:    "Time taken to sync a wallet's content in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
	})

	// DatabaseOperations tracks database operations
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karmad_database_operations_total",
			Help: "The total number of database operations",
		},
		[]string{"operation", "status"}, // insert/update, success/failed
	)

	// HTTPRequests tracks API requests by route and status code
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karmad_http_requests_total",
			Help: "The total number of HTTP API requests",
		},
		[]string{"route", "status"},
	)
)

// RecordKarmaAwarded records karma points awarded from the given source.
// Deductions are tracked under a separate label since counters only grow.
func RecordKarmaAwarded(source string, points float64) {
	if points < 0 {
		KarmaAwarded.WithLabelValues(source + "_deducted").Add(-points)
		return
	}
	KarmaAwarded.WithLabelValues(source).Add(points)
}

// RecordActivity records a ledger write with the given type and status
func RecordActivity(activityType, status string) {
	ActivitiesRecorded.WithLabelValues(activityType, status).Inc()
}

// RecordProviderRequest records an external provider request
func RecordProviderRequest(provider, status string) {
	ProviderRequests.WithLabelValues(provider, status).Inc()
}

// RecordContentSync records the time taken to sync a wallet's content
func RecordContentSync(duration float64) {
	ContentSyncSeconds.Observe(duration)
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string) {
	DatabaseOperations.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records an API request
func RecordHTTPRequest(route, status string) {
	HTTPRequests.WithLabelValues(route, status).Inc()
}
