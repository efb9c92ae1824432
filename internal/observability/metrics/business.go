package metrics

import "time"

// RecordAdapterFetch records the outcome and latency of one source
// adapter's Fetch call.
func RecordAdapterFetch(source string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	AdapterFetchesTotal.WithLabelValues(source, status).Inc()
	AdapterFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAggregation records one full Collect() pass: its wall-clock
// duration and the resulting ranked keyword count.
func RecordAggregation(duration time.Duration, keywordCount int) {
	AggregationDuration.Observe(duration.Seconds())
	KeywordsFused.Set(float64(keywordCount))
}

// RecordCacheHit and RecordCacheMiss track Cache Layer lookup outcomes
// by backend ("memory" or "file").
func RecordCacheHit(backend string) {
	CacheHitsTotal.WithLabelValues(backend).Inc()
}

func RecordCacheMiss(backend string) {
	CacheMissesTotal.WithLabelValues(backend).Inc()
}

// RecordClusterRequest records the outcome and latency of one Topic
// Clusterer backend call.
func RecordClusterRequest(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	ClusterRequestsTotal.WithLabelValues(status).Inc()
	ClusterDuration.Observe(duration.Seconds())
}

// RecordRefresh records one Refresh Controller run's outcome.
func RecordRefresh(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	RefreshesTotal.WithLabelValues(status).Inc()
}

// UpdateSubscribersActive sets the current push-stream subscriber count.
func UpdateSubscribersActive(count int) {
	SubscribersActive.Set(float64(count))
}

// RecordSnapshotPersistError increments the snapshot-cache write failure counter.
func RecordSnapshotPersistError() {
	SnapshotPersistErrorsTotal.Inc()
}
