package syncer

import "time"

// Metrics receives sync telemetry. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// ObserveSync records one full sync. status is "success" or "error".
	ObserveSync(providerType, status string, duration time.Duration)

	// RecordItems counts catalog upserts. kind is "file" or "folder".
	RecordItems(providerType, kind string, n int)

	// RecordItemFailure counts an item skipped because its upsert failed.
	RecordItemFailure(providerType, kind string)

	// RecordWarm counts lazy warm checks; hit means the scope was cached.
	RecordWarm(providerType string, hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSync(string, string, time.Duration) {}
func (nopMetrics) RecordItems(string, string, int)           {}
func (nopMetrics) RecordItemFailure(string, string)          {}
func (nopMetrics) RecordWarm(string, bool)                   {}
