// Package metrics holds the process-wide Prometheus registry and the HTTP
// server that exposes it.
//
// Collection is optional. Until InitRegistry is called the constructors in
// pkg/metrics/prometheus return nil and consumers fall back to their no-op
// collectors:
//
//	metrics.InitRegistry()
//	engine := syncer.NewEngine(store, manager,
//		syncer.WithMetrics(prometheus.NewSyncMetrics()))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every metric name.
const Namespace = "dittovfs"

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry together with the Go runtime and
// process collectors. Later calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
