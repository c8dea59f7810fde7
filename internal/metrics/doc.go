// Package metrics exposes Prometheus instrumentation for the HTTP service.
//
// Each Metrics value owns its own registry, so building several service
// instances in one process (as the tests do) never collides on collector
// registration. Request paths are reduced to the registered route set to
// keep label cardinality bounded:
//
//	m := metrics.New("/", "/health", "/ready", "/info")
//	handler := m.Instrument(router)
//	mux.Handle("/metrics", m.Handler())
package metrics
