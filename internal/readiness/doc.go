// Package readiness decides whether the service can accept traffic.
// It runs named dependency probes with a timeout and caches their results
// for a short TTL so load balancer polling does not hammer dependencies.
package readiness
