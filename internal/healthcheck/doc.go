// Package healthcheck verifies a fresh deployment by polling its health and
// readiness endpoints with a fixed number of attempts.
package healthcheck
