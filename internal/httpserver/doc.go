// Package httpserver wraps net/http with address validation, connection
// limits and graceful shutdown.
package httpserver
