// Package handler implements the HTTP surface of the CV AI Agent service:
// informational routes, the JSON error envelope and the middleware chain
// every request passes through.
package handler
