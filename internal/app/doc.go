// Package app is the application factory. Each call to New wires a fresh,
// independently configured service instance.
package app
