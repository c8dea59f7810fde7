// Package config loads the service configuration from defaults, an optional
// YAML file, an optional .env file and environment variables. It selects
// the development, testing or production profile from APP_ENV (or
// FLASK_ENV) and refuses to start when a required variable is missing.
package config
