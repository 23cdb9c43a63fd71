// Package config loads service configuration from MEDITRACK_* environment
// variables, applies defaults, and validates the result before the daemon
// starts. Everything is overridable per environment; only the IntentService
// URL has no usable default.
package config
