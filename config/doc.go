// Package config loads the application configuration from YAML with
// environment overrides, and provides a polling file watcher used for
// hot-reloading configuration at runtime.
package config
