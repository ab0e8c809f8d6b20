// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. Each
// notification category can be toggled independently, so an operator can keep
// error alerts while muting per-item completions.
//
// Workflow code depends only on the Service interface; extend this package
// for alternative transports.
package notifications
