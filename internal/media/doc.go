// Package media defines the item model shared across the pipeline: the
// kinds of files the system handles, the per-item lifecycle state machine,
// and the item record that carries a file from discovery to its terminal
// outcome.
package media
