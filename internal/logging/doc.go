// Package logging builds the process-wide slog logger: a human-oriented
// console handler with component prefixes, an optional JSON handler, helper
// attribute constructors, and standardized field names shared across the
// daemon.
package logging
