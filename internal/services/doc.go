// Package services defines shared utilities consumed by the pipeline
// components and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp item paths, phase names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure text
//     uniform across phases.
package services
