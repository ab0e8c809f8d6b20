// Package workflow composes the daemon's moving parts: the directory
// watcher feeding discovery, the classifier, the conversion queue, the
// scheduled window gate, the outcome history, and notifications. The
// Manager owns their lifecycles and is the single surface the daemon and
// the IPC server drive.
package workflow
