// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server wraps the workflow manager; the client keeps CLI commands failing
// fast when the daemon is offline.
package ipc
