package services

import (
	"context"
	"strings"
)

type contextKey string

const (
	itemPathKey  contextKey = "item_path"
	phaseKey     contextKey = "phase"
	requestIDKey contextKey = "request_id"
)

// WithItemPath stamps the context with the path of the item being processed.
func WithItemPath(ctx context.Context, path string) context.Context {
	if strings.TrimSpace(path) == "" {
		return ctx
	}
	return context.WithValue(ctx, itemPathKey, path)
}

// ItemPathFromContext extracts the item path if present.
func ItemPathFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	path, ok := ctx.Value(itemPathKey).(string)
	return path, ok && path != ""
}

// WithPhase stamps the context with the active phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	if strings.TrimSpace(phase) == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext extracts the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	phase, ok := ctx.Value(phaseKey).(string)
	return phase, ok && phase != ""
}

// WithRequestID stamps the context with a correlation identifier for one
// discovery pass or IPC request.
func WithRequestID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}
