package ipc

import "time"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the combined daemon and queue state.
type StatusResponse struct {
	Running       bool   `json:"running"`
	Dispatching   bool   `json:"dispatching"`
	Scanning      bool   `json:"scanning"`
	Pending       int    `json:"pending"`
	Active        int    `json:"active"`
	MaxConcurrent int    `json:"max_concurrent"`
	Processed     int    `json:"processed"`
	Failed        int    `json:"failed"`
	LastError     string `json:"last_error"`
	HistoryTotal  int    `json:"history_total"`
	SocketPath    string `json:"socket_path"`
	PID           int    `json:"pid"`
}

// PauseRequest stops dispatching new conversions.
type PauseRequest struct{}

// PauseResponse acknowledges a pause.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest restarts dispatch regardless of the conversion window.
type ResumeRequest struct{}

// ResumeResponse acknowledges a resume.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// ScanRequest triggers a discovery scan of the watch directory.
type ScanRequest struct{}

// ScanResponse acknowledges the scan.
type ScanResponse struct {
	Started bool `json:"started"`
}

// PersistRequest writes the queue snapshot on demand.
type PersistRequest struct{}

// PersistResponse reports the snapshot outcome.
type PersistResponse struct {
	Persisted bool   `json:"persisted"`
	Message   string `json:"message"`
}

// QueueListRequest fetches the pending and active entries.
type QueueListRequest struct{}

// QueueEntry is the wire form of one queued item.
type QueueEntry struct {
	Path       string    `json:"path"`
	Kind       string    `json:"kind"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueListResponse contains pending entries in dispatch order plus the
// active set.
type QueueListResponse struct {
	Pending []QueueEntry `json:"pending"`
	Active  []QueueEntry `json:"active"`
}

// HistoryListRequest fetches recent terminal outcomes.
type HistoryListRequest struct {
	Limit int `json:"limit"`
}

// HistoryRecord is the wire form of one outcome row.
type HistoryRecord struct {
	ID            int64     `json:"id"`
	Path          string    `json:"path"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	FailedPhase   string    `json:"failed_phase,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	SubtitleError string    `json:"subtitle_error,omitempty"`
	FinalPath     string    `json:"final_path,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// HistoryListResponse contains outcome rows, most recent first.
type HistoryListResponse struct {
	Records []HistoryRecord `json:"records"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
