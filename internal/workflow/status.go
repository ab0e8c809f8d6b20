package workflow

import "context"

// StatusSummary is the lightweight diagnostic view served over IPC.
type StatusSummary struct {
	Running       bool
	Dispatching   bool
	Scanning      bool
	Pending       int
	Active        int
	MaxConcurrent int
	Processed     int
	Failed        int
	LastError     string
	HistoryTotal  int
}

// Status reports the current workflow state.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Running:   m.running,
		Scanning:  m.scanning,
		Processed: m.processed,
		Failed:    m.failed,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	summary.Dispatching = m.queue.Started()
	summary.Pending = m.queue.Size()
	summary.Active = m.queue.ActiveCount()
	summary.MaxConcurrent = m.queue.MaxConcurrent()

	if counts, err := m.store.Summarize(ctx); err == nil {
		summary.HistoryTotal = counts.Total
	}
	return summary
}
