// Package history records terminal item outcomes in SQLite so operators can
// diagnose which phase failed for any file after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"conveyor/internal/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	path            TEXT NOT NULL,
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL,
	failed_phase    TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	subtitle_error  TEXT NOT NULL DEFAULT '',
	final_path      TEXT NOT NULL DEFAULT '',
	home_media      INTEGER NOT NULL DEFAULT 0,
	discovered_at   TIMESTAMP,
	completed_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_path ON outcomes(path);
CREATE INDEX IF NOT EXISTS idx_outcomes_completed ON outcomes(completed_at);
`

// Record is one terminal outcome row.
type Record struct {
	ID            int64
	Path          string
	Kind          media.Kind
	Status        media.Status
	FailedPhase   media.Phase
	ErrorMessage  string
	SubtitleError string
	FinalPath     string
	HomeMedia     bool
	DiscoveredAt  time.Time
	CompletedAt   time.Time
}

// Store manages the outcome database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Record inserts the terminal state of an item. The item must be terminal.
func (s *Store) Record(ctx context.Context, item *media.Item) (int64, error) {
	if item == nil {
		return 0, fmt.Errorf("history: nil item")
	}
	if !item.Status.Terminal() {
		return 0, fmt.Errorf("history: item %s is not terminal (%s)", item.Path, item.Status)
	}

	sourcePath := item.OriginalPath
	if sourcePath == "" {
		sourcePath = item.Path
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO outcomes (path, kind, status, failed_phase, error_message, subtitle_error, final_path, home_media, discovered_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sourcePath,
		string(item.Kind),
		string(item.Status),
		string(item.FailedPhase()),
		item.ErrorMessage(),
		item.SubtitleError,
		item.FinalPath,
		boolToInt(item.HomeMedia),
		item.DiscoveredAt,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert outcome: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outcome id: %w", err)
	}
	return id, nil
}

// Recent returns the newest outcomes, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, kind, status, failed_phase, error_message, subtitle_error, final_path, home_media, discovered_at, completed_at
FROM outcomes ORDER BY completed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ForPath returns every recorded outcome for one source path, most recent
// first.
func (s *Store) ForPath(ctx context.Context, path string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, kind, status, failed_phase, error_message, subtitle_error, final_path, home_media, discovered_at, completed_at
FROM outcomes WHERE path = ? ORDER BY completed_at DESC, id DESC`, path)
	if err != nil {
		return nil, fmt.Errorf("query outcomes for path: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Summary aggregates outcome counts by terminal status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Summarize computes outcome counts.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM outcomes GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize outcomes: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Total += count
		switch media.Status(status) {
		case media.StatusSucceeded:
			summary.Succeeded += count
		case media.StatusFailed:
			summary.Failed += count
		}
	}
	return summary, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec        Record
			kind       string
			status     string
			phase      string
			home       int
			discovered sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &kind, &status, &phase, &rec.ErrorMessage,
			&rec.SubtitleError, &rec.FinalPath, &home, &discovered, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		rec.Kind = media.Kind(kind)
		rec.Status = media.Status(status)
		rec.FailedPhase = media.Phase(phase)
		rec.HomeMedia = home != 0
		if discovered.Valid {
			rec.DiscoveredAt = discovered.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
