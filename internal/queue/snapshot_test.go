package queue_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"conveyor/internal/media"
	"conveyor/internal/queue"
)

func TestPersistRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "queue.json")

	converter := &scriptedConverter{}
	q := newTestQueue(3, converter, nil)

	specs := map[string]media.ConversionSpec{
		"/drop/a.mkv": {Container: "mkv", VideoCodec: "libx265", DeleteOriginal: true},
		"/drop/b.avi": {Container: "mp4", VideoCodec: "libx264"},
	}
	for path, spec := range specs {
		item := media.NewItem(path, media.KindVideo, spec)
		item.HomeMedia = path == "/drop/b.avi"
		if _, err := q.Enqueue(item); err != nil {
			t.Fatal(err)
		}
	}

	if err := q.Persist(snapshotPath); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	fresh := newTestQueue(3, &scriptedConverter{}, nil)
	if err := fresh.RestoreFrom(snapshotPath); err != nil {
		t.Fatalf("RestoreFrom failed: %v", err)
	}
	if fresh.Size() != len(specs) {
		t.Fatalf("restored pending = %d, want %d", fresh.Size(), len(specs))
	}

	// Restored paths honor the normal duplicate check against rediscovery.
	for path := range specs {
		if _, err := fresh.Enqueue(media.NewItem(path, media.KindVideo, media.ConversionSpec{})); !errors.Is(err, queue.ErrDuplicatePath) {
			t.Fatalf("rediscovered %s: got %v, want ErrDuplicatePath", path, err)
		}
	}
}

func TestPersistExcludesActiveItems(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "queue.json")

	converter := &scriptedConverter{block: make(chan struct{})}
	q := newTestQueue(1, converter, nil)

	if _, err := q.Enqueue(videoItem("/drop/active.mkv")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(videoItem("/drop/pending.mkv")); err != nil {
		t.Fatal(err)
	}
	q.Start()
	waitUntil(t, "first item active", func() bool { return q.ActiveCount() == 1 })
	q.Stop()

	if err := q.Persist(snapshotPath); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	close(converter.block)
	q.Wait()

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		MaxConcurrent int `json:"maxConcurrent"`
		Items         []struct {
			Path string `json:"path"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if snap.MaxConcurrent != 1 {
		t.Fatalf("snapshot maxConcurrent = %d, want 1", snap.MaxConcurrent)
	}
	if len(snap.Items) != 1 || snap.Items[0].Path != "/drop/pending.mkv" {
		t.Fatalf("snapshot items = %+v, want only the pending entry", snap.Items)
	}
}

func TestRestoreFromMissingFileIsFreshStart(t *testing.T) {
	q := newTestQueue(1, &scriptedConverter{}, nil)
	if err := q.RestoreFrom(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing snapshot should not error: %v", err)
	}
	if q.Size() != 0 {
		t.Fatalf("Size = %d, want 0", q.Size())
	}
}

func TestRestoreFromCorruptFileReportsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := newTestQueue(1, &scriptedConverter{}, nil)
	err := q.RestoreFrom(path)
	var perr *queue.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *PersistenceError", err)
	}
	if perr.Op != "restore" {
		t.Fatalf("op = %q, want restore", perr.Op)
	}
}

func TestPersistIntoUnwritableTargetReportsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := newTestQueue(1, &scriptedConverter{}, nil)

	// The parent "directory" is a regular file, so the write must fail.
	err := q.Persist(filepath.Join(blocker, "queue.json"))
	var perr *queue.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *PersistenceError", err)
	}
	if perr.Op != "persist" {
		t.Fatalf("op = %q, want persist", perr.Op)
	}
}

func TestRestoreSkipsUnknownKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	payload := `{"maxConcurrent":2,"items":[` +
		`{"path":"/drop/ok.mkv","kind":"video","conversionConfig":{},"homeMedia":false},` +
		`{"path":"/drop/weird.bin","kind":"hologram","conversionConfig":{},"homeMedia":false}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	q := newTestQueue(2, &scriptedConverter{}, nil)
	if err := q.RestoreFrom(path); err != nil {
		t.Fatalf("RestoreFrom failed: %v", err)
	}
	if q.Size() != 1 {
		t.Fatalf("restored %d items, want 1 (unknown kind skipped)", q.Size())
	}
}
