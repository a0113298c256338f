package watcher

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.json")
	store := NewCheckpointStore(path, true)

	_, found, err := store.Load()
	if err != nil {
		t.Fatalf("load before save: %v", err)
	}
	if found {
		t.Fatalf("found checkpoint before any save")
	}

	if err := store.Save(4242); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, found, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("checkpoint not found after save")
	}
	if cp.LastProcessedBlock != 4242 {
		t.Fatalf("last processed = %d, want 4242", cp.LastProcessedBlock)
	}
	if cp.UpdatedAt == "" {
		t.Fatalf("updated_at not set")
	}
}

func TestCheckpointOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, true)

	if err := store.Save(10); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(20); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, found, err := store.Load()
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if cp.LastProcessedBlock != 20 {
		t.Fatalf("last processed = %d, want 20", cp.LastProcessedBlock)
	}
}

func TestCheckpointDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, false)

	if err := store.Save(10); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("disabled store wrote a file")
	}

	_, found, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("disabled store reported a checkpoint")
	}
}

func TestCheckpointCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewCheckpointStore(path, true)
	if _, _, err := store.Load(); err == nil {
		t.Fatalf("expected error for corrupt checkpoint")
	}
}
