package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"
)

func TestListLocalAbsentRoot(t *testing.T) {
	store := repository.NewSnapshotStore(filepath.Join(t.TempDir(), "never-created"))
	entries, err := NewLocalSnapshotReader(store, nil).ListLocal()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestListLocalSkipsCorruptEntries(t *testing.T) {
	root := t.TempDir()
	store := repository.NewSnapshotStore(root)

	if err := store.EnsureDir("good"); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteMetadata("good", domain.SnapshotRecord{
		ID: "good", Name: "Good", Visualization: "kpi",
		ImageAvailable: true, SnapshotAvailable: true,
		DisplayMode: domain.DisplayModeSnapshot,
	}); err != nil {
		t.Fatal(err)
	}
	// A directory whose metadata never got committed, and one with garbage.
	if err := os.MkdirAll(filepath.Join(root, "pending"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "mangled"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "mangled", "metadata.json"), []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := NewLocalSnapshotReader(store, nil).ListLocal()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "good" {
		t.Fatalf("entries = %v, want only the good record", entries)
	}
}

func TestListLocalLegacyRecordDefaults(t *testing.T) {
	root := t.TempDir()
	store := repository.NewSnapshotStore(root)

	// Records written before id/name were stamped fall back to the dir name.
	if err := os.MkdirAll(filepath.Join(root, "legacy-task"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"visualization":"barchart","imageAvailable":true,"snapshotAvailable":true,"displayMode":"snapshot"}`)
	if err := os.WriteFile(filepath.Join(root, "legacy-task", "metadata.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := NewLocalSnapshotReader(store, nil).ListLocal()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %v", entries)
	}
	if entries[0].ID != "legacy-task" || entries[0].Name != "legacy-task" {
		t.Errorf("entry = %+v, want dir-name defaults", entries[0])
	}
}
