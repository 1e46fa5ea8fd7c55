package services

import (
	"context"
	"errors"
	"testing"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/lock"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
)

func newReconcilerEnv(t *testing.T) (*fakeCatalog, repository.SnapshotStore, CatalogReconciler) {
	t.Helper()
	catalog := newFakeCatalog()
	store := repository.NewSnapshotStore(t.TempDir())
	fetcher := NewSnapshotFetcher(catalog, store, lock.NewKeyedMutex(), nil, nil)
	return catalog, store, NewCatalogReconciler(catalog, fetcher, store, nil, nil)
}

func TestRefreshReturnsAllMonitoredTasks(t *testing.T) {
	catalog, store, reconciler := newReconcilerEnv(t)
	catalog.addTask("t1", "Sales KPI", "kpi")
	catalog.addTask("t2", "Regions", "map")

	entries, failed, err := reconciler.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("failed = %v", failed)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Entries reflect what was committed to disk, not the in-flight records.
	for _, e := range entries {
		rec, err := store.ReadMetadata(e.ID)
		if err != nil {
			t.Fatalf("metadata for %s: %v", e.ID, err)
		}
		if e.Name != rec.Name || e.DisplayMode != rec.DisplayMode {
			t.Errorf("entry %s diverges from stored record", e.ID)
		}
	}
}

func TestRefreshCollectsPerTaskFailures(t *testing.T) {
	catalog, store, reconciler := newReconcilerEnv(t)
	catalog.addTask("ok", "Fine", "barchart")
	catalog.addTask("bad", "Broken", "kpi")
	catalog.fileErr[fileKey("bad", "image-small")] = errors.New("boom")

	entries, failed, err := reconciler.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("failed = %v, want [bad]", failed)
	}
	if len(entries) != 1 || entries[0].ID != "ok" {
		t.Errorf("entries = %v", entries)
	}
	if _, err := store.ReadMetadata("bad"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("failed task must leave no record, got %v", err)
	}
}

func TestRefreshCatalogFailureIsFatal(t *testing.T) {
	catalog, _, reconciler := newReconcilerEnv(t)
	catalog.listErr = errors.New("401 unauthorized")

	entries, failed, err := reconciler.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error when the task listing fails")
	}
	if entries != nil || failed != nil {
		t.Errorf("no partial results on catalog failure: %v %v", entries, failed)
	}
}

func TestRefreshMatchesLocalListing(t *testing.T) {
	catalog, store, reconciler := newReconcilerEnv(t)
	catalog.addTask("t1", "Sales KPI", "kpi")
	catalog.addTask("t2", "Regions", "map")

	entries, _, err := reconciler.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	local, err := NewLocalSnapshotReader(store, nil).ListLocal()
	if err != nil {
		t.Fatal(err)
	}
	if len(local) != len(entries) {
		t.Fatalf("local = %d entries, refresh = %d", len(local), len(entries))
	}
	byID := make(map[string]bool, len(entries))
	for _, e := range entries {
		byID[e.ID] = true
	}
	for _, e := range local {
		if !byID[e.ID] {
			t.Errorf("local entry %s missing from refresh result", e.ID)
		}
	}
}

func TestRefreshEmptyCatalog(t *testing.T) {
	_, _, reconciler := newReconcilerEnv(t)

	entries, failed, err := reconciler.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 || len(failed) != 0 {
		t.Errorf("entries = %v failed = %v", entries, failed)
	}
}
