package services

import (
	"log/slog"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"
)

// LocalSnapshotReader reconstructs the catalog from the local store without
// contacting the remote system.
type LocalSnapshotReader interface {
	ListLocal() ([]domain.CatalogEntry, error)
}

type localSnapshotReader struct {
	store  repository.SnapshotStore
	logger *slog.Logger
}

func NewLocalSnapshotReader(store repository.SnapshotStore, logger *slog.Logger) LocalSnapshotReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &localSnapshotReader{store: store, logger: logger}
}

func (r *localSnapshotReader) ListLocal() ([]domain.CatalogEntry, error) {
	dirs, err := r.store.ListTaskDirs()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.CatalogEntry, 0, len(dirs))
	for _, dir := range dirs {
		rec, err := r.store.ReadMetadata(dir)
		if err != nil {
			// One corrupt or half-written entry never fails the listing.
			r.logger.Warn("skipping unreadable snapshot entry", "task_id", dir, "err", err)
			continue
		}
		entries = append(entries, domain.EntryFromRecord(*rec))
	}
	return entries, nil
}
