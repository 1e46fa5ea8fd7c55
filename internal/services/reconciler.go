package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/metrics"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/providers"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CatalogReconciler refreshes every monitored task and reports what is
// durably stored afterwards.
type CatalogReconciler interface {
	// Refresh fetches all monitored tasks. The error return is non-nil only
	// when the remote listing itself fails; per-task failures land in the
	// second return as task ids.
	Refresh(ctx context.Context) ([]domain.CatalogEntry, []string, error)
}

type catalogReconciler struct {
	catalog providers.RemoteTaskCatalog
	fetcher SnapshotFetcher
	store   repository.SnapshotStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewCatalogReconciler(catalog providers.RemoteTaskCatalog, fetcher SnapshotFetcher, store repository.SnapshotStore, logger *slog.Logger, now func() time.Time) CatalogReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &catalogReconciler{catalog: catalog, fetcher: fetcher, store: store, logger: logger, now: now}
}

func (r *catalogReconciler) Refresh(ctx context.Context) ([]domain.CatalogEntry, []string, error) {
	start := r.now()
	refreshID := uuid.NewString()
	logger := r.logger.With("refresh_id", refreshID)

	ctx, span := otel.Tracer("snapshots/refresh").Start(ctx, "snapshots.catalog.refresh",
		trace.WithAttributes(attribute.String("snapshots.refresh_id", refreshID)),
	)
	defer span.End()

	tasks, err := r.catalog.ListMonitoredTasks(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}
	logger.Info("refresh started", "tasks", len(tasks))

	// Sequential on purpose: remote-call ordering stays deterministic and
	// the per-task log lines stay readable. Each fetch is an independent
	// transaction guarded by its task-id lock.
	for _, task := range tasks {
		outcome := r.fetcher.Fetch(ctx, task)
		if outcome.Complete() {
			logger.Info("task snapshot updated", "task_id", task.ID)
		} else {
			logger.Warn("task snapshot skipped", "task_id", task.ID, "reason", outcome.Reason())
		}
	}

	// Build the response from disk, not from the in-memory outcomes: what
	// is durably stored is the only truth, and another process may have
	// written to the store while this refresh ran.
	entries := make([]domain.CatalogEntry, 0, len(tasks))
	var failed []string
	for _, task := range tasks {
		rec, err := r.store.ReadMetadata(task.ID)
		if err != nil {
			failed = append(failed, task.ID)
			continue
		}
		entries = append(entries, domain.EntryFromRecord(*rec))
	}

	elapsed := r.now().Sub(start)
	metrics.RefreshDurationSeconds.Observe(elapsed.Seconds())
	metrics.RefreshTasksFailedTotal.Add(float64(len(failed)))
	span.SetAttributes(attribute.Int("snapshots.refresh.failed", len(failed)))
	logger.Info("refresh finished", "entries", len(entries), "failed", len(failed), "elapsed", elapsed)

	return entries, failed, nil
}
