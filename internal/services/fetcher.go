package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/lock"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/metrics"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/providers"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SnapshotFetcher runs the per-task acquisition transaction: all three
// artifact roles land on disk and the metadata record is committed, or the
// task's directory is rolled back to absent.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, task domain.Task) domain.FetchOutcome
}

type snapshotFetcher struct {
	catalog providers.RemoteTaskCatalog
	store   repository.SnapshotStore
	locks   lock.Locker
	logger  *slog.Logger
	now     func() time.Time
}

func NewSnapshotFetcher(catalog providers.RemoteTaskCatalog, store repository.SnapshotStore, locks lock.Locker, logger *slog.Logger, now func() time.Time) SnapshotFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &snapshotFetcher{catalog: catalog, store: store, locks: locks, logger: logger, now: now}
}

func (f *snapshotFetcher) Fetch(ctx context.Context, task domain.Task) domain.FetchOutcome {
	start := f.now()
	ctx, span := otel.Tracer("snapshots/fetch").Start(ctx, "snapshots.task.fetch",
		trace.WithAttributes(attribute.String("snapshots.task_id", task.ID)),
	)
	defer span.End()

	release, err := f.locks.Acquire(ctx, task.ID)
	if err != nil {
		// Lock contention leaves whatever the current holder commits; no
		// rollback here since this transaction never touched the directory.
		span.SetStatus(codes.Error, "lock not acquired")
		metrics.FetchesTotal.WithLabelValues("failed").Inc()
		return domain.FailedOutcome(task.ID, fmt.Sprintf("lock: %v", err))
	}
	defer release()

	outcome := f.run(ctx, span, task)

	label := "complete"
	if !outcome.Complete() {
		label = "failed"
		span.SetStatus(codes.Error, outcome.Reason())
	}
	metrics.FetchesTotal.WithLabelValues(label).Inc()
	metrics.FetchDurationSeconds.WithLabelValues(label).Observe(f.now().Sub(start).Seconds())
	return outcome
}

func (f *snapshotFetcher) run(ctx context.Context, span trace.Span, task domain.Task) domain.FetchOutcome {
	// The detail read keeps the monitoring task active on the tenant, so it
	// happens before anything else and its descriptor supersedes the
	// listing's copy.
	detail, err := f.catalog.GetTaskDetail(ctx, task.ID)
	if err != nil {
		return f.rollback(task.ID, fmt.Sprintf("detail: %v", err))
	}
	name := detail.Name
	if name == "" {
		name = task.Name
	}
	executionID := detail.LastExecutionID
	if executionID == "" {
		executionID = task.LastExecutionID
	}
	if executionID == "" {
		return f.rollback(task.ID, "no completed execution")
	}

	if err := f.store.EnsureDir(task.ID); err != nil {
		return f.rollback(task.ID, fmt.Sprintf("ensure dir: %v", err))
	}

	visualization := domain.VisualizationUnknown
	written := make([]string, 0, 3)
	for _, role := range domain.Roles() {
		file, err := f.catalog.GetExecutionFile(ctx, task.ID, executionID, role)
		if err != nil {
			return f.rollback(task.ID, fmt.Sprintf("%s: %v", role, err))
		}
		if file.Status < 200 || file.Status > 299 {
			return f.rollback(task.ID, fmt.Sprintf("%s: status %d", role, file.Status))
		}

		if role == domain.RoleSnapshot {
			viz, err := snapshotVisualization(file.Body)
			if err != nil {
				return f.rollback(task.ID, fmt.Sprintf("%s: decode: %v", role, err))
			}
			visualization = viz
		} else if file.ContentType != "image/png" {
			// Persisted anyway so the transaction is evaluated as attempted.
			f.logger.Warn("unexpected artifact content type",
				"task_id", task.ID, "role", string(role), "content_type", file.ContentType)
		}

		filename := role.Filename(file.ContentType)
		if err := f.store.WriteFile(task.ID, filename, file.Body); err != nil {
			return f.rollback(task.ID, fmt.Sprintf("%s: write: %v", role, err))
		}
		written = append(written, filename)
	}

	for _, filename := range written {
		if !f.store.HasFile(task.ID, filename) {
			return f.rollback(task.ID, fmt.Sprintf("missing artifact file %s", filename))
		}
	}

	rec := domain.SnapshotRecord{
		ID:                task.ID,
		Name:              name,
		Visualization:     visualization,
		ImageAvailable:    true,
		SnapshotAvailable: true,
		DisplayMode:       domain.DisplayModeFor(visualization),
		LastUpdated:       f.now(),
	}
	// The metadata write is the commit point: only after it does the entry
	// become visible to readers.
	if err := f.store.WriteMetadata(task.ID, rec); err != nil {
		return f.rollback(task.ID, fmt.Sprintf("commit metadata: %v", err))
	}

	span.SetAttributes(attribute.String("snapshots.visualization", visualization))
	return domain.CompleteOutcome(rec)
}

// rollback removes the task directory so no partial state survives the
// failed transaction. Deletion failures are logged, never escalated; the
// task simply stays or becomes unreadable and is reported as an error by the
// reconciler's post-fetch read.
func (f *snapshotFetcher) rollback(taskID, reason string) domain.FetchOutcome {
	f.logger.Warn("snapshot fetch failed", "task_id", taskID, "reason", reason)
	if err := f.store.RemoveDir(taskID); err != nil {
		f.logger.Warn("snapshot cleanup failed", "task_id", taskID, "err", err)
	}
	return domain.FailedOutcome(taskID, reason)
}

// snapshotVisualization extracts the declared chart type from the snapshot
// payload. A payload without the field is valid and renders as an image;
// malformed JSON fails the transaction.
func snapshotVisualization(body []byte) (string, error) {
	var payload struct {
		Visualization string `json:"visualization"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Visualization) == "" {
		return domain.VisualizationUnknown, nil
	}
	return payload.Visualization, nil
}
