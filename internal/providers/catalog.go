package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/tracing"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/auth"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"
)

// ExecutionFile is one artifact payload as the remote returned it. Status is
// the raw HTTP status; callers decide whether a non-2xx aborts their
// transaction.
type ExecutionFile struct {
	Status      int
	ContentType string
	Body        []byte
}

// RemoteTaskCatalog is the Qlik Cloud chart-monitoring surface this service
// consumes.
type RemoteTaskCatalog interface {
	// ListMonitoredTasks lists every chart-monitoring task on the tenant.
	ListMonitoredTasks(ctx context.Context) ([]domain.Task, error)
	// GetTaskDetail reads one task. The read itself keeps the monitoring
	// task active remotely, so it must happen once per refresh even when
	// the listing already carried the fields.
	GetTaskDetail(ctx context.Context, taskID string) (*domain.Task, error)
	// GetExecutionFile downloads one artifact role of an execution.
	GetExecutionFile(ctx context.Context, taskID, executionID string, role domain.ArtifactRole) (*ExecutionFile, error)
}

type qlikCatalog struct {
	baseURL    string
	creds      auth.CredentialSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewCatalog(tenantURL string, creds auth.CredentialSource, timeout time.Duration, logger *slog.Logger) RemoteTaskCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &qlikCatalog{
		baseURL:    strings.TrimRight(tenantURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *qlikCatalog) ListMonitoredTasks(ctx context.Context) ([]domain.Task, error) {
	body, err := c.getJSON(ctx, "/api/v1/sharing-tasks?type=chart-monitoring")
	if err != nil {
		return nil, fmt.Errorf("list monitored tasks: %w", err)
	}
	var out struct {
		Data []domain.Task `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("list monitored tasks: decode: %w", err)
	}
	return out.Data, nil
}

func (c *qlikCatalog) GetTaskDetail(ctx context.Context, taskID string) (*domain.Task, error) {
	body, err := c.getJSON(ctx, "/api/v1/sharing-tasks/"+url.PathEscape(taskID))
	if err != nil {
		return nil, fmt.Errorf("task %s detail: %w", taskID, err)
	}
	var t domain.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("task %s detail: decode: %w", taskID, err)
	}
	return &t, nil
}

func (c *qlikCatalog) GetExecutionFile(ctx context.Context, taskID, executionID string, role domain.ArtifactRole) (*ExecutionFile, error) {
	path := fmt.Sprintf("/api/v1/sharing-tasks/%s/executions/%s/files/%s",
		url.PathEscape(taskID), url.PathEscape(executionID), url.PathEscape(string(role)))

	resp, err := c.do(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("task %s file %s: %w", taskID, role, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("task %s file %s: read body: %w", taskID, role, err)
	}
	return &ExecutionFile{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *qlikCatalog) do(ctx context.Context, path string) (*http.Response, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	tracing.InjectHeaders(ctx, req.Header)
	return c.httpClient.Do(req)
}

// getJSON performs a GET that must succeed with a 2xx JSON body.
func (c *qlikCatalog) getJSON(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("remote call failed", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return io.ReadAll(resp.Body)
}
