package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"
)

type fixedCreds struct{ token string }

func (f fixedCreds) Token(ctx context.Context) (string, error) { return f.token, nil }

func newFakeTenant(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sharing-tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("type") != "chart-monitoring" {
			http.Error(w, "bad type", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "t1", "name": "Sales KPI", "lastExecutionId": "e1"},
				{"id": "t2", "name": "Revenue", "lastExecutionId": "e2"},
			},
		})
	})
	mux.HandleFunc("/api/v1/sharing-tasks/t1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "t1", "name": "Sales KPI", "lastExecutionId": "e1"})
	})
	mux.HandleFunc("/api/v1/sharing-tasks/t1/executions/e1/files/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"visualization":"kpi"}`))
	})
	mux.HandleFunc("/api/v1/sharing-tasks/t1/executions/e1/files/image-large", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListMonitoredTasks(t *testing.T) {
	srv := newFakeTenant(t)
	cat := NewCatalog(srv.URL, fixedCreds{"tok"}, 5*time.Second, nil)

	tasks, err := cat.ListMonitoredTasks(context.Background())
	if err != nil {
		t.Fatalf("ListMonitoredTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "t1" || tasks[0].Name != "Sales KPI" || tasks[0].LastExecutionID != "e1" {
		t.Errorf("unexpected task: %+v", tasks[0])
	}
}

func TestListMonitoredTasksBadCredentials(t *testing.T) {
	srv := newFakeTenant(t)
	cat := NewCatalog(srv.URL, fixedCreds{"wrong"}, 5*time.Second, nil)

	if _, err := cat.ListMonitoredTasks(context.Background()); err == nil {
		t.Fatal("expected error with bad credentials")
	}
}

func TestGetTaskDetail(t *testing.T) {
	srv := newFakeTenant(t)
	cat := NewCatalog(srv.URL, fixedCreds{"tok"}, 5*time.Second, nil)

	task, err := cat.GetTaskDetail(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTaskDetail: %v", err)
	}
	if task.ID != "t1" || task.LastExecutionID != "e1" {
		t.Errorf("unexpected detail: %+v", task)
	}
}

func TestGetExecutionFile(t *testing.T) {
	srv := newFakeTenant(t)
	cat := NewCatalog(srv.URL, fixedCreds{"tok"}, 5*time.Second, nil)

	f, err := cat.GetExecutionFile(context.Background(), "t1", "e1", domain.RoleSnapshot)
	if err != nil {
		t.Fatalf("GetExecutionFile: %v", err)
	}
	if f.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", f.Status)
	}
	if f.ContentType != "application/json" {
		t.Errorf("ContentType = %q", f.ContentType)
	}
	if string(f.Body) != `{"visualization":"kpi"}` {
		t.Errorf("Body = %q", f.Body)
	}
}

func TestGetExecutionFileNotFoundStatusIsNotTransportError(t *testing.T) {
	srv := newFakeTenant(t)
	cat := NewCatalog(srv.URL, fixedCreds{"tok"}, 5*time.Second, nil)

	f, err := cat.GetExecutionFile(context.Background(), "t1", "e1", domain.RoleImageLarge)
	if err != nil {
		t.Fatalf("a 404 must surface via Status, not an error: %v", err)
	}
	if f.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", f.Status)
	}
}

func TestGetExecutionFileTransportError(t *testing.T) {
	srv := newFakeTenant(t)
	url := srv.URL
	srv.Close()
	cat := NewCatalog(url, fixedCreds{"tok"}, time.Second, nil)

	if _, err := cat.GetExecutionFile(context.Background(), "t1", "e1", domain.RoleSnapshot); err == nil {
		t.Fatal("expected transport error")
	}
}
