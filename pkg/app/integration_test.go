package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/config"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"

	_ "github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/auth/oauth" // Register oauth credential provider
)

// fakeTenant emulates the Qlik Cloud surface the service consumes: token
// endpoint, sharing-task listing/detail, and per-execution artifact files.
type fakeTenant struct {
	srv         *httptest.Server
	failListing atomic.Bool
}

func newFakeTenant(t *testing.T) *fakeTenant {
	t.Helper()
	ft := &fakeTenant{}
	pngBody := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "test-token", "expires_in": 3600})
	})
	mux.HandleFunc("/api/v1/sharing-tasks", func(w http.ResponseWriter, r *http.Request) {
		if ft.failListing.Load() {
			http.Error(w, `{"errors":[{"title":"unavailable"}]}`, http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("type") != "chart-monitoring" {
			http.Error(w, "bad type filter", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"id": "kpi-task", "name": "Sales KPI", "lastExecutionId": "exec-1"},
			{"id": "map-task", "name": "Regions", "lastExecutionId": "exec-2"},
			{"id": "broken-task", "name": "Broken", "lastExecutionId": "exec-3"},
		}})
	})
	mux.HandleFunc("/api/v1/sharing-tasks/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sharing-tasks/")
		parts := strings.Split(rest, "/")

		if len(parts) == 1 {
			taskID := parts[0]
			name := map[string]string{"kpi-task": "Sales KPI", "map-task": "Regions", "broken-task": "Broken"}[taskID]
			if name == "" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"id": taskID, "name": name, "lastExecutionId": "exec-x"})
			return
		}
		if len(parts) != 5 || parts[1] != "executions" || parts[3] != "files" {
			http.NotFound(w, r)
			return
		}
		taskID, role := parts[0], parts[4]

		// broken-task never produced its large image.
		if taskID == "broken-task" && role == "image-large" {
			http.NotFound(w, r)
			return
		}
		switch role {
		case "snapshot":
			viz := "kpi"
			if taskID == "map-task" {
				viz = "map"
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"visualization":%q,"data":[1,2,3]}`, viz)
		case "image-small", "image-large":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBody)
		default:
			http.NotFound(w, r)
		}
	})

	ft.srv = httptest.NewServer(mux)
	t.Cleanup(ft.srv.Close)
	return ft
}

func TestHTTPIntegrationFlow(t *testing.T) {
	tenant := newFakeTenant(t)

	cfg := &config.Config{
		Port:                8080,
		TenantURL:           tenant.srv.URL,
		AuthProvider:        "oauth",
		ClientID:            "client-id",
		ClientSecret:        "client-secret",
		StoreRoot:           t.TempDir(),
		PublicPrefix:        "/snapshots",
		LogLevel:            "error",
		LogFormat:           "json",
		Env:                 "test",
		FetchTimeoutSeconds: 5,
		LockTTLSeconds:      120,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config validate: %v", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("application: %v", err)
	}
	SetupMappings(app)
	server := httptest.NewServer(app.Engine)
	t.Cleanup(server.Close)

	// Cold cache: the local listing is empty, never an error.
	if entries := getEntries(t, server.URL+"/get-local-snapshots"); len(entries) != 0 {
		t.Fatalf("cold cache entries = %v", entries)
	}

	// Refresh: the broken task rolls back, the two healthy ones commit.
	entries := getEntries(t, server.URL+"/get-snapshots")
	if len(entries) != 2 {
		t.Fatalf("refresh entries = %v, want 2", entries)
	}
	byID := map[string]domain.CatalogEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	if e := byID["kpi-task"]; e.DisplayMode != domain.DisplayModeSnapshot || e.Visualization != "kpi" {
		t.Errorf("kpi-task entry = %+v", e)
	}
	if e := byID["map-task"]; e.DisplayMode != domain.DisplayModeImage {
		t.Errorf("map-task entry = %+v", e)
	}
	if _, ok := byID["broken-task"]; ok {
		t.Error("broken-task must not be committed")
	}

	// The local listing now mirrors the refresh result.
	local := getEntries(t, server.URL+"/get-local-snapshots")
	if len(local) != 2 {
		t.Fatalf("local entries = %v, want 2", local)
	}

	// Artifact files are served off the store under the public prefix.
	for _, path := range []string{
		"/snapshots/kpi-task/snapshot.json",
		"/snapshots/kpi-task/image-small.png",
		"/snapshots/map-task/image-large.png",
	} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}
	// Rolled-back directories serve nothing.
	resp, err := http.Get(server.URL + "/snapshots/broken-task/snapshot.json")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("broken-task artifact status = %d, want 404", resp.StatusCode)
	}

	// A catalog outage fails the refresh but leaves the cache readable.
	tenant.failListing.Store(true)
	resp, err = http.Get(server.URL + "/get-snapshots")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("outage refresh status = %d body=%s", resp.StatusCode, body)
	}
	var errPayload map[string]string
	if err := json.Unmarshal(body, &errPayload); err != nil || errPayload["error"] == "" {
		t.Errorf("outage body = %s", body)
	}
	if local := getEntries(t, server.URL+"/get-local-snapshots"); len(local) != 2 {
		t.Errorf("cache after outage = %v, want 2 entries", local)
	}

	// Health endpoint.
	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

func getEntries(t *testing.T, url string) []domain.CatalogEntry {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status %d body=%s", url, resp.StatusCode, body)
	}
	var entries []domain.CatalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode %s: %v body=%s", url, err, body)
	}
	return entries
}
