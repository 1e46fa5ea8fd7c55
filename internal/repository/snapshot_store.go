package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/domain"
)

// ErrNotFound is returned when a task has no committed metadata record.
var ErrNotFound = errors.New("not-found")

const metadataFile = "metadata.json"

// SnapshotStore is the directory-per-task artifact store. It is the only
// component that touches the on-disk state; it does no locking itself, so a
// caller must never run two writes for the same task id concurrently.
type SnapshotStore interface {
	EnsureDir(taskID string) error
	WriteFile(taskID, name string, data []byte) error
	WriteMetadata(taskID string, rec domain.SnapshotRecord) error
	ReadMetadata(taskID string) (*domain.SnapshotRecord, error)
	HasFile(taskID, name string) bool
	RemoveDir(taskID string) error
	ListTaskDirs() ([]string, error)
	Stats() (entries int, bytes int64)
}

type fsStore struct {
	root string
}

func NewSnapshotStore(root string) SnapshotStore {
	return &fsStore{root: root}
}

// taskDir validates the id and resolves the task directory. IDs arrive from
// the remote catalog, so anything that is not a single clean path element is
// rejected before it can escape the store root.
func (s *fsStore) taskDir(taskID string) (string, error) {
	if taskID == "" || taskID != filepath.Clean(taskID) ||
		strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("invalid task id %q", taskID)
	}
	return filepath.Join(s.root, taskID), nil
}

func (s *fsStore) EnsureDir(taskID string) error {
	dir, err := s.taskDir(taskID)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *fsStore) WriteFile(taskID, name string, data []byte) error {
	dir, err := s.taskDir(taskID)
	if err != nil {
		return err
	}
	if name != filepath.Base(name) || name == "" || name == "." {
		return fmt.Errorf("invalid file name %q", name)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func (s *fsStore) WriteMetadata(taskID string, rec domain.SnapshotRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return s.WriteFile(taskID, metadataFile, b)
}

func (s *fsStore) ReadMetadata(taskID string) (*domain.SnapshotRecord, error) {
	dir, err := s.taskDir(taskID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read metadata %s: %w", taskID, err)
	}
	var rec domain.SnapshotRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", taskID, err)
	}
	// Older records may predate the id/name fields; default them to the
	// directory name so listings stay usable.
	if rec.ID == "" {
		rec.ID = taskID
	}
	if rec.Name == "" {
		rec.Name = taskID
	}
	return &rec, nil
}

// HasFile reports whether the named artifact file exists for the task. Used
// by the fetcher to evaluate a transaction before committing.
func (s *fsStore) HasFile(taskID, name string) bool {
	dir, err := s.taskDir(taskID)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}

func (s *fsStore) RemoveDir(taskID string) error {
	dir, err := s.taskDir(taskID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *fsStore) ListTaskDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

// Stats walks the store for the prometheus collector. Errors are swallowed;
// a metric scrape must never fail the store.
func (s *fsStore) Stats() (int, int64) {
	dirs, err := s.ListTaskDirs()
	if err != nil {
		return 0, 0
	}
	var entries int
	var size int64
	for _, d := range dirs {
		dir := filepath.Join(s.root, d)
		if _, err := os.Stat(filepath.Join(dir, metadataFile)); err == nil {
			entries++
		}
		_ = filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
			if err != nil || de.IsDir() {
				return nil
			}
			if info, err := de.Info(); err == nil {
				size += info.Size()
			}
			return nil
		})
	}
	return entries, size
}
