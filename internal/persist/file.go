package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tianlai/party-server/internal/party"
)

// FileBackend persists the whole state as one pretty-printed JSON file.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated snapshot.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Name identifies the backend.
func (f *FileBackend) Name() string { return "file" }

// Path returns the snapshot file location.
func (f *FileBackend) Path() string { return f.path }

// Load reads the snapshot. A missing or corrupt file is reported as
// ErrNotFound so callers fall back to the default state.
func (f *FileBackend) Load(ctx context.Context) (*party.State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, ErrNotFound
	}
	var state party.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, ErrNotFound
	}
	state.Normalize()
	return &state, nil
}

// Save writes the snapshot atomically.
func (f *FileBackend) Save(ctx context.Context, state *party.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".party-data-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
