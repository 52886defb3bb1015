package persist

import (
	"context"
	"errors"

	"github.com/tianlai/party-server/internal/logging"
	"github.com/tianlai/party-server/internal/party"
)

// DualBackend uses the document store as primary and the file snapshot as
// both fallback and backup. Load falls back to the file on any primary
// failure; Save writes the primary and always also writes the file, so a
// current snapshot survives a document-store outage.
type DualBackend struct {
	primary Backend
	file    *FileBackend
	log     *logging.Logger
}

// NewDualBackend combines a primary backend with the file backup.
func NewDualBackend(primary Backend, file *FileBackend, log *logging.Logger) *DualBackend {
	return &DualBackend{primary: primary, file: file, log: log}
}

// Name identifies the backend.
func (d *DualBackend) Name() string { return "dual" }

// Load tries the primary first and falls back to the file snapshot.
func (d *DualBackend) Load(ctx context.Context) (*party.State, error) {
	state, err := d.primary.Load(ctx)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		d.log.Warnf("primary load failed, falling back to file snapshot: %v", err)
	}
	return d.file.Load(ctx)
}

// Save writes the primary and the file backup. The file write always runs;
// the first error wins.
func (d *DualBackend) Save(ctx context.Context, state *party.State) error {
	primaryErr := d.primary.Save(ctx, state)
	if primaryErr != nil {
		d.log.Warnf("primary save failed: %v", primaryErr)
	}
	if err := d.file.Save(ctx, state); err != nil {
		d.log.Warnf("file backup save failed: %v", err)
		if primaryErr == nil {
			return err
		}
	}
	return primaryErr
}
