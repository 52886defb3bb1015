// Package persist implements the party state persistence backends: a file
// snapshot, a Supabase document store, and a dual backend combining both.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/tianlai/party-server/internal/party"
)

// PingTimeout bounds the one-time startup connectivity probe.
const PingTimeout = 5 * time.Second

// ErrNotFound is returned by Load when no snapshot exists yet. Callers
// initialize a default state and save it immediately.
var ErrNotFound = errors.New("persist: snapshot not found")

// Backend is the save/load contract all backends implement. Save persists
// the full aggregate; Load returns ErrNotFound when nothing was saved yet.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Load(ctx context.Context) (*party.State, error)
	Save(ctx context.Context, state *party.State) error
}
