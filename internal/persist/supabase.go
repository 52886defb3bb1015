package persist

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tianlai/party-server/internal/party"
	"github.com/tianlai/party-server/supabase/client"
)

// DocumentKey is the fixed key the whole party state is stored under.
const DocumentKey = "party-state"

// stateRow is the single-document row shape in the Supabase table.
type stateRow struct {
	Key  string       `json:"key"`
	Data *party.State `json:"data"`
}

// SupabaseBackend upserts the entire state as one JSON document row.
type SupabaseBackend struct {
	client *client.Client
	table  string
}

// NewSupabaseBackend creates a Supabase backend writing to the given table.
func NewSupabaseBackend(c *client.Client, table string) *SupabaseBackend {
	return &SupabaseBackend{client: c, table: table}
}

// Name identifies the backend.
func (s *SupabaseBackend) Name() string { return "supabase" }

// Ping performs the lightweight startup read that decides whether the
// document store is usable for this process.
func (s *SupabaseBackend) Ping(ctx context.Context) error {
	resp, err := s.client.From(s.table).Select("key").Limit(1).Execute(ctx)
	if err != nil {
		return fmt.Errorf("supabase ping: %w", err)
	}
	if err := resp.Error(); err != nil {
		return fmt.Errorf("supabase ping: %w", err)
	}
	return nil
}

// Load reads the state document. An absent row is ErrNotFound.
func (s *SupabaseBackend) Load(ctx context.Context) (*party.State, error) {
	resp, err := s.client.From(s.table).
		Select("key,data").
		Eq("key", DocumentKey).
		Single().
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("supabase load: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotAcceptable {
		// PostgREST reports an empty single-object select as 406.
		return nil, ErrNotFound
	}
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("supabase load: %w", err)
	}

	var row stateRow
	if err := resp.JSON(&row); err != nil {
		return nil, fmt.Errorf("supabase load: decode row: %w", err)
	}
	if row.Data == nil {
		return nil, ErrNotFound
	}
	row.Data.Normalize()
	return row.Data, nil
}

// Save upserts the state document under its fixed key.
func (s *SupabaseBackend) Save(ctx context.Context, state *party.State) error {
	resp, err := s.client.From(s.table).
		Upsert("key").
		ExecuteInsert(ctx, stateRow{Key: DocumentKey, Data: state})
	if err != nil {
		return fmt.Errorf("supabase save: %w", err)
	}
	if err := resp.Error(); err != nil {
		return fmt.Errorf("supabase save: %w", err)
	}
	return nil
}
