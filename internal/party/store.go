package party

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SaveBackend is the persistence surface the store needs. It matches
// persist.Backend; the store depends on the interface so tests can inject
// fakes without touching the filesystem or the network.
type SaveBackend interface {
	Name() string
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// SaveLogger receives persistence failure reports.
type SaveLogger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// SaveObserver records save attempts for metrics.
type SaveObserver func(backend string, success bool, duration time.Duration)

// ErrSnapshotMissing mirrors the backend's not-found condition for the
// store's hydrate path.
var ErrSnapshotMissing = errors.New("party: snapshot missing")

// Store owns the single in-memory State instance. All mutations go through
// Mutate, which holds the lock for the in-memory transformation and then
// triggers a save. Persistence failures are logged and swallowed: the
// mutation stays in memory and the caller still observes success.
type Store struct {
	mu       sync.RWMutex
	state    *State
	backend  SaveBackend
	log      SaveLogger
	observe  SaveObserver
	defaults func() *State
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Backend SaveBackend
	Log     SaveLogger
	// Defaults constructs the reset state. Nil means DefaultState.
	Defaults func() *State
	// Observe is called after every save attempt. Optional.
	Observe SaveObserver
}

// NewStore creates a store. The state is empty until Hydrate runs.
func NewStore(cfg StoreConfig) *Store {
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = DefaultState
	}
	observe := cfg.Observe
	if observe == nil {
		observe = func(string, bool, time.Duration) {}
	}
	return &Store{
		state:    defaults(),
		backend:  cfg.Backend,
		log:      cfg.Log,
		observe:  observe,
		defaults: defaults,
	}
}

// Hydrate loads the state from the backend. When no snapshot exists the
// default state is installed and saved immediately so the first mutation
// has a file to update.
func (s *Store) Hydrate(ctx context.Context) error {
	loaded, err := s.backend.Load(ctx)
	if err != nil {
		s.log.Infof("no usable snapshot, starting from defaults")
		s.mu.Lock()
		s.state = s.defaults()
		s.mu.Unlock()
		s.save(ctx)
		return nil
	}
	loaded.Normalize()
	s.mu.Lock()
	s.state = loaded
	s.mu.Unlock()
	s.log.Infof("state loaded from %s backend", s.backend.Name())
	return nil
}

// Get returns a deep snapshot of the current state.
func (s *Store) Get() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Mutate applies fn to the state under the write lock, then persists. When
// fn returns an error nothing is saved and the state is untouched: fn runs
// against a clone that only replaces the live state on success.
func (s *Store) Mutate(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	next := s.state.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.mu.Unlock()

	s.save(ctx)
	return nil
}

// MergePatch carries the documented top-level fields accepted by the
// permissive merge endpoint. Unknown keys in the request body are ignored.
type MergePatch struct {
	Foodies         *[]string             `json:"foodies"`
	Drinkers        *[]Drinker            `json:"drinkers"`
	GamePreferences *[]GamePreference     `json:"gamePreferences"`
	VibeVotes       *[]VibeVote           `json:"vibeVotes"`
	KrystalLikes    *int                  `json:"krystalLikes"`
	MemberLikes     *map[string]int       `json:"memberLikes"`
	MemberComments  *map[string][]Comment `json:"memberComments"`
	CustomMembers   *[]Member             `json:"customMembers"`
	GameLobbies     *[]Lobby              `json:"gameLobbies"`
	SupportMembers  *[]Member             `json:"supportMembers"`
	NavMenuItems    *[]NavMenuItem        `json:"navMenuItems"`
	PartyInfo       *PartyInfo            `json:"partyInfo"`
	Timeline        *[]TimelineEntry      `json:"timeline"`
	Visits          *int                  `json:"visits"`
	LastVisit       *string               `json:"lastVisit"`
	VisitHistory    *[]Visit              `json:"visitHistory"`
}

// Merge shallow-merges the supplied top-level fields and persists.
func (s *Store) Merge(ctx context.Context, patch MergePatch) {
	s.mu.Lock()
	next := s.state.Clone()
	applyPatch(next, patch)
	next.Normalize()
	s.state = next
	s.mu.Unlock()

	s.save(ctx)
}

func applyPatch(state *State, patch MergePatch) {
	if patch.Foodies != nil {
		state.Foodies = *patch.Foodies
	}
	if patch.Drinkers != nil {
		state.Drinkers = *patch.Drinkers
	}
	if patch.GamePreferences != nil {
		state.GamePreferences = *patch.GamePreferences
	}
	if patch.VibeVotes != nil {
		state.VibeVotes = *patch.VibeVotes
	}
	if patch.KrystalLikes != nil {
		state.KrystalLikes = *patch.KrystalLikes
	}
	if patch.MemberLikes != nil {
		state.MemberLikes = *patch.MemberLikes
	}
	if patch.MemberComments != nil {
		state.MemberComments = *patch.MemberComments
	}
	if patch.CustomMembers != nil {
		state.ReplaceCustomMembers(*patch.CustomMembers)
	}
	if patch.GameLobbies != nil {
		state.GameLobbies = *patch.GameLobbies
	}
	if patch.SupportMembers != nil {
		state.ReplaceSupportMembers(*patch.SupportMembers)
	}
	if patch.NavMenuItems != nil {
		state.ReplaceNavMenuItems(*patch.NavMenuItems)
	}
	if patch.PartyInfo != nil {
		state.ReplacePartyInfo(*patch.PartyInfo)
	}
	if patch.Timeline != nil {
		state.ReplaceTimeline(*patch.Timeline)
	}
	if patch.Visits != nil {
		state.Visits = *patch.Visits
	}
	if patch.LastVisit != nil {
		state.LastVisit = *patch.LastVisit
	}
	if patch.VisitHistory != nil {
		state.VisitHistory = *patch.VisitHistory
	}
}

// Reset restores the compiled-in defaults and persists.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.state = s.defaults()
	s.mu.Unlock()

	s.save(ctx)
}

// Flush performs one synchronous save of the current state. Used for the
// best-effort final save on shutdown.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	snapshot := s.state.Clone()
	s.mu.RUnlock()

	start := time.Now()
	err := s.backend.Save(ctx, snapshot)
	s.observe(s.backend.Name(), err == nil, time.Since(start))
	return err
}

// save persists the current state, logging and swallowing failures.
// Durability is best effort: the accepted mutation survives in memory even
// when the backend is down.
func (s *Store) save(ctx context.Context) {
	if err := s.Flush(ctx); err != nil {
		s.log.Warnf("state save failed, keeping in-memory state: %v", err)
	}
}
