package votes

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var errMissingSession = errors.New("votes: session dependency required")

// Authenticator reports whether the caller currently holds a session.
type Authenticator interface {
	Authenticated() bool
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Session Authenticator
	// Kind labels log entries, e.g. "submission" or "comment".
	Kind   string
	Logger *zap.Logger
}

// Store keeps per-entity vote state with optimistic apply, confirm and rollback.
// At most one optimistic mutation may be in flight per entity.
type Store struct {
	mu      sync.Mutex
	session Authenticator
	kind    string
	entries map[string]State
	logger  *zap.Logger
}

// NewStore constructs an empty Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Session == nil {
		return nil, errMissingSession
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	kind := cfg.Kind
	if kind == "" {
		kind = "entity"
	}
	return &Store{
		session: cfg.Session,
		kind:    kind,
		entries: make(map[string]State),
		logger:  logger,
	}, nil
}

// Kind returns the entity kind label.
func (s *Store) Kind() string {
	return s.kind
}

// Get returns the current state for the entity.
func (s *Store) Get(entityID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.entries[entityID]
	return state, ok
}

// Seed installs server-provided state. Entities with a pending mutation keep their
// optimistic state; the mutation's own confirm or rollback settles them.
func (s *Store) Seed(state State) bool {
	entityID, err := ValidateEntityID(state.EntityID)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entityID]; ok && existing.HasPending() {
		s.logger.Debug("seed skipped for pending entity",
			zap.String("kind", s.kind),
			zap.String("entity_id", entityID))
		return false
	}
	state.EntityID = entityID
	state.Upvotes = clampCount(state.Upvotes)
	state.Downvotes = clampCount(state.Downvotes)
	state.Pending = VoteNone
	s.entries[entityID] = state
	return true
}

// ApplyOptimistic records intent locally and returns the confirmed state it replaced.
func (s *Store) ApplyOptimistic(entityID string, intent Vote) (State, error) {
	if !s.session.Authenticated() {
		return State{}, ErrUnauthenticated
	}
	if !intent.IsIntent() {
		return State{}, fmt.Errorf("%w: %s", ErrInvalidIntent, intent)
	}
	entityID, err := ValidateEntityID(entityID)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.entries[entityID]
	if !ok {
		return State{}, fmt.Errorf("%w: %s %s", ErrUnknownEntity, s.kind, entityID)
	}
	if previous.HasPending() {
		return State{}, fmt.Errorf("%w: %s %s", ErrAlreadyPending, s.kind, entityID)
	}
	s.entries[entityID] = applyIntent(previous, intent)
	return previous, nil
}

// Confirm replaces local counts and viewer vote with server truth and clears the pending marker.
func (s *Store) Confirm(entityID string, tally Tally) (State, error) {
	entityID, err := ValidateEntityID(entityID)
	if err != nil {
		return State{}, err
	}
	if err := tally.validate(); err != nil {
		return State{}, err
	}
	confirmed := StateFromTally(entityID, tally)

	s.mu.Lock()
	s.entries[entityID] = confirmed
	s.mu.Unlock()
	return confirmed, nil
}

// Rollback restores previous verbatim and clears the pending marker.
func (s *Store) Rollback(entityID string, previous State) (State, error) {
	entityID, err := ValidateEntityID(entityID)
	if err != nil {
		return State{}, err
	}
	restored := previous
	restored.EntityID = entityID
	restored.Pending = VoteNone

	s.mu.Lock()
	s.entries[entityID] = restored
	s.mu.Unlock()

	s.logger.Info("optimistic vote rolled back",
		zap.String("kind", s.kind),
		zap.String("entity_id", entityID))
	return restored, nil
}

func clampCount(count int) int {
	if count < 0 {
		return 0
	}
	return count
}
