package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/seekreap/engagement-hub/internal/domain/engagement"
)

// Store is an in-memory engagement store. Records are stored canonically by
// id with a per-session index; every read returns a clone so callers never
// hold a reference into the canonical map.
type Store struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*engagement.Engagement
	bySession map[string][]uuid.UUID
}

func NewStore() *Store {
	return &Store{
		byID:      make(map[uuid.UUID]*engagement.Engagement),
		bySession: make(map[string][]uuid.UUID),
	}
}

func (s *Store) Insert(ctx context.Context, e *engagement.Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[e.ID]; exists {
		return fmt.Errorf("engagement already exists: %s", e.ID)
	}
	s.byID[e.ID] = e.Clone()
	s.bySession[e.SessionID] = append(s.bySession[e.SessionID], e.ID)
	return nil
}

func (s *Store) Update(ctx context.Context, e *engagement.Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[e.ID]; !exists {
		return fmt.Errorf("engagement not found: %s", e.ID)
	}
	s.byID[e.ID] = e.Clone()
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*engagement.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

// FindActiveBySession returns the session's non-terminal engagement, if any.
// Expiry is the service's concern; a stale record is still returned here.
func (s *Store) FindActiveBySession(ctx context.Context, sessionID string) (*engagement.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.bySession[sessionID] {
		e := s.byID[id]
		if e != nil && engagement.IsActiveState(e.CurrentState) {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*engagement.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]*engagement.Engagement, 0, len(ids))
	for _, id := range ids {
		if e := s.byID[id]; e != nil {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *Store) All(ctx context.Context) ([]*engagement.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*engagement.Engagement, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e.Clone())
	}
	return out, nil
}
