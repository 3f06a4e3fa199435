package memory

import (
	"context"
	"sync"

	"quest-session-service/internal/domain"
)

// DifficultyStore keeps per-(user, topic) difficulty state in a map.
type DifficultyStore struct {
	mu     sync.RWMutex
	states map[string]domain.DifficultyState
}

func NewDifficultyStore() *DifficultyStore {
	return &DifficultyStore{states: make(map[string]domain.DifficultyState)}
}

func (s *DifficultyStore) Get(_ context.Context, userID, topicID string) (domain.DifficultyState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID+"/"+topicID]
	return state, ok, nil
}

func (s *DifficultyStore) Upsert(_ context.Context, state domain.DifficultyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID+"/"+state.TopicID] = state
	return nil
}
