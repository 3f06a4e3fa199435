package memory

import (
	"context"
	"sync"

	"quest-session-service/internal/domain"
)

// StaticQuestionSource serves questions from an in-memory pool keyed by topic.
// Useful for tests and demo mode.
type StaticQuestionSource struct {
	mu   sync.RWMutex
	pool map[string][]domain.Question
}

func NewStaticQuestionSource(pool map[string][]domain.Question) *StaticQuestionSource {
	if pool == nil {
		pool = make(map[string][]domain.Question)
	}
	return &StaticQuestionSource{pool: pool}
}

// Add appends questions to a topic's pool.
func (s *StaticQuestionSource) Add(topicID string, questions ...domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool[topicID] = append(s.pool[topicID], questions...)
}

func (s *StaticQuestionSource) NextCandidate(_ context.Context, topicID string, level int, exclude []string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	for _, q := range s.pool[topicID] {
		if q.DifficultyLevel != level || excluded[q.ID] {
			continue
		}
		return q, nil
	}
	return domain.Question{}, domain.ErrNoQuestionAvailable
}
