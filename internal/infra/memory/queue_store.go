package memory

import (
	"context"
	"sync"

	"quest-session-service/internal/domain"
)

// QueueStore holds the pending analytics queue in memory. Pending events do
// not survive a restart with this store; production wiring uses the redis one.
type QueueStore struct {
	mu    sync.Mutex
	items []domain.AnalyticsEvent
}

func NewQueueStore() *QueueStore {
	return &QueueStore{}
}

func (s *QueueStore) Load(_ context.Context) ([]domain.AnalyticsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AnalyticsEvent, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *QueueStore) Save(_ context.Context, items []domain.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]domain.AnalyticsEvent, len(items))
	copy(s.items, items)
	return nil
}
