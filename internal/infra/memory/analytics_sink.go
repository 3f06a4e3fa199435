package memory

import (
	"context"
	"sync"

	"quest-session-service/internal/domain"
)

// AnalyticsSink collects delivered events in memory. Used in demo mode and as
// a test double for the delivery queue.
type AnalyticsSink struct {
	mu        sync.Mutex
	delivered []domain.AnalyticsEvent
}

func NewAnalyticsSink() *AnalyticsSink {
	return &AnalyticsSink{}
}

func (s *AnalyticsSink) Deliver(_ context.Context, event domain.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, event)
	return nil
}

// Delivered returns a snapshot of everything delivered so far.
func (s *AnalyticsSink) Delivered() []domain.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AnalyticsEvent, len(s.delivered))
	copy(out, s.delivered)
	return out
}
