package memory

import (
	"context"
	"sort"
	"sync"

	"quest-session-service/internal/domain"
)

// StaticCatalog serves the topic catalog from memory, ordered by grade then
// intra-grade order index.
type StaticCatalog struct {
	topics []domain.Topic
}

func NewStaticCatalog(topics []domain.Topic) *StaticCatalog {
	sorted := make([]domain.Topic, len(topics))
	copy(sorted, topics)
	sort.SliceStable(sorted, func(i, j int) bool {
		gi, gj := domain.GradeIndex(sorted[i].Grade), domain.GradeIndex(sorted[j].Grade)
		if gi != gj {
			return gi < gj
		}
		return sorted[i].OrderIndex < sorted[j].OrderIndex
	})
	return &StaticCatalog{topics: sorted}
}

func (c *StaticCatalog) TopicsUpToGrade(_ context.Context, grade string) ([]domain.Topic, error) {
	limit := domain.GradeIndex(grade)
	out := make([]domain.Topic, 0, len(c.topics))
	for _, t := range c.topics {
		if idx := domain.GradeIndex(t.Grade); idx >= 0 && idx <= limit {
			out = append(out, t)
		}
	}
	return out, nil
}

// CompletionStore keeps topic completion records in memory.
type CompletionStore struct {
	mu      sync.RWMutex
	records map[string][]domain.TopicCompletion
}

func NewCompletionStore() *CompletionStore {
	return &CompletionStore{records: make(map[string][]domain.TopicCompletion)}
}

// SetCompletion records or replaces one user's completion of a topic.
func (s *CompletionStore) SetCompletion(record domain.TopicCompletion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[record.UserID]
	for i := range records {
		if records[i].TopicID == record.TopicID {
			records[i] = record
			return
		}
	}
	s.records[record.UserID] = append(records, record)
}

func (s *CompletionStore) CompletionsForUser(_ context.Context, userID string) ([]domain.TopicCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[userID]
	out := make([]domain.TopicCompletion, len(records))
	copy(out, records)
	return out, nil
}

// PathStore keeps generated paths in memory, versioned per user.
type PathStore struct {
	mu       sync.Mutex
	paths    map[string][]domain.PathNode
	versions map[string]int
}

func NewPathStore() *PathStore {
	return &PathStore{
		paths:    make(map[string][]domain.PathNode),
		versions: make(map[string]int),
	}
}

func (s *PathStore) SavePath(_ context.Context, userID string, nodes []domain.PathNode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[userID]++
	stored := make([]domain.PathNode, len(nodes))
	copy(stored, nodes)
	s.paths[userID] = stored
	return s.versions[userID], nil
}

// Path returns the stored path for a user.
func (s *PathStore) Path(userID string) ([]domain.PathNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, ok := s.paths[userID]
	return nodes, ok
}
