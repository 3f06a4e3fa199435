package app

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quest-session-service/internal/domain"
)

// TopicCatalog lists topics at or below a grade, ordered by grade then
// intra-grade order index.
type TopicCatalog interface {
	TopicsUpToGrade(ctx context.Context, grade string) ([]domain.Topic, error)
}

// CompletionStore reads a learner's topic completion records.
type CompletionStore interface {
	CompletionsForUser(ctx context.Context, userID string) ([]domain.TopicCompletion, error)
}

// PathStore persists generated paths keyed by user. SavePath is an idempotent
// upsert returning the new monotonically increasing version.
type PathStore interface {
	SavePath(ctx context.Context, userID string, nodes []domain.PathNode) (int, error)
}

// PathResult is the outcome of one path generation.
type PathResult struct {
	Nodes     []domain.PathNode `json:"nodes"`
	FromCache bool              `json:"fromCache"`
}

// DefaultPathTTL is how long a generated path stays cached per user.
const DefaultPathTTL = 5 * time.Minute

const (
	pathRetryAttempts = 3
	pathRetryDelay    = time.Second
	pathAttemptLimit  = 10 * time.Second
)

// PathResolver builds a learner's topic unlock graph from prerequisite data
// and completion records, with a short-lived per-user cache.
type PathResolver struct {
	catalog     TopicCatalog
	completions CompletionStore
	store       PathStore
	ttl         time.Duration
	clock       func() time.Time
	sf          singleflight.Group
	rnd         *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPath
}

type cachedPath struct {
	nodes     []domain.PathNode
	expiresAt time.Time
}

func NewPathResolver(catalog TopicCatalog, completions CompletionStore, store PathStore, ttl time.Duration) *PathResolver {
	if ttl <= 0 {
		ttl = DefaultPathTTL
	}
	return &PathResolver{
		catalog:     catalog,
		completions: completions,
		store:       store,
		ttl:         ttl,
		clock:       time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:       make(map[string]cachedPath),
	}
}

// Generate resolves the unlock state of every topic at or below userGrade.
// Structural violations of the unlock invariant come back as a
// *domain.ValidationError so callers can tell "bad data" from "no path".
func (r *PathResolver) Generate(ctx context.Context, userID, userGrade string) (PathResult, error) {
	gradeIdx := domain.GradeIndex(userGrade)
	if gradeIdx < 0 {
		return PathResult{}, &domain.ValidationError{Subject: "learning path", Reason: "unknown grade " + userGrade}
	}

	now := r.clock()
	r.mu.RLock()
	if entry, ok := r.cache[userID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return PathResult{Nodes: clonePath(entry.nodes), FromCache: true}, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(userID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[userID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return clonePath(entry.nodes), nil
		}
		r.mu.RUnlock()

		nodes, err := r.build(ctx, userID, userGrade, gradeIdx)
		if err != nil {
			return nil, err
		}

		version, err := r.persist(ctx, userID, nodes)
		if err != nil {
			// Degraded durability: the generated path is still valid for
			// this process, so serve it and let the next generation retry.
			log.Printf("path resolver: persist for %s failed: %v", userID, err)
		} else {
			for i := range nodes {
				nodes[i].Version = version
			}
		}

		r.mu.Lock()
		r.cache[userID] = cachedPath{nodes: nodes, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return nodes, nil
	})
	if err != nil {
		return PathResult{}, err
	}
	return PathResult{Nodes: clonePath(result.([]domain.PathNode))}, nil
}

// clonePath shields the cached slice from caller mutation.
func clonePath(nodes []domain.PathNode) []domain.PathNode {
	out := make([]domain.PathNode, len(nodes))
	copy(out, nodes)
	return out
}

// Invalidate drops the cached path for a user, forcing the next Generate to
// rebuild (e.g., after a quest completion changes unlock state).
func (r *PathResolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

func (r *PathResolver) build(ctx context.Context, userID, userGrade string, gradeIdx int) ([]domain.PathNode, error) {
	var topics []domain.Topic
	err := withRetry(ctx, pathRetryAttempts, pathRetryDelay, pathAttemptLimit, func(ctx context.Context) error {
		var err error
		topics, err = r.catalog.TopicsUpToGrade(ctx, userGrade)
		return err
	})
	if err != nil {
		return nil, err
	}

	var records []domain.TopicCompletion
	err = withRetry(ctx, pathRetryAttempts, pathRetryDelay, pathAttemptLimit, func(ctx context.Context) error {
		var err error
		records, err = r.completions.CompletionsForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.ContentCompleted && rec.QuestCompleted {
			completed[rec.TopicID] = true
		}
	}

	children := make(map[string][]string)
	for _, t := range topics {
		for _, prereq := range t.Prerequisites {
			children[prereq] = append(children[prereq], t.ID)
		}
	}

	now := r.clock()
	nodes := make([]domain.PathNode, 0, len(topics))
	byTopic := make(map[string]int, len(topics))
	for _, t := range topics {
		node := domain.PathNode{
			ID:            userID + ":" + t.ID,
			TopicID:       t.ID,
			Title:         t.Title,
			Grade:         t.Grade,
			Status:        domain.NodeLocked,
			Prerequisites: t.Prerequisites,
			Children:      children[t.ID],
		}
		switch {
		case completed[t.ID]:
			node.Status = domain.NodeCompleted
		case len(t.Prerequisites) == 0:
			node.Status = domain.NodeAvailable
			node.Metadata.AvailableAt = &now
		}
		byTopic[t.ID] = len(nodes)
		nodes = append(nodes, node)
	}

	// Fixed-point promotion: keep sweeping until no locked node changes, so
	// multi-level prerequisite chains settle within one generation.
	for changed := true; changed; {
		changed = false
		for i := range nodes {
			if nodes[i].Status != domain.NodeLocked {
				continue
			}
			if domain.GradeIndex(nodes[i].Grade) > gradeIdx {
				continue
			}
			if !prerequisitesMet(nodes[i].Prerequisites, nodes, byTopic) {
				continue
			}
			nodes[i].Status = domain.NodeAvailable
			nodes[i].Metadata.AvailableAt = &now
			changed = true
		}
	}

	if err := validatePath(nodes, byTopic, gradeIdx); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *PathResolver) persist(ctx context.Context, userID string, nodes []domain.PathNode) (int, error) {
	var version int
	err := withRetry(ctx, pathRetryAttempts, pathRetryDelay, pathAttemptLimit, func(ctx context.Context) error {
		var err error
		version, err = r.store.SavePath(ctx, userID, nodes)
		return err
	})
	return version, err
}

func prerequisitesMet(prereqs []string, nodes []domain.PathNode, byTopic map[string]int) bool {
	for _, p := range prereqs {
		idx, ok := byTopic[p]
		if !ok || nodes[idx].Status != domain.NodeCompleted {
			return false
		}
	}
	return true
}

// validatePath enforces the unlock invariant: a reachable node requires every
// prerequisite completed and a grade within the learner's reach.
func validatePath(nodes []domain.PathNode, byTopic map[string]int, gradeIdx int) error {
	for _, node := range nodes {
		if node.Status != domain.NodeAvailable && node.Status != domain.NodeCompleted {
			continue
		}
		if node.Status == domain.NodeAvailable && domain.GradeIndex(node.Grade) > gradeIdx {
			return &domain.ValidationError{Subject: "path node " + node.TopicID, Reason: "grade above learner grade"}
		}
		for _, p := range node.Prerequisites {
			idx, ok := byTopic[p]
			if !ok {
				return &domain.ValidationError{Subject: "path node " + node.TopicID, Reason: "unknown prerequisite " + p}
			}
			if node.Status == domain.NodeAvailable && nodes[idx].Status != domain.NodeCompleted {
				return &domain.ValidationError{Subject: "path node " + node.TopicID, Reason: "available with incomplete prerequisite " + p}
			}
		}
	}
	return nil
}

func (r *PathResolver) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
