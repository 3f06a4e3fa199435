package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quest-session-service/internal/app"
)

// ActiveSessionStore is a Redis-aware implementation of app.ActiveSessionStore.
// Notes:
//   - Active session state stays in-process; grading never round-trips Redis.
//   - Redis keys only mark session liveness with a TTL, which gives operators
//     visibility into running quests and lets a future sweep reap stale ones.
type ActiveSessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.ActiveSession
}

func NewActiveSessionStore(client *redis.Client, ttl time.Duration) *ActiveSessionStore {
	return &ActiveSessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.ActiveSession),
	}
}

func (s *ActiveSessionStore) Put(session *app.ActiveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), "1", s.ttl).Err()
}

func (s *ActiveSessionStore) Get(sessionID string) (*app.ActiveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *ActiveSessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

func (s *ActiveSessionStore) key(sessionID string) string {
	return "quest:session:" + sessionID
}
