package memory

import (
	"context"
	"sync"

	"quest-session-service/internal/app"
	"quest-session-service/internal/domain"
)

// ActiveSessionStore is an in-memory implementation of app.ActiveSessionStore.
type ActiveSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.ActiveSession
}

func NewActiveSessionStore() *ActiveSessionStore {
	return &ActiveSessionStore{
		sessions: make(map[string]*app.ActiveSession),
	}
}

func (s *ActiveSessionStore) Put(session *app.ActiveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
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
}

// SessionWriter keeps session rows in a map. Used in demo mode and tests.
type SessionWriter struct {
	mu   sync.RWMutex
	rows map[string]domain.Session
}

func NewSessionWriter() *SessionWriter {
	return &SessionWriter{rows: make(map[string]domain.Session)}
}

func (w *SessionWriter) CreateSession(_ context.Context, session *domain.Session) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows[session.ID] = *session
	return nil
}

func (w *SessionWriter) UpdateSession(_ context.Context, session *domain.Session) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.rows[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	w.rows[session.ID] = *session
	return nil
}

// Row returns the stored copy of a session row.
func (w *SessionWriter) Row(sessionID string) (domain.Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	row, ok := w.rows[sessionID]
	return row, ok
}
