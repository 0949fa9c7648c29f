package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"popsies-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
// It keeps deep copies so callers never share state with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	codes    map[string]string // live code -> session id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) LoadByCode(ctx context.Context, code string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id].Clone(), nil
}

func (s *SessionStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[session.ID]
	switch {
	case session.Version == 0 && exists:
		return domain.ErrConcurrencyConflict
	case session.Version != 0 && !exists:
		return domain.ErrSessionNotFound
	case exists && stored.Version != session.Version:
		return domain.ErrConcurrencyConflict
	}
	if owner, ok := s.codes[session.Code]; ok && owner != session.ID && session.IsLive() {
		return domain.ErrCodeTaken
	}

	session.Version++
	s.sessions[session.ID] = session.Clone()
	if session.IsLive() {
		s.codes[session.Code] = session.ID
	} else if s.codes[session.Code] == session.ID {
		delete(s.codes, session.Code)
	}
	return nil
}

func (s *SessionStore) ListIdleWaiting(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []domain.Session
	for _, session := range s.sessions {
		if session.State == domain.StateWaiting && session.CreatedAt.Before(createdBefore) {
			idle = append(idle, session.Clone())
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].CreatedAt.Before(idle[j].CreatedAt) })
	if limit > 0 && len(idle) > limit {
		idle = idle[:limit]
	}
	return idle, nil
}
