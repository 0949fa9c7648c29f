package app

import (
	"context"
	"time"

	"popsies-quiz-service/internal/domain"
)

// SessionStore abstracts how quiz sessions are stored (in-memory, Redis, Postgres).
//
// Save inserts when session.Version is 0 and otherwise compares the stored
// version before writing. On success it bumps session.Version. Implementations
// must reject a second live session with the same code (domain.ErrCodeTaken)
// and report lost races as domain.ErrConcurrencyConflict.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (domain.Session, error)
	LoadByCode(ctx context.Context, code string) (domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	CodeInUse(ctx context.Context, code string) (bool, error)
	ListIdleWaiting(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Session, error)
}

// Catalog is the source of truth for quiz answer keys.
type Catalog interface {
	AnswerKey(ctx context.Context, quizID, questionID string) (domain.AnswerKey, error)
	TotalQuestions(ctx context.Context, quizID string) (int, error)
}

// Publisher receives domain events after they have been committed.
type Publisher interface {
	Publish(ctx context.Context, events []domain.Event) error
}
