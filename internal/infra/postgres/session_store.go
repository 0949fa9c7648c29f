package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"popsies-quiz-service/internal/domain"
)

// Constraint names from the session migrations.
const (
	liveCodeIndex     = "quiz_sessions_live_code_idx"
	sessionPKey       = "quiz_sessions_pkey"
	answerOnceIndex   = "session_answers_once_idx"
	uniqueViolation   = "23505"
	liveStateCriteria = "state <> 'completed'"
)

// SessionStore is the durable session store. Each Save runs in one transaction
// guarded by the version column; the database constraints back up the
// aggregate's own code and answer uniqueness rules.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.load(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", sessionID)
	})
}

func (s *SessionStore) LoadByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.load(ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("code = ?", code).Where(liveStateCriteria)
	})
}

func (s *SessionStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*sessionRow)(nil)).
		Where("code = ?", code).
		Where(liveStateCriteria).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check join code: %w", err)
	}
	return exists, nil
}

func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	next := session.Version + 1
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := toSessionRow(*session)
		row.Version = next

		if session.Version == 0 {
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return err
			}
		} else {
			res, err := tx.NewUpdate().
				Model(&row).
				ExcludeColumn("id", "quiz_id", "host_id", "code", "created_at").
				Where("id = ?", session.ID).
				Where("version = ?", session.Version).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return s.missingOrStale(ctx, tx, session.ID)
			}
		}

		if participants := toParticipantRows(*session); len(participants) > 0 {
			_, err := tx.NewInsert().
				Model(&participants).
				On("CONFLICT (session_id, id) DO UPDATE").
				Set("position = EXCLUDED.position").
				Set("display_name = EXCLUDED.display_name").
				Set("total_score = EXCLUDED.total_score").
				Set("correct_answers = EXCLUDED.correct_answers").
				Set("active = EXCLUDED.active").
				Set("left_at = EXCLUDED.left_at").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		// answers are append-only
		if answers := toAnswerRows(*session); len(answers) > 0 {
			_, err := tx.NewInsert().
				Model(&answers).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}
	session.Version = next
	return nil
}

func (s *SessionStore) ListIdleWaiting(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Session, error) {
	var ids []string
	q := s.db.NewSelect().
		Model((*sessionRow)(nil)).
		Column("id").
		Where("state = ?", string(domain.StateWaiting)).
		Where("created_at < ?", createdBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("list waiting sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *SessionStore) load(ctx context.Context, db bun.IDB, where func(*bun.SelectQuery) *bun.SelectQuery) (domain.Session, error) {
	var row sessionRow
	if err := where(db.NewSelect().Model(&row)).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	var participants []participantRow
	if err := db.NewSelect().
		Model(&participants).
		Where("session_id = ?", row.ID).
		Order("position ASC").
		Scan(ctx); err != nil {
		return domain.Session{}, fmt.Errorf("load participants: %w", err)
	}

	var answers []answerRow
	if err := db.NewSelect().
		Model(&answers).
		Where("session_id = ?", row.ID).
		Order("position ASC").
		Scan(ctx); err != nil {
		return domain.Session{}, fmt.Errorf("load answers: %w", err)
	}
	return toSession(row, participants, answers), nil
}

func (s *SessionStore) missingOrStale(ctx context.Context, tx bun.Tx, sessionID string) error {
	exists, err := tx.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return domain.ErrConcurrencyConflict
}

// translate maps unique violations to domain errors and wraps the rest.
func translate(err error) error {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		switch pgErr.Field('n') {
		case liveCodeIndex:
			return domain.ErrCodeTaken
		case answerOnceIndex:
			return domain.ErrDuplicateAnswer
		case sessionPKey:
			return domain.ErrConcurrencyConflict
		}
	}
	return fmt.Errorf("save session: %w", err)
}
