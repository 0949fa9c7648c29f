package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"popsies-quiz-service/internal/domain"
)

func newSession(t *testing.T, id, code string, createdAt time.Time) domain.Session {
	t.Helper()
	s, _, err := domain.NewSession(domain.CreateInput{
		ID: id, QuizID: "quiz-1", HostID: "host", Code: code, MaxParticipants: 4, TotalQuestions: 2,
	}, createdAt)
	require.NoError(t, err)
	return s
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

	session := newSession(t, "s1", "ABCDEF", now)
	require.NoError(t, store.Save(ctx, &session))
	require.EqualValues(t, 1, session.Version)

	session, _, _, err := session.AddParticipant("p1", "acct-1", "Alice", now)
	require.NoError(t, err)
	session, _, err = session.Start(1, now)
	require.NoError(t, err)
	session, _, _, err = session.SubmitAnswer(domain.SubmitInput{
		AnswerID: "a1", ParticipantID: "p1", QuestionID: "q1", SelectedOptionID: "o2", TimeTakenSeconds: 2.5,
	}, domain.AnswerKey{QuestionID: "q1", CorrectOptionID: "o2", PointValue: 10}, nil, now)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &session))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, session, loaded)

	byCode, err := store.LoadByCode(ctx, "ABCDEF")
	require.NoError(t, err)
	require.Equal(t, session, byCode)
}

func TestSessionStoreRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	session := newSession(t, "s1", "ABCDEF", time.Now())
	require.NoError(t, store.Save(ctx, &session))

	first, _ := store.Load(ctx, "s1")
	second, _ := store.Load(ctx, "s1")
	require.NoError(t, store.Save(ctx, &first))
	require.ErrorIs(t, store.Save(ctx, &second), domain.ErrConcurrencyConflict)

	dup := newSession(t, "s1", "ZZZZZZ", time.Now())
	require.ErrorIs(t, store.Save(ctx, &dup), domain.ErrConcurrencyConflict)
}

func TestSessionStoreCodeUniquenessScopedToLiveSessions(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	now := time.Now()

	first := newSession(t, "s1", "ABCDEF", now)
	require.NoError(t, store.Save(ctx, &first))
	inUse, err := store.CodeInUse(ctx, "ABCDEF")
	require.NoError(t, err)
	require.True(t, inUse)

	second := newSession(t, "s2", "ABCDEF", now)
	require.ErrorIs(t, store.Save(ctx, &second), domain.ErrCodeTaken)

	first, _, err = first.Cancel(now)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &first))
	inUse, _ = store.CodeInUse(ctx, "ABCDEF")
	require.False(t, inUse)
	_, err = store.LoadByCode(ctx, "ABCDEF")
	require.True(t, errors.Is(err, domain.ErrSessionNotFound))

	require.NoError(t, store.Save(ctx, &second), "completed sessions release their code")
}

func TestSessionStoreListIdleWaiting(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	base := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

	old := newSession(t, "old", "AAAAAA", base)
	older := newSession(t, "older", "BBBBBB", base.Add(-time.Hour))
	fresh := newSession(t, "fresh", "CCCCCC", base.Add(time.Hour))
	for _, s := range []*domain.Session{&old, &older, &fresh} {
		require.NoError(t, store.Save(ctx, s))
	}

	idle, err := store.ListIdleWaiting(ctx, base.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, idle, 2)
	require.Equal(t, "older", idle[0].ID)

	idle, err = store.ListIdleWaiting(ctx, base.Add(time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, idle, 1)
}
