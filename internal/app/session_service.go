package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"popsies-quiz-service/internal/domain"
)

const (
	defaultSaveRetries     = 5
	defaultMinParticipants = 1
)

// SessionService contains the live quiz session use cases. Every mutation
// loads the session, applies one aggregate operation, saves it and only then
// publishes the events the operation raised.
type SessionService struct {
	sessions  SessionStore
	catalog   Catalog
	publisher Publisher
	codes     *domain.CodeAllocator
	scorer    domain.Scorer
	locks     *sessionLocks
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string

	minParticipants int
	saveRetries     int
	retryInterval   time.Duration
}

// Option customizes a SessionService.
type Option func(*SessionService)

// WithPublisher sets where committed events go.
func WithPublisher(p Publisher) Option {
	return func(s *SessionService) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SessionService) { s.logger = l }
}

// WithClock is mostly for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithIDGenerator replaces uuid generation for entity ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *SessionService) { s.newID = newID }
}

// WithCodeAllocator replaces the default join code allocator.
func WithCodeAllocator(a *domain.CodeAllocator) Option {
	return func(s *SessionService) { s.codes = a }
}

// WithScorer replaces flat scoring.
func WithScorer(scorer domain.Scorer) Option {
	return func(s *SessionService) { s.scorer = scorer }
}

// WithMinParticipants sets how many active participants Start requires.
func WithMinParticipants(n int) Option {
	return func(s *SessionService) { s.minParticipants = n }
}

// WithSaveRetries bounds how often a load-mutate-save cycle is retried after
// losing an optimistic concurrency race.
func WithSaveRetries(n int, interval time.Duration) Option {
	return func(s *SessionService) {
		s.saveRetries = n
		s.retryInterval = interval
	}
}

func NewSessionService(store SessionStore, catalog Catalog, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:        store,
		catalog:         catalog,
		scorer:          domain.FlatScorer{},
		locks:           newSessionLocks(),
		logger:          zap.NewNop(),
		tracer:          otel.Tracer("popsies-quiz-service/internal/app"),
		now:             time.Now,
		newID:           uuid.NewString,
		minParticipants: defaultMinParticipants,
		saveRetries:     defaultSaveRetries,
		retryInterval:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		codes, err := domain.NewCodeAllocator(domain.DefaultCodeLength, domain.DefaultCodeAttempts)
		if err != nil {
			codes = &domain.CodeAllocator{Rand: domain.NewSeededSource(time.Now().UnixNano())}
		}
		s.codes = codes
	}
	return s
}

// CreateSessionRequest configures a new session. The question count comes from the catalog.
type CreateSessionRequest struct {
	QuizID          string `json:"quizId"`
	HostID          string `json:"hostId"`
	MaxParticipants int    `json:"maxParticipants"`
}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Session     domain.Session     `json:"session"`
	Participant domain.Participant `json:"participant"`
}

// SubmitAnswerRequest is one participant's answer to one question.
type SubmitAnswerRequest struct {
	SessionID        string  `json:"sessionId"`
	ParticipantID    string  `json:"participantId"`
	QuestionID       string  `json:"questionId"`
	OptionID         string  `json:"optionId"`
	TimeTakenSeconds float64 `json:"timeTakenSeconds"`
}

// AnswerResult summarizes the outcome of a submission for a single participant.
type AnswerResult struct {
	Answer         domain.Answer `json:"answer"`
	TotalScore     int           `json:"totalScore"`
	CorrectAnswers int           `json:"correctAnswers"`
}

// Outcome is the completion record of a finished session.
type Outcome struct {
	Session     domain.Session     `json:"session"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

// CreateSession allocates a join code and stores a new Waiting session.
func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (domain.Session, error) {
	const op = "create session"
	ctx, span := s.tracer.Start(ctx, "SessionService.CreateSession",
		trace.WithAttributes(attribute.String("quiz.id", req.QuizID)))
	defer span.End()

	total, err := s.catalog.TotalQuestions(ctx, req.QuizID)
	if err != nil {
		return domain.Session{}, s.fail(span, op, "", err)
	}

	attempts := s.codes.Attempts
	if attempts <= 0 {
		attempts = domain.DefaultCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		code, err := s.codes.Allocate(ctx, s.sessions.CodeInUse)
		if err != nil {
			return domain.Session{}, s.fail(span, op, "", err)
		}
		session, events, err := domain.NewSession(domain.CreateInput{
			ID:              s.newID(),
			QuizID:          req.QuizID,
			HostID:          req.HostID,
			Code:            code,
			MaxParticipants: req.MaxParticipants,
			TotalQuestions:  total,
		}, s.now())
		if err != nil {
			return domain.Session{}, s.fail(span, op, "", err)
		}
		if err := ctx.Err(); err != nil {
			return domain.Session{}, s.fail(span, op, session.ID, err)
		}
		err = s.sessions.Save(ctx, &session)
		if errors.Is(err, domain.ErrCodeTaken) {
			s.logger.Info("join code taken on insert, allocating another", zap.String("code", code))
			continue
		}
		if err != nil {
			return domain.Session{}, s.fail(span, op, session.ID, err)
		}
		span.SetAttributes(attribute.String("session.id", session.ID))
		s.publish(ctx, events)
		return session, nil
	}
	return domain.Session{}, s.fail(span, op, "", domain.ErrCodeSpaceExhausted)
}

// JoinSession registers a participant in the Waiting session holding code.
func (s *SessionService) JoinSession(ctx context.Context, code, accountID, displayName string) (JoinResult, error) {
	const op = "join session"
	ctx, span := s.tracer.Start(ctx, "SessionService.JoinSession")
	defer span.End()

	if _, err := domain.ValidateDisplayName(displayName); err != nil {
		return JoinResult{}, s.fail(span, op, "", err)
	}
	current, err := s.sessions.LoadByCode(ctx, NormalizeCode(code))
	if err != nil {
		return JoinResult{}, s.fail(span, op, "", err)
	}

	var joined domain.Participant
	session, err := s.mutate(ctx, span, op, current.ID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		next, events, participant, err := current.AddParticipant(s.newID(), accountID, displayName, s.now())
		joined = participant
		return next, events, err
	})
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Session: session, Participant: joined}, nil
}

// LeaveSession marks a participant inactive.
func (s *SessionService) LeaveSession(ctx context.Context, sessionID, participantID string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.LeaveSession")
	defer span.End()
	return s.mutate(ctx, span, "leave session", sessionID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		return current.RemoveParticipant(participantID, s.now())
	})
}

// StartSession moves a session from Waiting to InProgress.
func (s *SessionService) StartSession(ctx context.Context, sessionID string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.StartSession")
	defer span.End()
	return s.mutate(ctx, span, "start session", sessionID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		return current.Start(s.minParticipants, s.now())
	})
}

// AdvanceQuestion moves the host's question pointer forward.
func (s *SessionService) AdvanceQuestion(ctx context.Context, sessionID string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.AdvanceQuestion")
	defer span.End()
	return s.mutate(ctx, span, "advance question", sessionID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		return current.AdvanceQuestion(s.now())
	})
}

// SubmitAnswer scores an answer against the catalog and records it exactly once.
func (s *SessionService) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (AnswerResult, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.SubmitAnswer",
		trace.WithAttributes(attribute.String("question.id", req.QuestionID)))
	defer span.End()

	var result AnswerResult
	_, err := s.mutate(ctx, span, "submit answer", req.SessionID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		if err := current.CheckSubmission(req.ParticipantID, req.QuestionID, req.TimeTakenSeconds); err != nil {
			return current, nil, err
		}
		key, err := s.catalog.AnswerKey(ctx, current.QuizID, req.QuestionID)
		if err != nil {
			return current, nil, err
		}
		next, events, answer, err := current.SubmitAnswer(domain.SubmitInput{
			AnswerID:         s.newID(),
			ParticipantID:    req.ParticipantID,
			QuestionID:       req.QuestionID,
			SelectedOptionID: req.OptionID,
			TimeTakenSeconds: req.TimeTakenSeconds,
		}, key, s.scorer, s.now())
		if err != nil {
			return current, nil, err
		}
		participant, _ := next.Participant(req.ParticipantID)
		result = AnswerResult{
			Answer:         answer,
			TotalScore:     participant.TotalScore,
			CorrectAnswers: participant.CorrectAnswers,
		}
		return next, events, nil
	})
	if err != nil {
		return AnswerResult{}, err
	}
	return result, nil
}

// CompleteSession ends an InProgress session and returns its final standings.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.CompleteSession")
	defer span.End()
	session, err := s.mutate(ctx, span, "complete session", sessionID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		return current.Complete(s.now())
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Session: session, Leaderboard: session.Leaderboard(s.now())}, nil
}

// CancelSession ends a session that never started.
func (s *SessionService) CancelSession(ctx context.Context, sessionID string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.CancelSession")
	defer span.End()
	return s.mutate(ctx, span, "cancel session", sessionID, func(current domain.Session) (domain.Session, []domain.Event, error) {
		return current.Cancel(s.now())
	})
}

// GetSession returns the latest stored snapshot without taking the session lock.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.Session{}, &domain.OpError{Op: "get session", SessionID: sessionID, Err: err}
	}
	return session, nil
}

// GetSessionByCode resolves a live session from its join code.
func (s *SessionService) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	session, err := s.sessions.LoadByCode(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Session{}, &domain.OpError{Op: "get session by code", Err: err}
	}
	return session, nil
}

// Leaderboard returns the current standings of a session.
func (s *SessionService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(s.now()), nil
}

// CancelIdleSessions cancels Waiting sessions created more than olderThan ago.
// Sessions that were started in the meantime are skipped.
func (s *SessionService) CancelIdleSessions(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.CancelIdleSessions")
	defer span.End()

	idle, err := s.sessions.ListIdleWaiting(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, s.fail(span, "list idle sessions", "", err)
	}
	cancelled := 0
	for _, session := range idle {
		if _, err := s.CancelSession(ctx, session.ID); err != nil {
			if errors.Is(err, domain.ErrWrongState) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	if cancelled > 0 {
		s.logger.Info("cancelled idle sessions", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

type mutation func(current domain.Session) (domain.Session, []domain.Event, error)

// mutate runs load-mutate-save for one session under its lock, retrying the
// whole cycle when another writer saved first.
func (s *SessionService) mutate(ctx context.Context, span trace.Span, op, sessionID string, fn mutation) (domain.Session, error) {
	span.SetAttributes(attribute.String("session.id", sessionID))
	unlock := s.locks.lock(sessionID)
	defer unlock()

	var (
		result domain.Session
		events []domain.Event
	)
	attempt := func() error {
		current, err := s.sessions.Load(ctx, sessionID)
		if err != nil {
			return backoff.Permanent(err)
		}
		next, raised, err := fn(current)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := s.sessions.Save(ctx, &next); err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				s.logger.Debug("session changed during save, retrying",
					zap.String("op", op), zap.String("session_id", sessionID))
				return err
			}
			return backoff.Permanent(err)
		}
		result, events = next, raised
		return nil
	}

	if err := backoff.Retry(attempt, s.retryPolicy(ctx)); err != nil {
		return domain.Session{}, s.fail(span, op, sessionID, err)
	}
	s.publish(ctx, events)
	return result, nil
}

func (s *SessionService) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryInterval
	exp.MaxInterval = 50 * s.retryInterval
	exp.MaxElapsedTime = 0
	retries := s.saveRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// publish delivers committed events. Failures are logged; the state change stands.
func (s *SessionService) publish(ctx context.Context, events []domain.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events); err != nil {
		s.logger.Warn("publish session events failed",
			zap.String("session_id", events[0].SessionID),
			zap.Int("events", len(events)),
			zap.Error(err))
	}
}

func (s *SessionService) fail(span trace.Span, op, sessionID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("session operation aborted by caller",
			zap.String("op", op), zap.String("session_id", sessionID), zap.Error(err))
	case domain.KindOf(err) == domain.KindInfrastructure:
		s.logger.Error("session operation failed",
			zap.String("op", op), zap.String("session_id", sessionID), zap.Error(err))
	}
	return &domain.OpError{Op: op, SessionID: sessionID, Err: err}
}

// NormalizeCode upper-cases and trims a user-typed join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
