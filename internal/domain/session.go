package domain

import (
	"sort"
	"strings"
	"time"
)

// State is the lifecycle state of a session. It only ever moves forward.
type State string

const (
	StateWaiting    State = "waiting"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// IsValid reports whether the state is one of the known lifecycle states.
func (s State) IsValid() bool {
	switch s {
	case StateWaiting, StateInProgress, StateCompleted:
		return true
	default:
		return false
	}
}

// Session is the aggregate root of one live quiz competition. It owns its
// participants and answers; they are only reachable through its operations.
//
// Mutating operations use value receivers and return an updated copy together
// with the events they raised, so a rejected operation leaves the caller's
// session untouched.
type Session struct {
	ID                   string        `json:"id"`
	QuizID               string        `json:"quizId"`
	HostID               string        `json:"hostId"`
	Code                 string        `json:"code"`
	State                State         `json:"state"`
	Cancelled            bool          `json:"cancelled"`
	MaxParticipants      int           `json:"maxParticipants"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	TotalQuestions       int           `json:"totalQuestions"`
	CreatedAt            time.Time     `json:"createdAt"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	Participants         []Participant `json:"participants"`
	Answers              []Answer      `json:"answers"`
	// Version is the optimistic concurrency token; 0 means never persisted.
	Version int64 `json:"version"`
}

// CreateInput describes a new session.
type CreateInput struct {
	ID              string
	QuizID          string
	HostID          string
	Code            string
	MaxParticipants int
	TotalQuestions  int
}

// NewSession validates input and returns a session in the Waiting state.
func NewSession(in CreateInput, now time.Time) (Session, []Event, error) {
	in.QuizID = strings.TrimSpace(in.QuizID)
	in.HostID = strings.TrimSpace(in.HostID)
	switch {
	case strings.TrimSpace(in.ID) == "":
		return Session{}, nil, invalid(ErrInvalidConfiguration, "session id is required")
	case in.QuizID == "":
		return Session{}, nil, invalid(ErrInvalidConfiguration, "quiz id is required")
	case in.HostID == "":
		return Session{}, nil, invalid(ErrInvalidConfiguration, "host id is required")
	case in.Code == "":
		return Session{}, nil, invalid(ErrInvalidConfiguration, "join code is required")
	case in.MaxParticipants < 2:
		return Session{}, nil, invalid(ErrInvalidConfiguration, "max participants must be at least 2, got %d", in.MaxParticipants)
	case in.TotalQuestions < 1:
		return Session{}, nil, invalid(ErrInvalidConfiguration, "total questions must be at least 1, got %d", in.TotalQuestions)
	}

	createdAt := now.UTC()
	s := Session{
		ID:              in.ID,
		QuizID:          in.QuizID,
		HostID:          in.HostID,
		Code:            in.Code,
		State:           StateWaiting,
		MaxParticipants: in.MaxParticipants,
		TotalQuestions:  in.TotalQuestions,
		CreatedAt:       createdAt,
		Participants:    []Participant{},
		Answers:         []Answer{},
	}
	return s, []Event{{Type: EventSessionCreated, SessionID: s.ID, OccurredAt: createdAt}}, nil
}

// Start moves a Waiting session to InProgress.
func (s Session) Start(minParticipants int, now time.Time) (Session, []Event, error) {
	switch s.State {
	case StateInProgress:
		return s, nil, ErrAlreadyStarted
	case StateCompleted:
		return s, nil, ErrWrongState
	}
	if minParticipants < 1 {
		minParticipants = 1
	}
	if s.ActiveCount() < minParticipants {
		return s, nil, ErrInsufficientParticipants
	}

	next := s.clone()
	startedAt := now.UTC()
	next.State = StateInProgress
	next.StartedAt = &startedAt
	next.CurrentQuestionIndex = 0
	return next, []Event{{
		Type:             EventSessionStarted,
		SessionID:        s.ID,
		ParticipantCount: next.ActiveCount(),
		OccurredAt:       startedAt,
	}}, nil
}

// AdvanceQuestion moves the question pointer forward. Reaching the last
// question does not complete the session; Complete is always explicit.
func (s Session) AdvanceQuestion(now time.Time) (Session, []Event, error) {
	if s.State != StateInProgress {
		return s, nil, ErrWrongState
	}
	if s.CurrentQuestionIndex+1 >= s.TotalQuestions {
		return s, nil, ErrQuestionsExhausted
	}

	next := s.clone()
	next.CurrentQuestionIndex++
	return next, []Event{{
		Type:          EventQuestionAdvanced,
		SessionID:     s.ID,
		QuestionIndex: next.CurrentQuestionIndex,
		OccurredAt:    now.UTC(),
	}}, nil
}

// Complete finishes an InProgress session. Scores are already final.
func (s Session) Complete(now time.Time) (Session, []Event, error) {
	if s.State != StateInProgress {
		return s, nil, ErrWrongState
	}

	next := s.clone()
	completedAt := now.UTC()
	next.State = StateCompleted
	next.CompletedAt = &completedAt
	return next, []Event{{
		Type:             EventSessionCompleted,
		SessionID:        s.ID,
		ParticipantCount: next.ActiveCount(),
		OccurredAt:       completedAt,
	}}, nil
}

// Cancel ends a session that never started.
func (s Session) Cancel(now time.Time) (Session, []Event, error) {
	if s.State != StateWaiting {
		return s, nil, ErrWrongState
	}

	next := s.clone()
	completedAt := now.UTC()
	next.State = StateCompleted
	next.Cancelled = true
	next.CompletedAt = &completedAt
	return next, []Event{{
		Type:             EventSessionCancelled,
		SessionID:        s.ID,
		ParticipantCount: next.ActiveCount(),
		OccurredAt:       completedAt,
	}}, nil
}

// IsLive reports whether the session still holds its join code.
func (s Session) IsLive() bool {
	return s.State != StateCompleted
}

// ActiveCount returns the number of participants that have not left.
func (s Session) ActiveCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Active {
			n++
		}
	}
	return n
}

// Participant returns a copy of the participant with the given id.
func (s Session) Participant(id string) (Participant, bool) {
	if i := s.participantIndex(id); i >= 0 {
		return s.Participants[i], true
	}
	return Participant{}, false
}

// Leaderboard ranks participants by score, then correct answers, then join time.
// Equal score and correct count share a rank.
func (s Session) Leaderboard(now time.Time) Leaderboard {
	ordered := make([]Participant, len(s.Participants))
	copy(ordered, s.Participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.DisplayName < b.DisplayName
	})

	entries := make([]LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		rank := i + 1
		if i > 0 {
			prev := entries[i-1]
			if prev.Score == p.TotalScore && prev.CorrectAnswers == p.CorrectAnswers {
				rank = prev.Rank
			}
		}
		entries = append(entries, LeaderboardEntry{
			Rank:           rank,
			ParticipantID:  p.ID,
			AccountID:      p.AccountID,
			DisplayName:    p.DisplayName,
			Score:          p.TotalScore,
			CorrectAnswers: p.CorrectAnswers,
			Active:         p.Active,
		})
	}

	return Leaderboard{
		SessionID: s.ID,
		State:     s.State,
		Entries:   entries,
		UpdatedAt: now.UTC(),
	}
}

func (s Session) participantIndex(id string) int {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Session) Clone() Session {
	return s.clone()
}

func (s Session) clone() Session {
	next := s
	next.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		if p.LeftAt != nil {
			leftAt := *p.LeftAt
			p.LeftAt = &leftAt
		}
		next.Participants[i] = p
	}
	next.Answers = make([]Answer, len(s.Answers))
	copy(next.Answers, s.Answers)
	if s.StartedAt != nil {
		startedAt := *s.StartedAt
		next.StartedAt = &startedAt
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		next.CompletedAt = &completedAt
	}
	return next
}
