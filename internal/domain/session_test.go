package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"popsies-quiz-service/internal/domain"
)

var t0 = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func newWaitingSession(t *testing.T, maxParticipants, totalQuestions int) domain.Session {
	t.Helper()
	s, events, err := domain.NewSession(domain.CreateInput{
		ID:              "s1",
		QuizID:          "quiz-1",
		HostID:          "host",
		Code:            "ABC234",
		MaxParticipants: maxParticipants,
		TotalQuestions:  totalQuestions,
	}, t0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventSessionCreated, events[0].Type)
	return s
}

func join(t *testing.T, s domain.Session, id, name string) domain.Session {
	t.Helper()
	next, _, _, err := s.AddParticipant(id, "acct-"+id, name, t0.Add(time.Second))
	require.NoError(t, err)
	return next
}

func TestNewSessionValidatesConfiguration(t *testing.T) {
	cases := map[string]domain.CreateInput{
		"too few participants": {ID: "s", QuizID: "q", HostID: "h", Code: "C", MaxParticipants: 1, TotalQuestions: 1},
		"no questions":         {ID: "s", QuizID: "q", HostID: "h", Code: "C", MaxParticipants: 2, TotalQuestions: 0},
		"blank quiz":           {ID: "s", QuizID: " ", HostID: "h", Code: "C", MaxParticipants: 2, TotalQuestions: 1},
		"blank host":           {ID: "s", QuizID: "q", HostID: "", Code: "C", MaxParticipants: 2, TotalQuestions: 1},
		"no code":              {ID: "s", QuizID: "q", HostID: "h", MaxParticipants: 2, TotalQuestions: 1},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := domain.NewSession(in, t0)
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			require.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestSessionScenario(t *testing.T) {
	s := newWaitingSession(t, 2, 3)
	s = join(t, s, "a", "Alice")
	s = join(t, s, "b", "Bob")

	_, _, _, err := s.AddParticipant("c", "acct-c", "Carol", t0)
	require.ErrorIs(t, err, domain.ErrRosterFull)

	s, events, err := s.Start(1, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.StateInProgress, s.State)
	require.NotNil(t, s.StartedAt)
	require.Equal(t, 2, events[0].ParticipantCount)

	key := domain.AnswerKey{QuestionID: "q1", CorrectOptionID: "X", PointValue: 100}
	in := domain.SubmitInput{AnswerID: "ans-1", ParticipantID: "a", QuestionID: "q1", SelectedOptionID: "X", TimeTakenSeconds: 3}
	s, events, answer, err := s.SubmitAnswer(in, key, domain.FlatScorer{}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, answer.IsCorrect)
	require.Equal(t, 100, answer.PointsEarned)
	require.Equal(t, domain.EventAnswerSubmitted, events[0].Type)

	alice, ok := s.Participant("a")
	require.True(t, ok)
	require.Equal(t, 100, alice.TotalScore)
	require.Equal(t, 1, alice.CorrectAnswers)

	in.AnswerID = "ans-2"
	_, _, _, err = s.SubmitAnswer(in, key, domain.FlatScorer{}, t0.Add(3*time.Minute))
	require.ErrorIs(t, err, domain.ErrDuplicateAnswer)
	alice, _ = s.Participant("a")
	require.Equal(t, 100, alice.TotalScore)

	s, events, err = s.Complete(t0.Add(4 * time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, s.State)
	require.Equal(t, domain.EventSessionCompleted, events[0].Type)
	require.Equal(t, 2, events[0].ParticipantCount)

	in = domain.SubmitInput{AnswerID: "ans-3", ParticipantID: "b", QuestionID: "q2", SelectedOptionID: "X"}
	_, _, _, err = s.SubmitAnswer(in, key, domain.FlatScorer{}, t0.Add(5*time.Minute))
	require.ErrorIs(t, err, domain.ErrWrongState)
}

func TestStateNeverRegresses(t *testing.T) {
	s := join(t, newWaitingSession(t, 4, 2), "a", "Alice")

	s, _, err := s.Start(1, t0)
	require.NoError(t, err)
	_, _, err = s.Start(1, t0)
	require.ErrorIs(t, err, domain.ErrAlreadyStarted)
	_, _, err = s.Cancel(t0)
	require.ErrorIs(t, err, domain.ErrWrongState)

	s, _, err = s.Complete(t0)
	require.NoError(t, err)
	for name, op := range map[string]func(domain.Session) error{
		"start":    func(s domain.Session) error { _, _, err := s.Start(1, t0); return err },
		"complete": func(s domain.Session) error { _, _, err := s.Complete(t0); return err },
		"cancel":   func(s domain.Session) error { _, _, err := s.Cancel(t0); return err },
		"advance":  func(s domain.Session) error { _, _, err := s.AdvanceQuestion(t0); return err },
		"leave":    func(s domain.Session) error { _, _, err := s.RemoveParticipant("a", t0); return err },
	} {
		require.ErrorIs(t, op(s), domain.ErrWrongState, name)
		require.Equal(t, domain.StateCompleted, s.State, name)
	}
}

func TestStartRequiresActiveParticipants(t *testing.T) {
	s := newWaitingSession(t, 3, 1)
	_, _, err := s.Start(0, t0)
	require.ErrorIs(t, err, domain.ErrInsufficientParticipants)

	s = join(t, s, "a", "Alice")
	_, _, err = s.Start(2, t0)
	require.ErrorIs(t, err, domain.ErrInsufficientParticipants)

	s, _, err = s.RemoveParticipant("a", t0)
	require.NoError(t, err)
	_, _, err = s.Start(1, t0)
	require.ErrorIs(t, err, domain.ErrInsufficientParticipants)
}

func TestAdvanceQuestionStopsAtLastQuestion(t *testing.T) {
	s := join(t, newWaitingSession(t, 2, 3), "a", "Alice")
	_, _, err := s.AdvanceQuestion(t0)
	require.ErrorIs(t, err, domain.ErrWrongState)

	s, _, err = s.Start(1, t0)
	require.NoError(t, err)
	for want := 1; want <= 2; want++ {
		var events []domain.Event
		s, events, err = s.AdvanceQuestion(t0)
		require.NoError(t, err)
		require.Equal(t, want, s.CurrentQuestionIndex)
		require.Equal(t, want, events[0].QuestionIndex)
	}
	_, _, err = s.AdvanceQuestion(t0)
	require.ErrorIs(t, err, domain.ErrQuestionsExhausted)
	require.Equal(t, domain.StateInProgress, s.State)
}

func TestCancelWaitingSession(t *testing.T) {
	s := newWaitingSession(t, 2, 1)
	s, events, err := s.Cancel(t0)
	require.NoError(t, err)
	require.True(t, s.Cancelled)
	require.False(t, s.IsLive())
	require.Equal(t, domain.EventSessionCancelled, events[0].Type)
}

func TestFailedOperationDoesNotMutateReceiver(t *testing.T) {
	s := join(t, newWaitingSession(t, 2, 1), "a", "Alice")
	before := s.Clone()

	next, _, _, err := s.AddParticipant("b", "acct-b", "Bob", t0)
	require.NoError(t, err)
	require.Len(t, next.Participants, 2)
	require.Equal(t, before, s)

	next, _, err = s.RemoveParticipant("a", t0)
	require.NoError(t, err)
	require.False(t, next.Participants[0].Active)
	require.True(t, s.Participants[0].Active)
}

func TestLeaderboardRanksByScore(t *testing.T) {
	s := newWaitingSession(t, 4, 2)
	for _, name := range []string{"a", "b", "c"} {
		s = join(t, s, name, fmt.Sprintf("Player %s", name))
	}
	s, _, err := s.Start(1, t0)
	require.NoError(t, err)

	key := domain.AnswerKey{QuestionID: "q1", CorrectOptionID: "o2", PointValue: 10}
	for i, pick := range map[string]string{"a": "o1", "b": "o2", "c": "o2"} {
		s, _, _, err = s.SubmitAnswer(domain.SubmitInput{
			AnswerID: "ans-" + i, ParticipantID: i, QuestionID: "q1", SelectedOptionID: pick,
		}, key, nil, t0)
		require.NoError(t, err)
	}

	lb := s.Leaderboard(t0)
	require.Len(t, lb.Entries, 3)
	require.Equal(t, "b", lb.Entries[0].ParticipantID)
	require.Equal(t, 1, lb.Entries[0].Rank)
	require.Equal(t, "c", lb.Entries[1].ParticipantID)
	require.Equal(t, 1, lb.Entries[1].Rank)
	require.Equal(t, "a", lb.Entries[2].ParticipantID)
	require.Equal(t, 3, lb.Entries[2].Rank)
}
