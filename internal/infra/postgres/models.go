package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"popsies-quiz-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID                   string     `bun:"id,pk"`
	QuizID               string     `bun:"quiz_id,notnull"`
	HostID               string     `bun:"host_id,notnull"`
	Code                 string     `bun:"code,notnull"`
	State                string     `bun:"state,notnull"`
	Cancelled            bool       `bun:"cancelled,notnull"`
	MaxParticipants      int        `bun:"max_participants,notnull"`
	CurrentQuestionIndex int        `bun:"current_question_index,notnull"`
	TotalQuestions       int        `bun:"total_questions,notnull"`
	CreatedAt            time.Time  `bun:"created_at,notnull"`
	StartedAt            *time.Time `bun:"started_at"`
	CompletedAt          *time.Time `bun:"completed_at"`
	Version              int64      `bun:"version,notnull"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:session_participants"`

	SessionID      string     `bun:"session_id,pk"`
	ID             string     `bun:"id,pk"`
	Position       int        `bun:"position,notnull"`
	AccountID      string     `bun:"account_id,notnull"`
	DisplayName    string     `bun:"display_name,notnull"`
	TotalScore     int        `bun:"total_score,notnull"`
	CorrectAnswers int        `bun:"correct_answers,notnull"`
	Active         bool       `bun:"active,notnull"`
	JoinedAt       time.Time  `bun:"joined_at,notnull"`
	LeftAt         *time.Time `bun:"left_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:session_answers"`

	ID               string    `bun:"id,pk"`
	SessionID        string    `bun:"session_id,notnull"`
	Position         int       `bun:"position,notnull"`
	ParticipantID    string    `bun:"participant_id,notnull"`
	QuestionID       string    `bun:"question_id,notnull"`
	SelectedOptionID string    `bun:"selected_option_id,notnull"`
	IsCorrect        bool      `bun:"is_correct,notnull"`
	PointsEarned     int       `bun:"points_earned,notnull"`
	TimeTakenSeconds float64   `bun:"time_taken_seconds,notnull"`
	SubmittedAt      time.Time `bun:"submitted_at,notnull"`
}

func toSessionRow(s domain.Session) sessionRow {
	return sessionRow{
		ID:                   s.ID,
		QuizID:               s.QuizID,
		HostID:               s.HostID,
		Code:                 s.Code,
		State:                string(s.State),
		Cancelled:            s.Cancelled,
		MaxParticipants:      s.MaxParticipants,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		TotalQuestions:       s.TotalQuestions,
		CreatedAt:            s.CreatedAt,
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
		Version:              s.Version,
	}
}

func toParticipantRows(s domain.Session) []participantRow {
	rows := make([]participantRow, 0, len(s.Participants))
	for i, p := range s.Participants {
		rows = append(rows, participantRow{
			SessionID:      s.ID,
			ID:             p.ID,
			Position:       i,
			AccountID:      p.AccountID,
			DisplayName:    p.DisplayName,
			TotalScore:     p.TotalScore,
			CorrectAnswers: p.CorrectAnswers,
			Active:         p.Active,
			JoinedAt:       p.JoinedAt,
			LeftAt:         p.LeftAt,
		})
	}
	return rows
}

func toAnswerRows(s domain.Session) []answerRow {
	rows := make([]answerRow, 0, len(s.Answers))
	for i, a := range s.Answers {
		rows = append(rows, answerRow{
			ID:               a.ID,
			SessionID:        s.ID,
			Position:         i,
			ParticipantID:    a.ParticipantID,
			QuestionID:       a.QuestionID,
			SelectedOptionID: a.SelectedOptionID,
			IsCorrect:        a.IsCorrect,
			PointsEarned:     a.PointsEarned,
			TimeTakenSeconds: a.TimeTakenSeconds,
			SubmittedAt:      a.SubmittedAt,
		})
	}
	return rows
}

// toSession rebuilds the aggregate. Timestamps come back from Postgres in UTC
// with microsecond precision.
func toSession(row sessionRow, participants []participantRow, answers []answerRow) domain.Session {
	s := domain.Session{
		ID:                   row.ID,
		QuizID:               row.QuizID,
		HostID:               row.HostID,
		Code:                 row.Code,
		State:                domain.State(row.State),
		Cancelled:            row.Cancelled,
		MaxParticipants:      row.MaxParticipants,
		CurrentQuestionIndex: row.CurrentQuestionIndex,
		TotalQuestions:       row.TotalQuestions,
		CreatedAt:            row.CreatedAt.UTC(),
		StartedAt:            utcPtr(row.StartedAt),
		CompletedAt:          utcPtr(row.CompletedAt),
		Participants:         make([]domain.Participant, 0, len(participants)),
		Answers:              make([]domain.Answer, 0, len(answers)),
		Version:              row.Version,
	}
	for _, p := range participants {
		s.Participants = append(s.Participants, domain.Participant{
			ID:             p.ID,
			SessionID:      p.SessionID,
			AccountID:      p.AccountID,
			DisplayName:    p.DisplayName,
			TotalScore:     p.TotalScore,
			CorrectAnswers: p.CorrectAnswers,
			Active:         p.Active,
			JoinedAt:       p.JoinedAt.UTC(),
			LeftAt:         utcPtr(p.LeftAt),
		})
	}
	for _, a := range answers {
		s.Answers = append(s.Answers, domain.Answer{
			ID:               a.ID,
			SessionID:        a.SessionID,
			ParticipantID:    a.ParticipantID,
			QuestionID:       a.QuestionID,
			SelectedOptionID: a.SelectedOptionID,
			IsCorrect:        a.IsCorrect,
			PointsEarned:     a.PointsEarned,
			TimeTakenSeconds: a.TimeTakenSeconds,
			SubmittedAt:      a.SubmittedAt.UTC(),
		})
	}
	return s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
