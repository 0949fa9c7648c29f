package domain

import "time"

// Participant is a single player's membership and score record within one session.
type Participant struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"sessionId"`
	AccountID      string     `json:"accountId"`
	DisplayName    string     `json:"displayName"`
	TotalScore     int        `json:"totalScore"`
	CorrectAnswers int        `json:"correctAnswers"`
	Active         bool       `json:"active"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LeftAt         *time.Time `json:"leftAt,omitempty"`
}

// addScore only ever grows the counters; inactive participants are rejected by the caller.
func (p *Participant) addScore(points int, correct bool) {
	if points > 0 {
		p.TotalScore += points
	}
	if correct {
		p.CorrectAnswers++
	}
}

// Answer is one scored submission. At most one exists per (session, participant, question).
type Answer struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	ParticipantID    string    `json:"participantId"`
	QuestionID       string    `json:"questionId"`
	SelectedOptionID string    `json:"selectedOptionId"`
	IsCorrect        bool      `json:"isCorrect"`
	PointsEarned     int       `json:"pointsEarned"`
	TimeTakenSeconds float64   `json:"timeTakenSeconds"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ParticipantID  string `json:"participantId"`
	AccountID      string `json:"accountId"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	Active         bool   `json:"active"`
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	State     State              `json:"state"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
	Points  int      `json:"points"` // defaults to 1 if zero
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// AnswerKey is what the catalog exposes for scoring a single question.
type AnswerKey struct {
	QuestionID      string
	CorrectOptionID string
	PointValue      int
}

// AnswerKey looks up the scoring data for questionID.
func (q Quiz) AnswerKey(questionID string) (AnswerKey, error) {
	for _, question := range q.Questions {
		if question.ID != questionID {
			continue
		}
		return AnswerKey{
			QuestionID:      question.ID,
			CorrectOptionID: question.CorrectOptionID(),
			PointValue:      NormalizePoints(question.Points),
		}, nil
	}
	return AnswerKey{}, ErrQuestionNotFound
}

// CorrectOptionID returns the first option flagged correct, falling back to the first option.
func (q Question) CorrectOptionID() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	if len(q.Options) > 0 {
		return q.Options[0].ID
	}
	return ""
}

// NormalizePoints maps a missing point value to 1.
func NormalizePoints(points int) int {
	if points <= 0 {
		return 1
	}
	return points
}
