package domain

import (
	"math"
	"strings"
	"time"
)

// SubmitInput is one answer submission for the ledger.
type SubmitInput struct {
	AnswerID         string
	ParticipantID    string
	QuestionID       string
	SelectedOptionID string
	TimeTakenSeconds float64
}

// CheckSubmission reports whether a submission would be accepted, without
// consulting the catalog. SubmitAnswer repeats these checks.
func (s Session) CheckSubmission(participantID, questionID string, timeTaken float64) error {
	if s.State != StateInProgress {
		return ErrWrongState
	}
	if strings.TrimSpace(questionID) == "" {
		return invalid(ErrInvalidInput, "question id is required")
	}
	if timeTaken < 0 || math.IsNaN(timeTaken) || math.IsInf(timeTaken, 0) {
		return ErrInvalidTimeTaken
	}
	i := s.participantIndex(participantID)
	if i < 0 {
		return ErrParticipantNotFound
	}
	if !s.Participants[i].Active {
		return ErrParticipantInactive
	}
	if s.hasAnswer(participantID, questionID) {
		return ErrDuplicateAnswer
	}
	return nil
}

// SubmitAnswer scores a submission against key and appends it to the ledger.
func (s Session) SubmitAnswer(in SubmitInput, key AnswerKey, scorer Scorer, now time.Time) (Session, []Event, Answer, error) {
	if err := s.CheckSubmission(in.ParticipantID, in.QuestionID, in.TimeTakenSeconds); err != nil {
		return s, nil, Answer{}, err
	}
	if strings.TrimSpace(in.AnswerID) == "" {
		return s, nil, Answer{}, invalid(ErrInvalidInput, "answer id is required")
	}
	if key.QuestionID != "" && key.QuestionID != in.QuestionID {
		return s, nil, Answer{}, invalid(ErrInvalidInput, "answer key is for question %s", key.QuestionID)
	}
	if scorer == nil {
		scorer = FlatScorer{}
	}

	correct := in.SelectedOptionID != "" && in.SelectedOptionID == key.CorrectOptionID
	points := scorer.Score(key, correct, in.TimeTakenSeconds)
	if points < 0 {
		points = 0
	}

	submittedAt := now.UTC()
	answer := Answer{
		ID:               in.AnswerID,
		SessionID:        s.ID,
		ParticipantID:    in.ParticipantID,
		QuestionID:       in.QuestionID,
		SelectedOptionID: in.SelectedOptionID,
		IsCorrect:        correct,
		PointsEarned:     points,
		TimeTakenSeconds: in.TimeTakenSeconds,
		SubmittedAt:      submittedAt,
	}

	next := s.clone()
	next.Answers = append(next.Answers, answer)
	next.Participants[next.participantIndex(in.ParticipantID)].addScore(points, correct)
	return next, []Event{{
		Type:          EventAnswerSubmitted,
		SessionID:     s.ID,
		ParticipantID: in.ParticipantID,
		QuestionID:    in.QuestionID,
		AnswerID:      answer.ID,
		Correct:       correct,
		Points:        points,
		OccurredAt:    submittedAt,
	}}, answer, nil
}

func (s Session) hasAnswer(participantID, questionID string) bool {
	for _, a := range s.Answers {
		if a.ParticipantID == participantID && a.QuestionID == questionID {
			return true
		}
	}
	return false
}
