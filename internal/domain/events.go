package domain

import "time"

// EventType identifies a session domain event.
type EventType string

const (
	EventSessionCreated    EventType = "session.created"
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventSessionStarted    EventType = "session.started"
	EventQuestionAdvanced  EventType = "question.advanced"
	EventAnswerSubmitted   EventType = "answer.submitted"
	EventSessionCompleted  EventType = "session.completed"
	EventSessionCancelled  EventType = "session.cancelled"
)

// Event is emitted by a successful aggregate mutation and published after commit.
// Only the fields relevant to Type are populated.
type Event struct {
	Type             EventType `json:"type"`
	SessionID        string    `json:"sessionId"`
	ParticipantID    string    `json:"participantId,omitempty"`
	QuestionID       string    `json:"questionId,omitempty"`
	AnswerID         string    `json:"answerId,omitempty"`
	Correct          bool      `json:"correct,omitempty"`
	Points           int       `json:"points,omitempty"`
	QuestionIndex    int       `json:"questionIndex,omitempty"`
	ParticipantCount int       `json:"participantCount,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}
