package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind groups failures by how a caller is expected to react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed input rejected before any mutation.
	KindValidation
	// KindNotFound marks a missing session, quiz or question.
	KindNotFound
	// KindConflict marks a rejection the caller may retry with different input.
	KindConflict
	// KindState marks an operation issued against a stale view of the session.
	KindState
	// KindInfrastructure marks persistence or catalog failures.
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error is a typed domain failure with a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

var (
	ErrInvalidConfiguration = newError(KindValidation, "INVALID_CONFIGURATION", "invalid session configuration")
	ErrInvalidDisplayName   = newError(KindValidation, "INVALID_DISPLAY_NAME", "display name must be 1-50 characters")
	ErrInvalidTimeTaken     = newError(KindValidation, "INVALID_TIME_TAKEN", "time taken must not be negative")
	ErrInvalidInput         = newError(KindValidation, "INVALID_INPUT", "invalid input")

	// ErrSessionNotFound is returned when no session matches the id or live code.
	ErrSessionNotFound = newError(KindNotFound, "SESSION_NOT_FOUND", "quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "QUIZ_NOT_FOUND", "quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = newError(KindNotFound, "QUESTION_NOT_FOUND", "question not found")

	ErrRosterFull          = newError(KindConflict, "ROSTER_FULL", "session roster is full")
	ErrAlreadyJoined       = newError(KindConflict, "ALREADY_JOINED", "account already joined this session")
	ErrDuplicateAnswer     = newError(KindConflict, "DUPLICATE_ANSWER", "question already answered by participant")
	ErrCodeSpaceExhausted  = newError(KindConflict, "CODE_SPACE_EXHAUSTED", "could not allocate a free join code")
	ErrCodeTaken           = newError(KindConflict, "CODE_TAKEN", "join code already used by a live session")
	ErrConcurrencyConflict = newError(KindConflict, "CONCURRENCY_CONFLICT", "session was modified concurrently")

	ErrSessionNotJoinable       = newError(KindState, "SESSION_NOT_JOINABLE", "session is not accepting participants")
	ErrWrongState               = newError(KindState, "WRONG_STATE", "operation not allowed in current session state")
	ErrAlreadyStarted           = newError(KindState, "ALREADY_STARTED", "session already started")
	ErrInsufficientParticipants = newError(KindState, "INSUFFICIENT_PARTICIPANTS", "not enough active participants to start")
	ErrQuestionsExhausted       = newError(KindState, "QUESTIONS_EXHAUSTED", "no questions left to advance to")
	// ErrParticipantNotFound is returned when a participant id is not part of the roster.
	ErrParticipantNotFound = newError(KindState, "PARTICIPANT_NOT_FOUND", "participant not found in session")
	ErrAlreadyLeft         = newError(KindState, "ALREADY_LEFT", "participant already left the session")
	ErrParticipantInactive = newError(KindState, "PARTICIPANT_INACTIVE", "participant is not active")
)

// OpError attaches the failing operation and session to an underlying error.
type OpError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *OpError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (session %s): %v", e.Op, e.SessionID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that carry no domain kind are infrastructure faults.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the machine-readable code for err, or "INTERNAL".
// A caller's deadline or cancellation is reported as TIMEOUT or CANCELLED.
func CodeOf(err error) string {
	var de *Error
	switch {
	case errors.As(err, &de):
		return de.Code
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	default:
		return "INTERNAL"
	}
}

// Codes for operations aborted by the caller's context.
const (
	CodeTimeout   = "TIMEOUT"
	CodeCancelled = "CANCELLED"
)

func invalid(base *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
