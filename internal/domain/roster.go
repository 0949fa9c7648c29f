package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDisplayNameLength bounds participant display names, counted in runes.
const MaxDisplayNameLength = 50

// ValidateDisplayName trims name and checks it is 1-50 characters.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid(ErrInvalidDisplayName, "display name is blank")
	}
	if n := utf8.RuneCountInString(name); n > MaxDisplayNameLength {
		return "", invalid(ErrInvalidDisplayName, "display name has %d characters", n)
	}
	return name, nil
}

// AddParticipant appends a new active participant while the session is Waiting.
func (s Session) AddParticipant(id, accountID, displayName string, now time.Time) (Session, []Event, Participant, error) {
	if s.State != StateWaiting {
		return s, nil, Participant{}, ErrSessionNotJoinable
	}
	name, err := ValidateDisplayName(displayName)
	if err != nil {
		return s, nil, Participant{}, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" || strings.TrimSpace(id) == "" {
		return s, nil, Participant{}, invalid(ErrInvalidInput, "participant and account ids are required")
	}
	for _, p := range s.Participants {
		if p.Active && p.AccountID == accountID {
			return s, nil, Participant{}, ErrAlreadyJoined
		}
	}
	if s.ActiveCount() >= s.MaxParticipants {
		return s, nil, Participant{}, ErrRosterFull
	}

	joinedAt := now.UTC()
	participant := Participant{
		ID:          id,
		SessionID:   s.ID,
		AccountID:   accountID,
		DisplayName: name,
		Active:      true,
		JoinedAt:    joinedAt,
	}
	next := s.clone()
	next.Participants = append(next.Participants, participant)
	return next, []Event{{
		Type:             EventParticipantJoined,
		SessionID:        s.ID,
		ParticipantID:    id,
		ParticipantCount: next.ActiveCount(),
		OccurredAt:       joinedAt,
	}}, participant, nil
}

// RemoveParticipant marks a participant inactive. Their answers and score are kept.
func (s Session) RemoveParticipant(participantID string, now time.Time) (Session, []Event, error) {
	if s.State == StateCompleted {
		return s, nil, ErrWrongState
	}
	i := s.participantIndex(participantID)
	if i < 0 {
		return s, nil, ErrParticipantNotFound
	}
	if !s.Participants[i].Active {
		return s, nil, ErrAlreadyLeft
	}

	leftAt := now.UTC()
	next := s.clone()
	next.Participants[i].Active = false
	next.Participants[i].LeftAt = &leftAt
	return next, []Event{{
		Type:             EventParticipantLeft,
		SessionID:        s.ID,
		ParticipantID:    participantID,
		ParticipantCount: next.ActiveCount(),
		OccurredAt:       leftAt,
	}}, nil
}
