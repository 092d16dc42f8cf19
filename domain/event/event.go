package event

import (
	"livechat/domain"
)

type Type string

const (
	FeedType              Type = "feed"
	RosterType            Type = "roster"
	ParticipantJoinedType Type = "participant_joined"
	ParticipantLeftType   Type = "participant_left"
	StateType             Type = "state"
	FatalType             Type = "fatal"
)

// DomainEvent is a notification emitted by the session towards its sinks.
type DomainEvent interface {
	Type() Type
}

// FeedEventReceived carries one entry appended to the feed window.
type FeedEventReceived struct {
	Event domain.ChatEvent
}

func (FeedEventReceived) Type() Type { return FeedType }

// RosterChanged carries the complete sorted roster, consumers replace their view.
type RosterChanged struct {
	Participants []domain.Participant
}

func (RosterChanged) Type() Type { return RosterType }

// ParticipantJoined is ephemeral, consumers clear it after a display duration.
type ParticipantJoined struct {
	Name string
}

func (ParticipantJoined) Type() Type { return ParticipantJoinedType }

// ParticipantLeft is ephemeral, consumers clear it after a display duration.
type ParticipantLeft struct {
	Name string
}

func (ParticipantLeft) Type() Type { return ParticipantLeftType }

type StateChanged struct {
	Old domain.SessionState
	New domain.SessionState
}

func (StateChanged) Type() Type { return StateType }

// FatalError means interaction must be disabled for the rest of the session.
type FatalError struct {
	Message string
	Err     error
}

func (FatalError) Type() Type { return FatalType }
