// Package sink turns session notifications into callbacks or terminal output.
package sink

import (
	"context"
	"livechat/domain"
	"livechat/domain/event"
)

// Callbacks dispatches each notification to the matching func. Nil funcs are skipped.
// The funcs run on the fan-out worker, never on the session loop.
type Callbacks struct {
	OnFeedEvent         func(domain.ChatEvent)
	OnRosterChanged     func([]domain.Participant)
	OnParticipantJoined func(name string)
	OnParticipantLeft   func(name string)
	OnStateChanged      func(from, to domain.SessionState)
	OnFatalError        func(message string, err error)
}

func (c Callbacks) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.FeedEventReceived:
		if c.OnFeedEvent != nil {
			c.OnFeedEvent(evt.Event)
		}
	case event.RosterChanged:
		if c.OnRosterChanged != nil {
			c.OnRosterChanged(evt.Participants)
		}
	case event.ParticipantJoined:
		if c.OnParticipantJoined != nil {
			c.OnParticipantJoined(evt.Name)
		}
	case event.ParticipantLeft:
		if c.OnParticipantLeft != nil {
			c.OnParticipantLeft(evt.Name)
		}
	case event.StateChanged:
		if c.OnStateChanged != nil {
			c.OnStateChanged(evt.Old, evt.New)
		}
	case event.FatalError:
		if c.OnFatalError != nil {
			c.OnFatalError(evt.Message, evt.Err)
		}
	}
	return nil
}
