package sink_test

import (
	"context"
	"livechat/domain"
	"livechat/domain/event"
	"livechat/errors"
	"livechat/sink"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallbacks_Dispatch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given callbacks recording every notification
	var (
		feed    []domain.ChatEvent
		roster  []domain.Participant
		joined  []string
		left    []string
		states  []domain.SessionState
		message string
		fatal   error
	)
	callbacks := sink.Callbacks{
		OnFeedEvent:         func(e domain.ChatEvent) { feed = append(feed, e) },
		OnRosterChanged:     func(ps []domain.Participant) { roster = ps },
		OnParticipantJoined: func(name string) { joined = append(joined, name) },
		OnParticipantLeft:   func(name string) { left = append(left, name) },
		OnStateChanged:      func(_, next domain.SessionState) { states = append(states, next) },
		OnFatalError: func(msg string, err error) {
			message = msg
			fatal = err
		},
	}
	status := domain.StatusEvent{ID: "k1", Text: domain.JoinedText("Alice"), CreatedAt: time.Now()}
	alice := domain.NewParticipant("k1", "Alice", time.Now())

	// When each kind of notification is consumed
	for _, e := range []event.DomainEvent{
		event.FeedEventReceived{Event: status},
		event.RosterChanged{Participants: []domain.Participant{alice}},
		event.ParticipantJoined{Name: "Bob"},
		event.ParticipantLeft{Name: "Carol"},
		event.StateChanged{Old: domain.StateAwaitingIdentity, New: domain.StateActive},
		event.FatalError{Message: "lost", Err: errors.ErrSubscription},
	} {
		req.NoError(callbacks.Consume(ctx, e))
	}

	// Then every callback received its payload
	req.Equal([]domain.ChatEvent{status}, feed)
	req.Equal([]domain.Participant{alice}, roster)
	req.Equal([]string{"Bob"}, joined)
	req.Equal([]string{"Carol"}, left)
	req.Equal([]domain.SessionState{domain.StateActive}, states)
	req.Equal("lost", message)
	req.ErrorIs(fatal, errors.ErrSubscription)
}

func TestCallbacks_Nil_Funcs_Are_Skipped(t *testing.T) {
	req := require.New(t)

	// Given callbacks with only the feed handler set
	var count int
	callbacks := sink.Callbacks{OnFeedEvent: func(domain.ChatEvent) { count++ }}

	// When other notifications are consumed
	req.NoError(callbacks.Consume(context.Background(), event.ParticipantJoined{Name: "Bob"}))
	req.NoError(callbacks.Consume(context.Background(), event.FatalError{Message: "lost"}))

	// Then nothing panics and the feed handler is untouched
	req.Zero(count)
}
