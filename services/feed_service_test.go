package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"livechat/contract"
	"livechat/domain"
	"livechat/domain/event"
	"livechat/errors"
	"livechat/mocks"
	"livechat/moderation"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func joinedState(id, name string) *domain.LocalSessionState {
	state := &domain.LocalSessionState{}
	state.Claim(domain.NewParticipant(id, name, joinedAt))
	return state
}

func messageNode(key, author, text string, at time.Time) contract.Node {
	return contract.Node{Path: MessagesPath, Key: key, Value: contract.Record{
		"type":      "message",
		"username":  author,
		"text":      text,
		"createdAt": at.UnixMilli(),
	}}
}

func TestFeedService_Send(t *testing.T) {
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	t.Run("should refuse to send before joining", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := NewFeedService(store, &domain.LocalSessionState{}, log)

		req.ErrorIs(svc.Send(ctx, "hello"), errors.ErrNotJoined)
	})

	t.Run("should refuse blank messages", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := NewFeedService(store, joinedState("k1", "Bob"), log)

		req.ErrorIs(svc.Send(ctx, " \n\t "), errors.ErrEmptyText)
	})

	t.Run("should write a trimmed message without appending it locally", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := NewFeedService(store, joinedState("k1", "Bob"), log)

		store.EXPECT().
			Push(gomock.Any(), MessagesPath, gomock.Any()).
			DoAndReturn(func(_ context.Context, path string, value contract.Record) (contract.Node, error) {
				req.Equal("message", value.String("type"))
				req.Equal("Bob", value.String("username"))
				req.Equal("hello", value.String("text"))
				req.NotContains(value, "lang")
				req.True(contract.IsServerTimestamp(value["createdAt"]))
				return contract.Node{Path: path, Key: "m1", Value: value}, nil
			})

		req.NoError(svc.Send(ctx, "  hello "))
		req.Empty(svc.Window())
	})

	t.Run("should censor and tag the language when moderated", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		mod, err := moderation.NewModerator([]string{"badger"}, '*', log)
		req.NoError(err)
		svc := NewFeedService(store, joinedState("k1", "Bob"), log, WithInspector(mod))
		text := "Bonjour à tous, je suis très content de vous retrouver aujourd'hui avec mon badger pour parler de la pluie et du beau temps"

		store.EXPECT().
			Push(gomock.Any(), MessagesPath, gomock.Any()).
			DoAndReturn(func(_ context.Context, path string, value contract.Record) (contract.Node, error) {
				req.NotContains(value.String("text"), "badger")
				req.Equal("fr", value.String("lang"))
				return contract.Node{Path: path, Key: "m1", Value: value}, nil
			})

		req.NoError(svc.Send(ctx, text))
	})

	t.Run("should wrap store failures as connection errors", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := NewFeedService(store, joinedState("k1", "Bob"), log)
		cause := stderrors.New("socket closed")

		store.EXPECT().Push(gomock.Any(), MessagesPath, gomock.Any()).Return(contract.Node{}, cause).Times(1)

		err := svc.Send(ctx, "hello")
		req.ErrorIs(err, errors.ErrConnection)
		req.ErrorIs(err, cause)
	})
}

func TestFeedService_OnChildAdded(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	svc := NewFeedService(mocks.NewMockStore(ctrl), &domain.LocalSessionState{}, logs.GetLoggerFromLevel(slog.LevelDebug))
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	// Given a status, a message and two invalid records
	events := svc.OnChildAdded(contract.Node{Path: MessagesPath, Key: "1", Value: contract.Record{
		"type": "status", "text": "Alice joined the chat", "createdAt": at.UnixMilli(),
	}})
	req.Len(events, 1)
	events = svc.OnChildAdded(messageNode("2", "Alice", "hello", at.Add(time.Second)))
	req.Len(events, 1)
	req.Empty(svc.OnChildAdded(contract.Node{Key: "3", Value: contract.Record{"type": "poll", "text": "?"}}))
	req.Empty(svc.OnChildAdded(contract.Node{Key: "4", Value: contract.Record{"type": "message", "text": ""}}))

	// Then only valid events are in the window, in arrival order
	window := svc.Window()
	req.Len(window, 2)
	req.Equal(domain.StatusEvent{ID: "1", Text: "Alice joined the chat", CreatedAt: at}, window[0])
	req.Equal(domain.MessageEvent{ID: "2", Author: "Alice", Text: "hello", CreatedAt: at.Add(time.Second)}, window[1])
	req.Equal(event.FeedEventReceived{Event: window[1]}, events[0])
}

func TestFeedService_Local_Status_Follows_The_Window(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	serverAt := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	t.Run("should use the local clock when it is ahead", func(t *testing.T) {
		req := require.New(t)
		clientAt := serverAt.Add(time.Minute)
		svc := NewFeedService(nil, &domain.LocalSessionState{}, log, WithFeedClock(func() time.Time { return clientAt }))
		svc.OnChildAdded(messageNode("1", "Alice", "hello", serverAt))

		status := svc.localStatus("Bob left the chat")

		req.Equal(clientAt, status.CreatedAt)
	})

	t.Run("should never sort before the newest stored entry", func(t *testing.T) {
		req := require.New(t)
		// Given a client clock running behind the server
		clientAt := serverAt.Add(-time.Hour)
		svc := NewFeedService(nil, &domain.LocalSessionState{}, log, WithFeedClock(func() time.Time { return clientAt }))
		svc.OnChildAdded(messageNode("1", "Alice", "hello", serverAt))

		// When a departure is appended locally
		svc.AppendLocal(svc.localStatus("Bob left the chat"))

		// Then it is stamped no earlier than the message before it
		window := svc.Window()
		req.Len(window, 2)
		req.Equal(serverAt, window[1].At())
		req.False(window[1].At().Before(window[0].At()))
	})
}

func TestFeedService_Window_Is_Bounded(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	svc := NewFeedService(mocks.NewMockStore(ctrl), &domain.LocalSessionState{}, logs.GetLoggerFromLevel(slog.LevelDebug))
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	for i := range domain.FeedSize + 1 {
		svc.OnChildAdded(messageNode(fmt.Sprintf("%03d", i), "Alice", fmt.Sprintf("m%d", i), at.Add(time.Duration(i)*time.Millisecond)))
	}

	window := svc.Window()
	req.Len(window, domain.FeedSize)
	req.Equal("001", window[0].Key())
	req.Equal("100", window[domain.FeedSize-1].Key())
}

func TestFeedService_Subscribe_Delivers_Changes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	sub := mocks.NewMockSubscription(ctrl)
	svc := NewFeedService(store, &domain.LocalSessionState{}, logs.GetLoggerFromLevel(slog.LevelDebug))

	var handler contract.ChangeHandler
	store.EXPECT().
		Subscribe(gomock.Any(), MessagesPath, contract.Query{}.Last(domain.FeedSize), contract.ChildAdded, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ contract.Query, _ contract.EventKind, h contract.ChangeHandler) (contract.Subscription, error) {
			handler = h
			return sub, nil
		})

	var applies []Apply
	_, err := svc.Subscribe(context.Background(), func(a Apply) { applies = append(applies, a) })
	req.NoError(err)

	// When the store notifies a message then fails
	handler(contract.Change{Kind: contract.ChildAdded, Node: messageNode("1", "Alice", "hi", time.Now())})
	handler(contract.Change{Kind: contract.ChildAdded, Err: errors.ErrSlowConsumer})
	req.Len(applies, 2)

	// Then the message is applied and the failure is a subscription error
	events, err := applies[0]()
	req.NoError(err)
	req.Len(events, 1)
	_, err = applies[1]()
	req.ErrorIs(err, errors.ErrSubscription)
	req.ErrorIs(err, errors.ErrSlowConsumer)
}
