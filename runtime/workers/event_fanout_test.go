package workers

import (
	"context"
	stderrors "errors"
	"livechat/domain/event"
	"livechat/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Delivers_In_Order_To_Every_Sink(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	first := mocks.NewMockEventSink(ctrl)
	second := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, 10, time.Second, first, second)

	var received []event.DomainEvent
	// Given a failing first sink, the second one still receives everything
	first.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(stderrors.New("closed window")).Times(2)
	second.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, evt event.DomainEvent) error {
			received = append(received, evt)
			return nil
		}).Times(2)

	// When two events are published then the fanout is closed
	ctx := context.Background()
	fanout.Publish(ctx, event.ParticipantJoined{Name: "Alice"})
	fanout.Publish(ctx, event.ParticipantLeft{Name: "Alice"})
	fanout.Close()
	fanout.Publish(ctx, event.ParticipantJoined{Name: "Late"})

	// Then Run drains the queue and returns
	req.NoError(fanout.Run(ctx))
	req.Equal([]event.DomainEvent{
		event.ParticipantJoined{Name: "Alice"},
		event.ParticipantLeft{Name: "Alice"},
	}, received)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	slow := mocks.NewMockEventSink(ctrl)

	sinkTimeout := 20 * time.Millisecond
	fanout := NewEventFanout(log, 1, sinkTimeout, slow)

	// Given a sink honouring its context
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	start := time.Now()
	fanout.Fanout(context.Background(), event.ParticipantJoined{Name: "Bob"})

	// Then the fanout is not stuck on it
	req.Less(time.Since(start), time.Second)
}
