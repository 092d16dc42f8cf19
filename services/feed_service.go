package services

import (
	"context"
	"fmt"
	"livechat/contract"
	"livechat/domain"
	"livechat/domain/event"
	"livechat/errors"
	"livechat/moderation"
	"livechat/projection"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Inspector rewrites an outgoing text before it is written.
type Inspector interface {
	Inspect(text string) moderation.Verdict
}

// FeedService keeps the window of the most recent feed events and writes messages.
// Its projection must only be touched from the session loop.
type FeedService struct {
	store     contract.Store
	state     *domain.LocalSessionState
	timeline  *projection.Timeline
	inspector Inspector
	now       func() time.Time
	log       *slog.Logger
}

type FeedOption func(*FeedService)

func WithInspector(inspector Inspector) FeedOption {
	return func(s *FeedService) { s.inspector = inspector }
}

func WithFeedClock(now func() time.Time) FeedOption {
	return func(s *FeedService) { s.now = now }
}

func NewFeedService(store contract.Store, state *domain.LocalSessionState, log *slog.Logger, opts ...FeedOption) *FeedService {
	s := &FeedService{
		store:    store,
		state:    state,
		timeline: projection.NewTimeline(domain.FeedSize),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe streams the last FeedSize events then every new one.
func (s *FeedService) Subscribe(ctx context.Context, deliver Deliver) (contract.Subscription, error) {
	sub, err := s.store.Subscribe(ctx, MessagesPath, contract.Query{}.Last(domain.FeedSize), contract.ChildAdded,
		func(c contract.Change) {
			deliver(func() ([]event.DomainEvent, error) { return s.handle(c) })
		})
	if err != nil {
		return nil, fmt.Errorf("%w: feed: %w", errors.ErrSubscription, err)
	}
	return sub, nil
}

func (s *FeedService) handle(c contract.Change) ([]event.DomainEvent, error) {
	if c.Err != nil {
		return nil, fmt.Errorf("%w: feed: %w", errors.ErrSubscription, c.Err)
	}
	return s.OnChildAdded(c.Node), nil
}

// OnChildAdded appends a stored event to the window.
func (s *FeedService) OnChildAdded(node contract.Node) []event.DomainEvent {
	e, ok := toChatEvent(node)
	if !ok {
		s.log.Debug("Ignored feed record", "key", node.Key)
		return nil
	}
	s.timeline.Append(e)
	return []event.DomainEvent{event.FeedEventReceived{Event: e}}
}

// AppendLocal appends an event that only exists on this client.
// It is never written, so other sessions do not see it.
func (s *FeedService) AppendLocal(e domain.ChatEvent) event.DomainEvent {
	s.timeline.Append(e)
	return event.FeedEventReceived{Event: e}
}

// Send writes a message authored by the claimed identity. Nothing is appended
// locally, the message shows up when the store notifies it back.
func (s *FeedService) Send(ctx context.Context, text string) error {
	if !s.state.Joined || s.state.Identity == nil {
		return errors.ErrNotJoined
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyText
	}

	var lang string
	if s.inspector != nil {
		verdict := s.inspector.Inspect(text)
		if len(verdict.Censored) > 0 {
			s.log.Info("Outgoing message censored", "author", s.state.Identity.DisplayName, "words", len(verdict.Censored))
		}
		text, lang = verdict.Text, verdict.Lang
	}

	if _, err := s.store.Push(ctx, MessagesPath, messageRecord(s.state.Identity.DisplayName, text, lang)); err != nil {
		return connectionError("send message", err)
	}
	return nil
}

func (s *FeedService) Window() []domain.ChatEvent {
	return s.timeline.Snapshot()
}

// localStatus is stamped with the local clock, never earlier than the newest
// entry of the window, since stored entries carry server timestamps.
func (s *FeedService) localStatus(text string) domain.StatusEvent {
	at := s.now().UTC()
	if newest, ok := s.timeline.Newest(); ok && newest.At().After(at) {
		at = newest.At()
	}
	return domain.StatusEvent{
		ID:        "local-" + uuid.NewString(),
		Text:      text,
		CreatedAt: at,
	}
}
