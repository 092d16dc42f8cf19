package services

import (
	"context"
	"fmt"
	"livechat/contract"
	"livechat/domain"
	"livechat/domain/event"
	"livechat/errors"
	"livechat/projection"
	"log/slog"

	"github.com/samber/lo"
)

// PresenceService mirrors the roster and reports arrivals and departures.
// Its projection must only be touched from the session loop.
type PresenceService struct {
	store  contract.Store
	state  *domain.LocalSessionState
	feed   *FeedService
	roster *projection.Roster
	log    *slog.Logger
}

func NewPresenceService(store contract.Store, state *domain.LocalSessionState, feed *FeedService,
	roster *projection.Roster, log *slog.Logger) *PresenceService {
	return &PresenceService{store: store, state: state, feed: feed, roster: roster, log: log}
}

// Subscribe opens the value, child_added and child_removed subscriptions on the roster.
// If one of them fails the ones already opened are closed.
func (s *PresenceService) Subscribe(ctx context.Context, deliver Deliver) ([]contract.Subscription, error) {
	var subs []contract.Subscription
	for _, kind := range []contract.EventKind{contract.ValueChanged, contract.ChildAdded, contract.ChildRemoved} {
		sub, err := s.store.Subscribe(ctx, PresencePath, contract.Query{}, kind, func(c contract.Change) {
			deliver(func() ([]event.DomainEvent, error) { return s.handle(c) })
		})
		if err != nil {
			for _, opened := range subs {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("%w: presence %s: %w", errors.ErrSubscription, kind, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *PresenceService) handle(c contract.Change) ([]event.DomainEvent, error) {
	if c.Err != nil {
		return nil, fmt.Errorf("%w: presence %s: %w", errors.ErrSubscription, c.Kind, c.Err)
	}
	switch c.Kind {
	case contract.ValueChanged:
		return s.OnValue(c.Snapshot), nil
	case contract.ChildAdded:
		return s.OnChildAdded(c.Node), nil
	case contract.ChildRemoved:
		return s.OnChildRemoved(c.Node), nil
	}
	return nil, nil
}

// OnValue replaces the whole roster.
func (s *PresenceService) OnValue(snapshot contract.Snapshot) []event.DomainEvent {
	participants := lo.FilterMap(snapshot.Children, func(node contract.Node, _ int) (domain.Participant, bool) {
		return toParticipant(node)
	})
	return []event.DomainEvent{event.RosterChanged{Participants: s.roster.Replace(participants)}}
}

// OnChildAdded announces someone else joining after the local user did.
// The initial replay can still be queued when the claim is applied, so
// participants whose record predates the local one are not announced.
func (s *PresenceService) OnChildAdded(node contract.Node) []event.DomainEvent {
	p, ok := toParticipant(node)
	if !ok || !s.state.Joined || s.state.IsSelf(node.Key) {
		return nil
	}
	if !s.state.JoinedBefore(p) {
		return nil
	}
	return []event.DomainEvent{event.ParticipantJoined{Name: p.DisplayName}}
}

// OnChildRemoved always records the departure in the feed, the notice
// is only shown once the local user has joined.
func (s *PresenceService) OnChildRemoved(node contract.Node) []event.DomainEvent {
	p, ok := toParticipant(node)
	if !ok {
		return nil
	}
	events := []event.DomainEvent{s.feed.AppendLocal(s.feed.localStatus(domain.LeftText(p.DisplayName)))}
	if s.state.Joined {
		events = append(events, event.ParticipantLeft{Name: p.DisplayName})
	}
	return events
}

func (s *PresenceService) Roster() []domain.Participant {
	return s.roster.Snapshot()
}
