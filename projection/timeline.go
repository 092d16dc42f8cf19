// Package projection builds local views from observed events.
// Handles ordering and bounding of the feed and sorting of the roster.
// Does not emit events or interact with UI directly.
package projection

import (
	"context"
	"livechat/domain"
	"livechat/domain/event"
	"slices"
)

// Timeline holds the most recent feed events, oldest first.
// It only ever drops events from the front.
type Timeline struct {
	capacity int
	Events   []domain.ChatEvent
}

func NewTimeline(capacity int) *Timeline {
	if capacity <= 0 {
		capacity = domain.FeedSize
	}
	return &Timeline{
		capacity: capacity,
		Events:   make([]domain.ChatEvent, 0, capacity),
	}
}

// Append adds an event at the end and evicts the oldest ones beyond capacity.
func (t *Timeline) Append(e domain.ChatEvent) {
	t.Events = append(t.Events, e)
	if overflow := len(t.Events) - t.capacity; overflow > 0 {
		t.Events = slices.Delete(t.Events, 0, overflow)
	}
}

// Consume lets a Timeline be used as a sink of the session notifications.
func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.FeedEventReceived:
		t.Append(evt.Event)
	}
	return nil
}

// Snapshot returns a copy safe to hand over to another goroutine.
func (t *Timeline) Snapshot() []domain.ChatEvent {
	return slices.Clone(t.Events)
}

// Newest returns the last appended event.
func (t *Timeline) Newest() (domain.ChatEvent, bool) {
	if len(t.Events) == 0 {
		return nil, false
	}
	return t.Events[len(t.Events)-1], true
}

func (t *Timeline) Len() int {
	return len(t.Events)
}
