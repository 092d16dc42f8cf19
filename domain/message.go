// Package domain contains core concepts of the chat system.
// This file defines feed events and related rules.
// Events are immutable once written to the store.
package domain

import (
	"fmt"
	"time"
)

type EventKind string

const (
	StatusKind  EventKind = "status"
	MessageKind EventKind = "message"
)

// FeedSize is the number of most recent events kept in the feed window.
const FeedSize = 100

// ChatEvent is either a StatusEvent or a MessageEvent.
type ChatEvent interface {
	Kind() EventKind
	At() time.Time
	Key() string
}

// StatusEvent announces presence changes in the feed.
type StatusEvent struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

func (s StatusEvent) Kind() EventKind { return StatusKind }
func (s StatusEvent) At() time.Time   { return s.CreatedAt }
func (s StatusEvent) Key() string     { return s.ID }

// MessageEvent is a message written by a participant.
type MessageEvent struct {
	ID        string
	Author    string
	Text      string
	Lang      string // ISO 639-1, empty when unknown
	CreatedAt time.Time
}

func (m MessageEvent) Kind() EventKind { return MessageKind }
func (m MessageEvent) At() time.Time   { return m.CreatedAt }
func (m MessageEvent) Key() string     { return m.ID }

func JoinedText(name string) string {
	return fmt.Sprintf("%s joined the chat", name)
}

func LeftText(name string) string {
	return fmt.Sprintf("%s left the chat", name)
}
