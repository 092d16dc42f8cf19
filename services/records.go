// Package services implements the chat protocol on top of a contract.Store:
// name claiming, presence tracking and the message feed.
package services

import (
	"livechat/contract"
	"livechat/domain"
	"livechat/domain/event"
	"strings"
)

const (
	PresencePath = "presence"
	MessagesPath = "messages"

	fieldUsername      = "username"
	fieldUsernameLower = "usernameLower"
	fieldJoinedAt      = "joinedAt"
	fieldType          = "type"
	fieldText          = "text"
	fieldLang          = "lang"
	fieldCreatedAt     = "createdAt"
)

// Apply mutates the local projections. The session runs it on its event loop.
type Apply func() ([]event.DomainEvent, error)

// Deliver hands an Apply over to the session loop, preserving the order of each stream.
type Deliver func(Apply)

func presenceRecord(name string) contract.Record {
	return contract.Record{
		fieldUsername:      name,
		fieldUsernameLower: domain.FoldKey(name),
		fieldJoinedAt:      contract.ServerTimestamp,
	}
}

func statusRecord(text string) contract.Record {
	return contract.Record{
		fieldType:      string(domain.StatusKind),
		fieldText:      text,
		fieldCreatedAt: contract.ServerTimestamp,
	}
}

func messageRecord(author, text, lang string) contract.Record {
	record := contract.Record{
		fieldType:      string(domain.MessageKind),
		fieldUsername:  author,
		fieldText:      text,
		fieldCreatedAt: contract.ServerTimestamp,
	}
	if lang != "" {
		record[fieldLang] = lang
	}
	return record
}

// toParticipant ignores presence records without a name.
func toParticipant(node contract.Node) (domain.Participant, bool) {
	name := node.Value.String(fieldUsername)
	if name == "" {
		return domain.Participant{}, false
	}
	p := domain.NewParticipant(node.Key, name, node.Value.Time(fieldJoinedAt))
	if lower := node.Value.String(fieldUsernameLower); lower != "" {
		p.NormalizedKey = lower
	}
	return p, true
}

// toChatEvent ignores records of an unknown type or without text.
func toChatEvent(node contract.Node) (domain.ChatEvent, bool) {
	text := node.Value.String(fieldText)
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	createdAt := node.Value.Time(fieldCreatedAt)
	switch domain.EventKind(node.Value.String(fieldType)) {
	case domain.StatusKind:
		return domain.StatusEvent{ID: node.Key, Text: text, CreatedAt: createdAt}, true
	case domain.MessageKind:
		author := node.Value.String(fieldUsername)
		if author == "" {
			return nil, false
		}
		return domain.MessageEvent{
			ID:        node.Key,
			Author:    author,
			Text:      text,
			Lang:      node.Value.String(fieldLang),
			CreatedAt: createdAt,
		}, true
	}
	return nil, false
}
