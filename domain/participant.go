// Package domain contains core concepts of the chat system.
// This file defines Participant entities and the name claiming rules.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"livechat/errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MinNameLength is counted in runes, not bytes.
const MinNameLength = 3

// Participant is a claimed identity present in the roster.
type Participant struct {
	ID            string // roster record key
	DisplayName   string
	NormalizedKey string
	JoinedAt      time.Time
}

// NormalizeName collapses every whitespace run into a single space and trims the result.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// FoldKey returns the case-insensitive key used to detect duplicate names.
func FoldKey(name string) string {
	return strings.ToLower(NormalizeName(name))
}

// ValidateName checks an already normalized name.
func ValidateName(name string) error {
	if name == "" {
		return errors.ErrEmptyName
	}
	if utf8.RuneCountInString(name) < MinNameLength {
		return errors.ErrTooShort
	}
	return nil
}

// NewParticipant builds a Participant from a normalized display name.
func NewParticipant(id, displayName string, joinedAt time.Time) Participant {
	return Participant{
		ID:            id,
		DisplayName:   displayName,
		NormalizedKey: FoldKey(displayName),
		JoinedAt:      joinedAt,
	}
}
