package errors

import (
	"fmt"
	"strings"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// Join
	ErrEmptyName  = fmt.Errorf("name is required")
	ErrTooShort   = fmt.Errorf("name must contain at least 3 characters")
	ErrNameTaken  = fmt.Errorf("name is already taken")
	ErrConnection = fmt.Errorf("connection error")

	// Send
	ErrNotJoined = fmt.Errorf("join the chat before sending messages")
	ErrEmptyText = fmt.Errorf("cannot send an empty message")

	// Session
	ErrSubscription  = fmt.Errorf("subscription failed")
	ErrConfig        = fmt.Errorf("invalid configuration")
	ErrInvalidState  = fmt.Errorf("session is not ready")
	ErrAlreadyJoined = fmt.Errorf("session has already joined")
	ErrTerminated    = fmt.Errorf("session terminated")

	// Store
	ErrConnectionClosed = fmt.Errorf("store connection closed")
	ErrSlowConsumer     = fmt.Errorf("subscription queue overflow")
	ErrNotFound         = fmt.Errorf("record not found")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrInvalidPath      = fmt.Errorf("invalid path")
	ErrProtocol         = fmt.Errorf("protocol error")
)

// ConfigError enumerates every configuration key that is missing or invalid.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("the following config keys are missing: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("the following config keys are invalid: %s", strings.Join(e.Invalid, ", ")))
	}
	return strings.Join(parts, "; ")
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
