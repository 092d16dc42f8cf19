// Package transport exposes a storage.Database over websocket and provides the
// matching remote contract.Store.
package transport

import (
	"encoding/json"
	stderrors "errors"
	"livechat/contract"
	"livechat/errors"
)

const (
	ProtocolVersion = 1

	inboundHello        = "hello"
	inboundRead         = "read"
	inboundSubscribe    = "subscribe"
	inboundUnsubscribe  = "unsubscribe"
	inboundPush         = "push"
	inboundRemove       = "remove"
	inboundOnDisconnect = "on_disconnect_remove"

	outboundWelcome = "welcome"
	outboundReply   = "reply"
	outboundEvent   = "event"
	outboundError   = "error"
)

// Error codes sent on the wire.
const (
	codeUnauthorized     = "unauthorized"
	codeConnectionClosed = "connection_closed"
	codeSlowConsumer     = "slow_consumer"
	codeNotFound         = "not_found"
	codeInvalidPath      = "invalid_path"
	codeProtocol         = "protocol"
	codeInternal         = "internal"
)

// Inbound is the envelope client -> server. ID correlates the reply.
type Inbound struct {
	ID   uint64          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope server -> client.
// Replies carry the request ID, events carry the subscription ID.
type Outbound struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id,omitempty"`
	Sub   uint64          `json:"sub,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// HelloPayload carries the project credentials checked by the server.
type HelloPayload struct {
	Protocol  int    `json:"protocol"`
	ProjectID string `json:"projectId"`
	APIKey    string `json:"apiKey"`
	AppID     string `json:"appId,omitempty"`
}

type WelcomePayload struct {
	Connection string `json:"connection"`
}

type ReadPayload struct {
	Path  string         `json:"path"`
	Query contract.Query `json:"query"`
}

// SubscribePayload carries the subscription ID chosen by the client.
type SubscribePayload struct {
	Sub   uint64             `json:"sub"`
	Path  string             `json:"path"`
	Query contract.Query     `json:"query"`
	Kind  contract.EventKind `json:"kind"`
}

type UnsubscribePayload struct {
	Sub uint64 `json:"sub"`
}

type PushPayload struct {
	Path  string          `json:"path"`
	Value contract.Record `json:"value"`
}

// ChangePayload is the data of an event frame.
type ChangePayload struct {
	Kind     contract.EventKind `json:"kind"`
	Node     *contract.Node     `json:"node,omitempty"`
	Snapshot *contract.Snapshot `json:"snapshot,omitempty"`
	Error    *Error             `json:"error,omitempty"`
}

// Error describes a protocol error.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// Unwrap maps the wire code back to the sentinel error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case codeUnauthorized:
		return errors.ErrUnauthorized
	case codeConnectionClosed:
		return errors.ErrConnectionClosed
	case codeSlowConsumer:
		return errors.ErrSlowConsumer
	case codeNotFound:
		return errors.ErrNotFound
	case codeInvalidPath:
		return errors.ErrInvalidPath
	case codeProtocol:
		return errors.ErrProtocol
	default:
		return nil
	}
}

func toError(err error) *Error {
	if err == nil {
		return nil
	}
	code := codeInternal
	switch {
	case stderrors.Is(err, errors.ErrUnauthorized):
		code = codeUnauthorized
	case stderrors.Is(err, errors.ErrConnectionClosed):
		code = codeConnectionClosed
	case stderrors.Is(err, errors.ErrSlowConsumer):
		code = codeSlowConsumer
	case stderrors.Is(err, errors.ErrNotFound):
		code = codeNotFound
	case stderrors.Is(err, errors.ErrInvalidPath):
		code = codeInvalidPath
	case stderrors.Is(err, errors.ErrProtocol):
		code = codeProtocol
	}
	return &Error{Code: code, Msg: err.Error()}
}

func newInbound(id uint64, kind string, payload any) (Inbound, error) {
	data, err := marshalData(payload)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{ID: id, Type: kind, Data: data}, nil
}

func marshalData(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.ErrProtocol
	}
	return json.Unmarshal(data, v)
}

func toChangePayload(c contract.Change) ChangePayload {
	payload := ChangePayload{Kind: c.Kind, Error: toError(c.Err)}
	switch {
	case c.Err != nil:
	case c.Kind == contract.ValueChanged:
		snapshot := c.Snapshot
		payload.Snapshot = &snapshot
	default:
		node := c.Node
		payload.Node = &node
	}
	return payload
}

func fromChangePayload(p ChangePayload) contract.Change {
	c := contract.Change{Kind: p.Kind}
	if p.Error != nil {
		c.Err = p.Error
	}
	if p.Node != nil {
		c.Node = *p.Node
	}
	if p.Snapshot != nil {
		c.Snapshot = *p.Snapshot
	}
	return c
}
