package contract

import (
	"encoding/json"
	"math"
	"time"
)

// EventKind selects which changes a subscription receives.
type EventKind string

const (
	ValueChanged EventKind = "value"
	ChildAdded   EventKind = "child_added"
	ChildRemoved EventKind = "child_removed"
)

// Record is the value of one child node.
type Record map[string]any

// ServerValue is a placeholder the store replaces at write time.
type ServerValue struct {
	SV string `json:".sv" cbor:".sv"`
}

// ServerTimestamp is resolved by the store to its own clock, in milliseconds.
var ServerTimestamp = ServerValue{SV: "timestamp"}

// IsServerTimestamp also accepts the decoded JSON form {".sv":"timestamp"}.
func IsServerTimestamp(v any) bool {
	switch sv := v.(type) {
	case ServerValue:
		return sv == ServerTimestamp
	case *ServerValue:
		return sv != nil && *sv == ServerTimestamp
	case map[string]any:
		return len(sv) == 1 && sv[".sv"] == ServerTimestamp.SV
	}
	return false
}

func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Int64 tolerates the numeric types produced by the CBOR and JSON decoders.
func (r Record) Int64(field string) (int64, bool) {
	switch n := r[field].(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// Time reads a millisecond server timestamp.
func (r Record) Time(field string) time.Time {
	ms, ok := r.Int64(field)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Ref addresses one child node.
type Ref struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

type Node struct {
	Path  string `json:"path"`
	Key   string `json:"key"`
	Value Record `json:"value"`
}

func (n Node) Ref() Ref { return Ref{Path: n.Path, Key: n.Key} }

// Snapshot lists the children of a path in key order.
type Snapshot struct {
	Path     string `json:"path"`
	Children []Node `json:"children"`
}

func (s Snapshot) Exists() bool { return len(s.Children) > 0 }

// Query filters and bounds the children of a path.
// The zero value selects every child.
type Query struct {
	OrderBy     string  `json:"orderBy,omitempty"`
	EqualTo     *string `json:"equalTo,omitempty"`
	LimitToLast int     `json:"limitToLast,omitempty"`
}

func (q Query) OrderByChild(field string) Query {
	q.OrderBy = field
	return q
}

func (q Query) Equal(value string) Query {
	q.EqualTo = &value
	return q
}

func (q Query) Last(n int) Query {
	q.LimitToLast = n
	return q
}

// Matches reports whether a record passes the equality filter.
func (q Query) Matches(r Record) bool {
	if q.OrderBy == "" || q.EqualTo == nil {
		return true
	}
	return r.String(q.OrderBy) == *q.EqualTo
}

// Change is delivered to subscription handlers.
// A non-nil Err is the last change a subscription delivers.
type Change struct {
	Kind     EventKind
	Node     Node
	Snapshot Snapshot
	Err      error
}

type ChangeHandler func(Change)
