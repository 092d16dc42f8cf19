//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"livechat/domain/event"
	"reflect"
)

// Store is the realtime key-value store a chat session synchronizes against.
// Handlers passed to Subscribe must not block on the store that calls them.
type Store interface {
	Read(ctx context.Context, path string, query Query) (Snapshot, error)
	Subscribe(ctx context.Context, path string, query Query, kind EventKind, handler ChangeHandler) (Subscription, error)
	// Push appends a child under path with a store generated key.
	// ServerTimestamp values are replaced before the write.
	Push(ctx context.Context, path string, value Record) (Node, error)
	// OnDisconnectRemove registers a removal fired by the store when the connection is lost.
	OnDisconnectRemove(ctx context.Context, ref Ref) error
	Remove(ctx context.Context, ref Ref) error
}

type Subscription interface {
	Close() error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}
