package storage

import (
	"livechat/contract"
	"sync"
)

// subscription delivers changes to its handler from a dedicated goroutine,
// in the order the database offered them.
type subscription struct {
	id      uint64
	path    string
	query   contract.Query
	kind    contract.EventKind
	handler contract.ChangeHandler
	db      *Database

	queue    chan contract.Change
	stopped  chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	failOnce sync.Once
	err      error
}

func newSubscription(id uint64, path string, query contract.Query, kind contract.EventKind,
	handler contract.ChangeHandler, capacity int, db *Database) *subscription {
	return &subscription{
		id:       id,
		path:     path,
		query:    query,
		kind:     kind,
		handler:  handler,
		db:       db,
		queue:    make(chan contract.Change, capacity),
		stopped:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *subscription) run() {
	defer close(s.finished)
	for {
		select {
		case <-s.stopped:
			return
		case c, ok := <-s.queue:
			if !ok {
				// Queue closed by fail: everything queued before was delivered.
				s.handler(contract.Change{Kind: s.kind, Err: s.err})
				return
			}
			s.handler(c)
		}
	}
}

// offer never blocks, the database calls it while holding its lock.
func (s *subscription) offer(c contract.Change) bool {
	select {
	case s.queue <- c:
		return true
	default:
		return false
	}
}

// fail must only be called with the database lock held, after the
// subscription has been removed from the registry.
func (s *subscription) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.queue)
	})
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Close stops delivery. It is safe to call from the handler itself.
func (s *subscription) Close() error {
	s.db.unsubscribe(s)
	return nil
}
