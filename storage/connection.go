package storage

import (
	"context"
	"livechat/contract"
	"livechat/errors"
	"log/slog"
	"slices"
	"sync"
)

// Connection is one client's view of the database. It implements contract.Store.
// Closing it, gracefully or because the transport dropped, fires every
// removal registered with OnDisconnectRemove.
type Connection struct {
	id  string
	db  *Database
	log *slog.Logger

	mu           sync.Mutex
	closed       bool
	nextSub      uint64
	subs         map[uint64]*subscription
	onDisconnect []contract.Ref
}

func newConnection(id string, db *Database, log *slog.Logger) *Connection {
	return &Connection{
		id:   id,
		db:   db,
		log:  log,
		subs: make(map[uint64]*subscription),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Read(ctx context.Context, path string, query contract.Query) (contract.Snapshot, error) {
	if err := c.check(ctx); err != nil {
		return contract.Snapshot{}, err
	}
	return c.db.Read(path, query)
}

func (c *Connection) Subscribe(ctx context.Context, path string, query contract.Query,
	kind contract.EventKind, handler contract.ChangeHandler) (contract.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.ErrConnectionClosed
	}
	sub, err := c.db.subscribe(path, query, kind, handler)
	if err != nil {
		return nil, err
	}
	c.nextSub++
	tracked := &trackedSubscription{Subscription: sub, conn: c, id: c.nextSub}
	c.subs[tracked.id] = sub
	return tracked, nil
}

func (c *Connection) Push(ctx context.Context, path string, value contract.Record) (contract.Node, error) {
	if err := c.check(ctx); err != nil {
		return contract.Node{}, err
	}
	return c.db.Push(path, value)
}

func (c *Connection) OnDisconnectRemove(ctx context.Context, ref contract.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	if !slices.Contains(c.onDisconnect, ref) {
		c.onDisconnect = append(c.onDisconnect, ref)
	}
	return nil
}

// Remove deletes the child now, a pending disconnect removal of it is dropped.
func (c *Connection) Remove(ctx context.Context, ref contract.Ref) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if err := c.db.Remove(ref); err != nil {
		return err
	}
	c.mu.Lock()
	c.onDisconnect = slices.DeleteFunc(c.onDisconnect, func(r contract.Ref) bool { return r == ref })
	c.mu.Unlock()
	return nil
}

// Close ends the subscriptions still open with ErrConnectionClosed then runs
// the disconnect actions. Only the first call has an effect.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	actions := c.onDisconnect
	c.onDisconnect = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.db.terminate(sub, errors.ErrConnectionClosed)
	}
	var firstErr error
	for _, ref := range actions {
		if err := c.db.Remove(ref); err != nil {
			c.log.Error("Disconnect removal failed", "path", ref.Path, "key", ref.Key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.log.Debug("Disconnect removal done", "path", ref.Path, "key", ref.Key)
	}
	return firstErr
}

func (c *Connection) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	return nil
}

func (c *Connection) forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

type trackedSubscription struct {
	contract.Subscription
	conn *Connection
	id   uint64
}

func (t *trackedSubscription) Close() error {
	t.conn.forget(t.id)
	return t.Subscription.Close()
}
