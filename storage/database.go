// Package storage implements the realtime store on top of BadgerDB.
// Children of a path are stored under "{path}/{key}" where key starts with the
// zero padded server timestamp, so a prefix scan returns them in insertion order.
package storage

import (
	stderrors "errors"
	"fmt"
	"livechat/contract"
	"livechat/errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultQueueSize = 1024

type Database struct {
	mu         sync.Mutex
	db         *badger.DB
	log        *slog.Logger
	registry   *Registry
	now        func() time.Time
	queueSize  int
	lastTS     int64
	nextSubID  uint64
	nextConnID uint64
}

type Option func(*Database)

// WithClock replaces the server clock, timestamps stay strictly increasing.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithQueueSize bounds the pending changes of one subscription.
func WithQueueSize(size int) Option {
	return func(d *Database) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

func NewDatabase(db *badger.DB, log *slog.Logger, opts ...Option) (*Database, error) {
	d := &Database{
		db:        db,
		log:       log,
		registry:  NewRegistry(),
		now:       time.Now,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	last, err := d.loadLastTimestamp()
	if err != nil {
		return nil, err
	}
	d.lastTS = last
	return d, nil
}

// Read returns the children of path matching the query, in key order.
func (d *Database) Read(path string, query contract.Query) (contract.Snapshot, error) {
	if err := validatePath(path); err != nil {
		return contract.Snapshot{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked(path, query)
}

// Push stores value as a new child of path.
// The key is formatted as "{timestamp_padded}-{uuid}" to:
//  1. Keep insertion order using 19-digit zero padding (lexicographical order).
//  2. Stay unique even if the clock is reused across processes.
//
// The change is published before the lock is released, so a subscriber
// registered after a snapshot never misses nor duplicates it.
func (d *Database) Push(path string, value contract.Record) (contract.Node, error) {
	if err := validatePath(path); err != nil {
		return contract.Node{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := d.nextTimestamp()
	record := resolveServerValues(value, ts)
	key := fmt.Sprintf("%019d-%s", ts, uuid.NewString())
	bytes, err := encodeRecord(record)
	if err != nil {
		return contract.Node{}, err
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(path, key), bytes)
	})
	if err != nil {
		return contract.Node{}, err
	}

	node := contract.Node{Path: path, Key: key, Value: record}
	d.publishLocked(contract.ChildAdded, node)
	return node, nil
}

// Remove deletes a child. Removing a missing child is a no-op.
func (d *Database) Remove(ref contract.Ref) error {
	if err := validatePath(ref.Path); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed *contract.Node
	err := d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(ref.Path, ref.Key))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		bytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		record, err := decodeRecord(bytes)
		if err != nil {
			return err
		}
		removed = &contract.Node{Path: ref.Path, Key: ref.Key, Value: record}
		return txn.Delete(item.KeyCopy(nil))
	})
	if err != nil {
		return err
	}
	if removed == nil {
		d.log.Debug("Remove of a missing child ignored", "path", ref.Path, "key", ref.Key)
		return nil
	}
	d.publishLocked(contract.ChildRemoved, *removed)
	return nil
}

// Subscribe registers handler on path. A value subscription first receives the
// current snapshot, a child_added subscription first receives every existing
// child (bounded by LimitToLast), a child_removed subscription only future removals.
func (d *Database) Subscribe(path string, query contract.Query, kind contract.EventKind, handler contract.ChangeHandler) (contract.Subscription, error) {
	sub, err := d.subscribe(path, query, kind, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (d *Database) subscribe(path string, query contract.Query, kind contract.EventKind, handler contract.ChangeHandler) (*subscription, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("nil handler for %s", path)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var initial []contract.Change
	switch kind {
	case contract.ValueChanged:
		snapshot, err := d.readLocked(path, query)
		if err != nil {
			return nil, err
		}
		initial = append(initial, contract.Change{Kind: kind, Snapshot: snapshot})
	case contract.ChildAdded:
		snapshot, err := d.readLocked(path, query)
		if err != nil {
			return nil, err
		}
		initial = lo.Map(snapshot.Children, func(node contract.Node, _ int) contract.Change {
			return contract.Change{Kind: kind, Node: node}
		})
	case contract.ChildRemoved:
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}

	d.nextSubID++
	sub := newSubscription(d.nextSubID, path, query, kind, handler, d.queueSize+len(initial), d)
	for _, c := range initial {
		sub.offer(c)
	}
	d.registry.Subscribe(sub)
	go sub.run()
	return sub, nil
}

// Connect opens a client connection owning its subscriptions and disconnect actions.
func (d *Database) Connect() *Connection {
	d.mu.Lock()
	d.nextConnID++
	id := strconv.FormatUint(d.nextConnID, 10)
	d.mu.Unlock()
	return newConnection(id, d, d.log.With("connection", id))
}

func (d *Database) unsubscribe(sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry.Unsubscribe(sub.id, sub.path)
	sub.stop()
}

// terminate ends a subscription with err as its last change.
func (d *Database) terminate(sub *subscription, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failLocked(sub, err)
}

func (d *Database) publishLocked(kind contract.EventKind, node contract.Node) {
	for _, sub := range d.registry.GetSubscriptionsForPath(node.Path) {
		switch sub.kind {
		case contract.ValueChanged:
			snapshot, err := d.readLocked(node.Path, sub.query)
			if err != nil {
				d.failLocked(sub, err)
				continue
			}
			d.offerLocked(sub, contract.Change{Kind: contract.ValueChanged, Snapshot: snapshot})
		case kind:
			if !sub.query.Matches(node.Value) {
				continue
			}
			d.offerLocked(sub, contract.Change{Kind: kind, Node: node})
		}
	}
}

func (d *Database) offerLocked(sub *subscription, c contract.Change) {
	if sub.offer(c) {
		return
	}
	d.log.Warn("Subscription queue full, failing subscription", "path", sub.path, "kind", sub.kind)
	d.failLocked(sub, errors.ErrSlowConsumer)
}

func (d *Database) failLocked(sub *subscription, err error) {
	d.registry.Unsubscribe(sub.id, sub.path)
	sub.fail(err)
}

// readLocked scans the path prefix. With LimitToLast it iterates in reverse
// from the newest child and stops once enough children matched.
func (d *Database) readLocked(path string, query contract.Query) (contract.Snapshot, error) {
	prefix := []byte(path + "/")
	snapshot := contract.Snapshot{Path: path}
	err := d.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = query.LimitToLast > 0
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if options.Reverse {
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if query.LimitToLast > 0 && len(snapshot.Children) == query.LimitToLast {
				break
			}
			item := it.Item()
			bytes, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := decodeRecord(bytes)
			if err != nil {
				return err
			}
			if !query.Matches(record) {
				continue
			}
			snapshot.Children = append(snapshot.Children, contract.Node{
				Path:  path,
				Key:   string(item.Key()[len(prefix):]),
				Value: record,
			})
		}
		return nil
	})
	if err != nil {
		return contract.Snapshot{}, err
	}
	if query.LimitToLast > 0 {
		slices.Reverse(snapshot.Children)
	}
	return snapshot, nil
}

func (d *Database) nextTimestamp() int64 {
	ms := d.now().UnixMilli()
	if ms <= d.lastTS {
		ms = d.lastTS + 1
	}
	d.lastTS = ms
	return ms
}

// loadLastTimestamp restores the clock floor so keys written after a restart
// still sort after existing ones.
func (d *Database) loadLastTimestamp() (int64, error) {
	var last int64
	err := d.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if _, _, at := parseKey(string(it.Item().Key())); !at.IsZero() {
				last = max(last, at.UnixMilli())
			}
		}
		return nil
	})
	return last, err
}

func resolveServerValues(value contract.Record, ts int64) contract.Record {
	resolved := make(contract.Record, len(value))
	for field, v := range value {
		switch {
		case contract.IsServerTimestamp(v):
			resolved[field] = ts
		case isNested(v):
			resolved[field] = map[string]any(resolveServerValues(toRecord(v), ts))
		default:
			resolved[field] = v
		}
	}
	return resolved
}

func isNested(v any) bool {
	switch v.(type) {
	case contract.Record, map[string]any:
		return true
	}
	return false
}

func toRecord(v any) contract.Record {
	switch m := v.(type) {
	case contract.Record:
		return m
	case map[string]any:
		return m
	}
	return nil
}

func nodeKey(path, key string) []byte {
	return []byte(path + "/" + key)
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("%w: %q", errors.ErrInvalidPath, path)
	}
	return nil
}
