package storage

import (
	"context"
	"livechat/contract"
	"livechat/errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	changes chan contract.Change
}

func newRecorder() *recorder {
	return &recorder{changes: make(chan contract.Change, 256)}
}

func (r *recorder) handle(c contract.Change) {
	r.changes <- c
}

func (r *recorder) next(t *testing.T) contract.Change {
	t.Helper()
	select {
	case c := <-r.changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
		return contract.Change{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.changes:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestDatabase(t *testing.T, opts ...Option) *Database {
	t.Helper()
	database, closeFn, err := OpenInMemory(slog.Default(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return database
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func Test_Push_Keeps_Insertion_Order_With_Increasing_Timestamps(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	db := newTestDatabase(t, WithClock(fixedClock(at)))

	// Given three messages pushed within the same millisecond
	for _, text := range []string{"first", "second", "third"} {
		_, err := db.Push("messages", contract.Record{
			"text":      text,
			"createdAt": contract.ServerTimestamp,
		})
		req.NoError(err)
	}

	// When reading the path
	snapshot, err := db.Read("messages", contract.Query{})
	req.NoError(err)

	// Then children come back in push order with strictly increasing timestamps
	req.Len(snapshot.Children, 3)
	var last int64
	for i, text := range []string{"first", "second", "third"} {
		child := snapshot.Children[i]
		req.Equal(text, child.Value.String("text"))
		ts, ok := child.Value.Int64("createdAt")
		req.True(ok)
		req.Greater(ts, last)
		last = ts
	}
	first, _ := snapshot.Children[0].Value.Int64("createdAt")
	req.Equal(at.UnixMilli(), first)
}

func Test_Push_Resolves_Nested_Server_Timestamp(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	node, err := db.Push("presence", contract.Record{
		"meta": map[string]any{"seenAt": map[string]any{".sv": "timestamp"}},
	})
	req.NoError(err)

	snapshot, err := db.Read("presence", contract.Query{})
	req.NoError(err)
	req.Len(snapshot.Children, 1)
	req.Equal(node.Key, snapshot.Children[0].Key)
	meta, ok := snapshot.Children[0].Value["meta"].(map[string]any)
	req.True(ok)
	_, ok = contract.Record(meta).Int64("seenAt")
	req.True(ok)
}

func Test_Read_With_Equality_Query(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	for _, name := range []string{"Alice", "Bob", "Clara"} {
		_, err := db.Push("presence", contract.Record{"username": name, "usernameLower": strings.ToLower(name)})
		req.NoError(err)
	}

	snapshot, err := db.Read("presence", contract.Query{}.OrderByChild("usernameLower").Equal("bob"))
	req.NoError(err)
	req.True(snapshot.Exists())
	req.Len(snapshot.Children, 1)
	req.Equal("Bob", snapshot.Children[0].Value.String("username"))

	snapshot, err = db.Read("presence", contract.Query{}.OrderByChild("usernameLower").Equal("dave"))
	req.NoError(err)
	req.False(snapshot.Exists())
}

func Test_Read_Limit_To_Last_Keeps_Newest_In_Order(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	for i := range 5 {
		_, err := db.Push("messages", contract.Record{"index": int64(i)})
		req.NoError(err)
	}

	snapshot, err := db.Read("messages", contract.Query{}.Last(2))
	req.NoError(err)
	req.Len(snapshot.Children, 2)
	first, _ := snapshot.Children[0].Value.Int64("index")
	second, _ := snapshot.Children[1].Value.Int64("index")
	req.Equal(int64(3), first)
	req.Equal(int64(4), second)
}

func Test_Read_Does_Not_Leak_Sibling_Paths(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	_, err := db.Push("messages", contract.Record{"text": "hello"})
	req.NoError(err)
	_, err = db.Push("messages-archive", contract.Record{"text": "old"})
	req.NoError(err)

	snapshot, err := db.Read("messages", contract.Query{}.Last(10))
	req.NoError(err)
	req.Len(snapshot.Children, 1)
	req.Equal("hello", snapshot.Children[0].Value.String("text"))
}

func Test_Invalid_Path_Is_Rejected(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	_, err := db.Push("", contract.Record{})
	req.ErrorIs(err, errors.ErrInvalidPath)
	_, err = db.Read("/messages", contract.Query{})
	req.ErrorIs(err, errors.ErrInvalidPath)
}

func Test_Child_Added_Replays_Existing_Then_Streams_New(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	// Given two existing messages
	_, err := db.Push("messages", contract.Record{"text": "one"})
	req.NoError(err)
	_, err = db.Push("messages", contract.Record{"text": "two"})
	req.NoError(err)

	// When subscribing to the last message only
	rec := newRecorder()
	sub, err := db.Subscribe("messages", contract.Query{}.Last(1), contract.ChildAdded, rec.handle)
	req.NoError(err)
	defer sub.Close()

	// Then only the newest existing message is replayed
	req.Equal("two", rec.next(t).Node.Value.String("text"))

	// And new messages are streamed
	_, err = db.Push("messages", contract.Record{"text": "three"})
	req.NoError(err)
	change := rec.next(t)
	req.Equal(contract.ChildAdded, change.Kind)
	req.Equal("three", change.Node.Value.String("text"))
	rec.none(t)
}

func Test_Value_Subscription_Receives_Snapshots(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	rec := newRecorder()
	sub, err := db.Subscribe("presence", contract.Query{}, contract.ValueChanged, rec.handle)
	req.NoError(err)
	defer sub.Close()

	// Initial snapshot of an empty path
	req.False(rec.next(t).Snapshot.Exists())

	node, err := db.Push("presence", contract.Record{"username": "Alice"})
	req.NoError(err)
	change := rec.next(t)
	req.Equal(contract.ValueChanged, change.Kind)
	req.Len(change.Snapshot.Children, 1)

	req.NoError(db.Remove(node.Ref()))
	req.False(rec.next(t).Snapshot.Exists())
}

func Test_Remove_Publishes_Old_Value(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	node, err := db.Push("presence", contract.Record{"username": "Alice"})
	req.NoError(err)

	rec := newRecorder()
	sub, err := db.Subscribe("presence", contract.Query{}, contract.ChildRemoved, rec.handle)
	req.NoError(err)
	defer sub.Close()
	rec.none(t)

	req.NoError(db.Remove(node.Ref()))
	change := rec.next(t)
	req.Equal(contract.ChildRemoved, change.Kind)
	req.Equal(node.Key, change.Node.Key)
	req.Equal("Alice", change.Node.Value.String("username"))

	// Removing twice is a no-op
	req.NoError(db.Remove(node.Ref()))
	rec.none(t)
}

func Test_Closed_Subscription_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)

	rec := newRecorder()
	sub, err := db.Subscribe("messages", contract.Query{}, contract.ChildAdded, rec.handle)
	req.NoError(err)
	req.NoError(sub.Close())

	_, err = db.Push("messages", contract.Record{"text": "ignored"})
	req.NoError(err)
	rec.none(t)
	req.Empty(db.registry.Subscriptions)
}

func Test_Slow_Consumer_Is_Failed(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t, WithQueueSize(1))

	release := make(chan struct{})
	rec := newRecorder()
	sub, err := db.Subscribe("messages", contract.Query{}, contract.ChildAdded, func(c contract.Change) {
		<-release
		rec.handle(c)
	})
	req.NoError(err)
	defer sub.Close()

	// Given a handler stuck on the first change
	for _, text := range []string{"a", "b", "c"} {
		_, err = db.Push("messages", contract.Record{"text": text})
		req.NoError(err)
	}
	close(release)

	// Then the subscription ends with ErrSlowConsumer
	var last contract.Change
	for last.Err == nil {
		last = rec.next(t)
	}
	req.ErrorIs(last.Err, errors.ErrSlowConsumer)
	req.Empty(db.registry.Subscriptions)
}

func Test_Timestamps_Stay_Increasing_After_Restart(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	bdb, err := OpenBadger(dir, false, slog.Default())
	req.NoError(err)
	db, err := NewDatabase(bdb, slog.Default(), WithClock(fixedClock(future)))
	req.NoError(err)
	before, err := db.Push("messages", contract.Record{"createdAt": contract.ServerTimestamp})
	req.NoError(err)
	req.NoError(bdb.Close())

	// When reopening with a clock behind the stored data
	bdb, err = OpenBadger(dir, false, slog.Default())
	req.NoError(err)
	defer bdb.Close()
	db, err = NewDatabase(bdb, slog.Default(), WithClock(fixedClock(future.Add(-time.Hour))))
	req.NoError(err)
	after, err := db.Push("messages", contract.Record{"createdAt": contract.ServerTimestamp})
	req.NoError(err)

	// Then the new child still sorts last
	req.Greater(after.Key, before.Key)
	snapshot, err := db.Read("messages", contract.Query{}.Last(1))
	req.NoError(err)
	req.Equal(after.Key, snapshot.Children[0].Key)
}

func Test_Connection_Close_Runs_Disconnect_Removals(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := newTestDatabase(t)

	observer := newRecorder()
	sub, err := db.Subscribe("presence", contract.Query{}, contract.ChildRemoved, observer.handle)
	req.NoError(err)
	defer sub.Close()

	// Given a connection that registered its presence for removal
	conn := db.Connect()
	node, err := conn.Push(ctx, "presence", contract.Record{"username": "Alice"})
	req.NoError(err)
	req.NoError(conn.OnDisconnectRemove(ctx, node.Ref()))

	own := newRecorder()
	_, err = conn.Subscribe(ctx, "messages", contract.Query{}, contract.ChildAdded, own.handle)
	req.NoError(err)

	// When the connection drops
	req.NoError(conn.Close())

	// Then the presence is removed and observed by others
	change := observer.next(t)
	req.Equal("Alice", change.Node.Value.String("username"))
	snapshot, err := db.Read("presence", contract.Query{})
	req.NoError(err)
	req.False(snapshot.Exists())

	// And the connection subscriptions end with an error
	req.ErrorIs(own.next(t).Err, errors.ErrConnectionClosed)
	_, err = db.Push("messages", contract.Record{"text": "after"})
	req.NoError(err)
	own.none(t)

	// And the connection is unusable
	_, err = conn.Push(ctx, "messages", contract.Record{})
	req.ErrorIs(err, errors.ErrConnectionClosed)
	_, err = conn.Read(ctx, "messages", contract.Query{})
	req.ErrorIs(err, errors.ErrConnectionClosed)
	req.ErrorIs(conn.OnDisconnectRemove(ctx, node.Ref()), errors.ErrConnectionClosed)
	req.NoError(conn.Close())
}

func Test_Connection_Explicit_Remove_Cancels_Disconnect_Removal(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := newTestDatabase(t)

	conn := db.Connect()
	node, err := conn.Push(ctx, "presence", contract.Record{"username": "Bob"})
	req.NoError(err)
	req.NoError(conn.OnDisconnectRemove(ctx, node.Ref()))
	req.NoError(conn.Remove(ctx, node.Ref()))
	req.Empty(conn.onDisconnect)

	observer := newRecorder()
	sub, err := db.Subscribe("presence", contract.Query{}, contract.ChildRemoved, observer.handle)
	req.NoError(err)
	defer sub.Close()

	req.NoError(conn.Close())
	observer.none(t)
}

func Test_Connection_Rejects_Cancelled_Context(t *testing.T) {
	req := require.New(t)
	db := newTestDatabase(t)
	conn := db.Connect()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Push(ctx, "messages", contract.Record{})
	req.ErrorIs(err, context.Canceled)
}

func Test_Entries_Lists_Stored_Children(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := newTestDatabase(t, WithClock(fixedClock(at)))

	// Given children under two paths
	first, err := db.Push("messages", contract.Record{"text": "one"})
	req.NoError(err)
	_, err = db.Push("messages", contract.Record{"text": "two"})
	req.NoError(err)
	_, err = db.Push("presence", contract.Record{"username": "Alice"})
	req.NoError(err)

	// When listing the messages prefix with a limit
	entries, err := db.Entries("messages/", 1)
	req.NoError(err)

	// Then only the oldest message is returned with its decoded value
	req.Len(entries, 1)
	req.Equal("messages", entries[0].Path)
	req.Equal(first.Key, entries[0].Key)
	req.Equal(at, entries[0].At)
	req.NoError(entries[0].Err)
	req.Equal("one", entries[0].Value.String("text"))
	req.Positive(entries[0].Size)

	all, err := db.Entries("", 0)
	req.NoError(err)
	req.Len(all, 3)
}
