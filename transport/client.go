package transport

import (
	"context"
	"fmt"
	"livechat/contract"
	"livechat/errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const defaultQueueSize = 1024

type ClientOption func(*Client)

func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.handshakeTimeout = timeout }
}

func WithRequestWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.writeTimeout = timeout }
}

// WithSubscriptionQueue bounds the changes buffered for one subscription handler.
func WithSubscriptionQueue(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// Client is a contract.Store backed by a remote Server.
// Changes are delivered to each handler from its own goroutine, in order.
// Losing the websocket ends every subscription with ErrConnectionClosed.
type Client struct {
	conn *Conn
	log  *slog.Logger

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	queueSize        int
	connection       string

	nextID  atomic.Uint64
	nextSub atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Outbound
	subs    map[uint64]*remoteSubscription
	err     error

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to url, ws(s) or http(s), and performs the hello handshake.
func Dial(ctx context.Context, url string, credentials Credentials, log *slog.Logger, opts ...ClientOption) (*Client, error) {
	c := &Client{
		log:              log,
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		queueSize:        defaultQueueSize,
		pending:          make(map[uint64]chan Outbound),
		subs:             make(map[uint64]*remoteSubscription),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialCtx := ctx
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConnectionClosed, err)
	}
	ws.SetReadLimit(readLimit)
	c.conn = NewConn(ws, 0, c.writeTimeout)

	connection, err := c.hello(dialCtx, credentials)
	if err != nil {
		_ = c.conn.Close(websocket.StatusPolicyViolation, "handshake error")
		return nil, err
	}
	c.connection = connection
	c.log = log.With("connection", connection)

	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.readLoop()
	c.log.Debug("Connected to store", "url", url)
	return c, nil
}

func (c *Client) hello(ctx context.Context, credentials Credentials) (string, error) {
	hello, err := newInbound(0, inboundHello, HelloPayload{
		Protocol:  ProtocolVersion,
		ProjectID: credentials.ProjectID,
		APIKey:    credentials.APIKey,
		AppID:     credentials.AppID,
	})
	if err != nil {
		return "", err
	}
	if err := c.conn.Write(ctx, hello); err != nil {
		return "", err
	}
	var out Outbound
	if err := c.conn.Read(ctx, &out); err != nil {
		return "", err
	}
	switch out.Type {
	case outboundWelcome:
		var welcome WelcomePayload
		if err := UnmarshalData(out.Data, &welcome); err != nil {
			return "", err
		}
		return welcome.Connection, nil
	case outboundError:
		if out.Error == nil {
			return "", errors.ErrProtocol
		}
		return "", out.Error
	default:
		return "", fmt.Errorf("%w: unexpected %q during handshake", errors.ErrProtocol, out.Type)
	}
}

// Connection returns the id the server gave to this client.
func (c *Client) Connection() string { return c.connection }

func (c *Client) Read(ctx context.Context, path string, query contract.Query) (contract.Snapshot, error) {
	data, err := c.request(ctx, inboundRead, ReadPayload{Path: path, Query: query})
	if err != nil {
		return contract.Snapshot{}, err
	}
	var snapshot contract.Snapshot
	if err := UnmarshalData(data, &snapshot); err != nil {
		return contract.Snapshot{}, err
	}
	return snapshot, nil
}

func (c *Client) Subscribe(ctx context.Context, path string, query contract.Query,
	kind contract.EventKind, handler contract.ChangeHandler) (contract.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil handler for %s", path)
	}
	sub := newRemoteSubscription(c.nextSub.Add(1), kind, handler, c.queueSize, c)

	// Registered first: the first changes can arrive before the reply.
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()
	go sub.run()

	_, err := c.request(ctx, inboundSubscribe, SubscribePayload{Sub: sub.id, Path: path, Query: query, Kind: kind})
	if err != nil {
		c.forget(sub.id)
		sub.stop()
		return nil, err
	}
	return sub, nil
}

func (c *Client) Push(ctx context.Context, path string, value contract.Record) (contract.Node, error) {
	data, err := c.request(ctx, inboundPush, PushPayload{Path: path, Value: value})
	if err != nil {
		return contract.Node{}, err
	}
	var node contract.Node
	if err := UnmarshalData(data, &node); err != nil {
		return contract.Node{}, err
	}
	return node, nil
}

func (c *Client) OnDisconnectRemove(ctx context.Context, ref contract.Ref) error {
	_, err := c.request(ctx, inboundOnDisconnect, ref)
	return err
}

func (c *Client) Remove(ctx context.Context, ref contract.Ref) error {
	_, err := c.request(ctx, inboundRemove, ref)
	return err
}

// Ping checks the server answers, it makes Client a workers.Pinger.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Done is closed once the connection is lost or closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the connection gracefully. The server then runs the disconnect removals.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(websocket.StatusNormalClosure, "client close"); err != nil {
			c.log.Debug("Websocket close failed", "error", err)
		}
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *Client) request(ctx context.Context, kind string, payload any) ([]byte, error) {
	id := c.nextID.Add(1)
	in, err := newInbound(id, kind, payload)
	if err != nil {
		return nil, err
	}
	reply := make(chan Outbound, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.Write(ctx, in); err != nil {
		if lost := c.failure(); lost != nil {
			return nil, lost
		}
		return nil, fmt.Errorf("%w: %w", errors.ErrConnectionClosed, err)
	}

	select {
	case out := <-reply:
		if out.Error != nil {
			return nil, out.Error
		}
		return out.Data, nil
	case <-c.done:
		return nil, c.failure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop() {
	for {
		var out Outbound
		if err := c.conn.Read(c.ctx, &out); err != nil {
			c.shutdown(err)
			return
		}
		switch out.Type {
		case outboundReply:
			c.mu.Lock()
			reply, ok := c.pending[out.ID]
			c.mu.Unlock()
			if ok {
				reply <- out
			}
		case outboundEvent:
			c.dispatch(out)
		default:
			c.log.Debug("Unexpected frame ignored", "type", out.Type)
		}
	}
}

// dispatch runs on the read loop, the only goroutine offering to or failing subscriptions.
func (c *Client) dispatch(out Outbound) {
	var payload ChangePayload
	if err := UnmarshalData(out.Data, &payload); err != nil {
		c.log.Warn("Malformed change ignored", "sub", out.Sub, "error", err)
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[out.Sub]
	c.mu.Unlock()
	if !ok {
		return
	}

	change := fromChangePayload(payload)
	if change.Err != nil {
		c.forget(sub.id)
		sub.fail(change.Err)
		return
	}
	if !sub.offer(change) {
		c.log.Warn("Subscription queue overflow", "sub", sub.id)
		c.forget(sub.id)
		sub.fail(errors.ErrSlowConsumer)
		go c.unsubscribe(sub.id)
	}
}

func (c *Client) shutdown(err error) {
	lost := errors.ErrConnectionClosed
	if !isExpectedDisconnect(c.ctx, err) {
		c.log.Warn("Store connection lost", "error", err)
		lost = fmt.Errorf("%w: %w", errors.ErrConnectionClosed, err)
	}

	c.mu.Lock()
	c.err = lost
	subs := c.subs
	c.subs = make(map[uint64]*remoteSubscription)
	c.mu.Unlock()

	close(c.done)
	for _, sub := range subs {
		sub.fail(errors.ErrConnectionClosed)
	}
}

func (c *Client) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) forget(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	return ok
}

func (c *Client) unsubscribe(id uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if _, err := c.request(ctx, inboundUnsubscribe, UnsubscribePayload{Sub: id}); err != nil {
		c.log.Debug("Unsubscribe failed", "sub", id, "error", err)
	}
}

type remoteSubscription struct {
	id      uint64
	kind    contract.EventKind
	handler contract.ChangeHandler
	client  *Client

	queue    chan contract.Change
	stopped  chan struct{}
	stopOnce sync.Once
	failOnce sync.Once
	err      error
}

func newRemoteSubscription(id uint64, kind contract.EventKind, handler contract.ChangeHandler,
	capacity int, client *Client) *remoteSubscription {
	return &remoteSubscription{
		id:      id,
		kind:    kind,
		handler: handler,
		client:  client,
		queue:   make(chan contract.Change, capacity),
		stopped: make(chan struct{}),
	}
}

func (s *remoteSubscription) run() {
	for {
		select {
		case <-s.stopped:
			return
		case c, ok := <-s.queue:
			if !ok {
				s.handler(contract.Change{Kind: s.kind, Err: s.err})
				return
			}
			s.handler(c)
		}
	}
}

func (s *remoteSubscription) offer(c contract.Change) bool {
	select {
	case s.queue <- c:
		return true
	default:
		return false
	}
}

func (s *remoteSubscription) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.queue)
	})
}

func (s *remoteSubscription) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Close stops delivery and tells the server, it is safe to call from the handler.
func (s *remoteSubscription) Close() error {
	s.stop()
	if s.client.forget(s.id) {
		go s.client.unsubscribe(s.id)
	}
	return nil
}
