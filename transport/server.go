package transport

import (
	"context"
	"fmt"
	"livechat/contract"
	"livechat/errors"
	"livechat/runtime/workers"
	"livechat/storage"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	readLimit               = 4 << 20
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Credentials identify the project a client connects to.
type Credentials struct {
	ProjectID string
	APIKey    string
	AppID     string
}

type ServerOption func(*Server)

// WithHeartbeat pings every client each interval, a client missing a pong is disconnected.
func WithHeartbeat(interval, timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.heartbeatInterval = interval
		s.heartbeatTimeout = timeout
	}
}

func WithHandshakeTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) { s.handshakeTimeout = timeout }
}

func WithWriteTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) { s.writeTimeout = timeout }
}

func WithRestartInterval(interval time.Duration) ServerOption {
	return func(s *Server) { s.restartInterval = interval }
}

// Server serves one storage.Connection per websocket. When the websocket
// drops the connection is closed, which fires its disconnect removals.
type Server struct {
	db          *storage.Database
	log         *slog.Logger
	credentials Credentials
	supervisor  *workers.Supervisor

	handshakeTimeout  time.Duration
	writeTimeout      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	restartInterval   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	wg    sync.WaitGroup
	mu    sync.Mutex
	peers map[string]*peer
}

func NewServer(db *storage.Database, log *slog.Logger, credentials Credentials, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:               db,
		log:              log,
		credentials:      credentials,
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		ctx:              ctx,
		cancel:           cancel,
		peers:            make(map[string]*peer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.supervisor = workers.NewSupervisor(log, s.restartInterval)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade refused", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	ws.SetReadLimit(readLimit)
	conn := NewConn(ws, 0, s.writeTimeout)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	hello, err := s.handshake(ctx, conn)
	if err != nil {
		s.log.Warn("Handshake failed", "remote", r.RemoteAddr, "error", err)
		_ = conn.Write(ctx, Outbound{Type: outboundError, Error: toError(err)})
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}

	store := s.db.Connect()
	p := &peer{
		store: store,
		conn:  conn,
		log:   s.log.With("connection", store.ID(), "app", hello.AppID),
		subs:  make(map[uint64]contract.Subscription),
	}
	data, err := marshalData(WelcomePayload{Connection: store.ID()})
	if err == nil {
		err = conn.Write(ctx, Outbound{Type: outboundWelcome, Data: data})
	}
	if err != nil {
		p.log.Warn("Welcome not sent", "error", err)
		_ = store.Close()
		_ = conn.Close(websocket.StatusInternalError, "welcome failed")
		return
	}

	s.track(p)
	defer s.untrack(p)
	p.log.Info("Client connected", "remote", r.RemoteAddr)

	if s.heartbeatInterval > 0 {
		s.supervisor.Start(ctx, workers.NewHeartbeatWorker(p.log, conn, s.heartbeatInterval, s.heartbeatTimeout,
			func(error) { cancel() }))
	}

	err = p.serve(ctx)
	if !isExpectedDisconnect(ctx, err) {
		p.log.Warn("Client connection lost", "error", err)
	}
	if err := store.Close(); err != nil {
		p.log.Error("Disconnect cleanup failed", "error", err)
	}
	_ = conn.Close(websocket.StatusGoingAway, "connection closed")
	p.log.Info("Client disconnected")
}

func (s *Server) handshake(ctx context.Context, conn *Conn) (HelloPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	var in Inbound
	if err := conn.Read(ctx, &in); err != nil {
		return HelloPayload{}, err
	}
	if in.Type != inboundHello {
		return HelloPayload{}, fmt.Errorf("%w: expected hello, got %q", errors.ErrProtocol, in.Type)
	}
	var hello HelloPayload
	if err := UnmarshalData(in.Data, &hello); err != nil {
		return HelloPayload{}, fmt.Errorf("%w: %w", errors.ErrProtocol, err)
	}
	if hello.Protocol != ProtocolVersion {
		return HelloPayload{}, fmt.Errorf("%w: unsupported protocol %d", errors.ErrProtocol, hello.Protocol)
	}
	if hello.ProjectID != s.credentials.ProjectID || hello.APIKey != s.credentials.APIKey {
		return HelloPayload{}, fmt.Errorf("%w: unknown project %q", errors.ErrUnauthorized, hello.ProjectID)
	}
	return hello, nil
}

// Peers returns the number of connected clients.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close disconnects every client, running their disconnect removals, and waits
// for the handlers to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	s.supervisor.Wait()
}

func (s *Server) track(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.store.ID()] = p
}

func (s *Server) untrack(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, p.store.ID())
}

// peer handles the requests of one client in order.
type peer struct {
	store *storage.Connection
	conn  *Conn
	log   *slog.Logger

	// Owned by serve.
	subs map[uint64]contract.Subscription
}

func (p *peer) serve(ctx context.Context) error {
	for {
		var in Inbound
		if err := p.conn.Read(ctx, &in); err != nil {
			return err
		}
		out := p.handle(ctx, in)
		if err := p.conn.Write(ctx, out); err != nil {
			return err
		}
	}
}

func (p *peer) handle(ctx context.Context, in Inbound) Outbound {
	switch in.Type {
	case inboundRead:
		var req ReadPayload
		if err := UnmarshalData(in.Data, &req); err != nil {
			return reply(in.ID, nil, protocolError(err))
		}
		snapshot, err := p.store.Read(ctx, req.Path, req.Query)
		return reply(in.ID, snapshot, err)

	case inboundSubscribe:
		var req SubscribePayload
		if err := UnmarshalData(in.Data, &req); err != nil {
			return reply(in.ID, nil, protocolError(err))
		}
		if _, ok := p.subs[req.Sub]; ok {
			return reply(in.ID, nil, fmt.Errorf("%w: subscription %d already exists", errors.ErrProtocol, req.Sub))
		}
		sub, err := p.store.Subscribe(ctx, req.Path, req.Query, req.Kind, p.forward(ctx, req.Sub))
		if err != nil {
			return reply(in.ID, nil, err)
		}
		p.subs[req.Sub] = sub
		p.log.Debug("Subscribed", "sub", req.Sub, "path", req.Path, "kind", req.Kind)
		return reply(in.ID, nil, nil)

	case inboundUnsubscribe:
		var req UnsubscribePayload
		if err := UnmarshalData(in.Data, &req); err != nil {
			return reply(in.ID, nil, protocolError(err))
		}
		if sub, ok := p.subs[req.Sub]; ok {
			delete(p.subs, req.Sub)
			_ = sub.Close()
		}
		return reply(in.ID, nil, nil)

	case inboundPush:
		var req PushPayload
		if err := UnmarshalData(in.Data, &req); err != nil {
			return reply(in.ID, nil, protocolError(err))
		}
		node, err := p.store.Push(ctx, req.Path, req.Value)
		return reply(in.ID, node, err)

	case inboundRemove:
		var ref contract.Ref
		if err := UnmarshalData(in.Data, &ref); err != nil {
			return reply(in.ID, nil, protocolError(err))
		}
		return reply(in.ID, nil, p.store.Remove(ctx, ref))

	case inboundOnDisconnect:
		var ref contract.Ref
		if err := UnmarshalData(in.Data, &ref); err != nil {
			return reply(in.ID, nil, protocolError(err))
		}
		return reply(in.ID, nil, p.store.OnDisconnectRemove(ctx, ref))

	default:
		return reply(in.ID, nil, fmt.Errorf("%w: unknown request %q", errors.ErrProtocol, in.Type))
	}
}

// forward writes the changes of one subscription as event frames.
func (p *peer) forward(ctx context.Context, sub uint64) contract.ChangeHandler {
	return func(c contract.Change) {
		data, err := marshalData(toChangePayload(c))
		if err != nil {
			p.log.Error("Change not encoded", "sub", sub, "error", err)
			return
		}
		if err := p.conn.Write(ctx, Outbound{Type: outboundEvent, Sub: sub, Data: data}); err != nil {
			p.log.Debug("Change not sent", "sub", sub, "error", err)
		}
	}
}

func reply(id uint64, payload any, err error) Outbound {
	if err != nil {
		return Outbound{Type: outboundReply, ID: id, Error: toError(err)}
	}
	data, err := marshalData(payload)
	if err != nil {
		return Outbound{Type: outboundReply, ID: id, Error: toError(err)}
	}
	return Outbound{Type: outboundReply, ID: id, Data: data}
}

func protocolError(err error) error {
	return fmt.Errorf("%w: %w", errors.ErrProtocol, err)
}
