// Package runtime binds the chat services into a session driven by a single event loop.
package runtime

import (
	"context"
	stderrors "errors"
	"livechat/contract"
	"livechat/domain"
	"livechat/domain/event"
	"livechat/errors"
	"livechat/projection"
	"livechat/runtime/workers"
	"livechat/services"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
)

const (
	defaultInboxSize = 256
	removalTimeout   = 5 * time.Second
	closeTimeout     = 10 * time.Second

	FatalMessage = "The connection to the chat was lost, reload to join again."
)

type sessionOptions struct {
	sinks           []contract.EventSink
	inspector       services.Inspector
	collation       language.Tag
	inboxSize       int
	sinkTimeout     time.Duration
	restartInterval time.Duration
	monitorInterval time.Duration
}

type Option func(*sessionOptions)

// WithSinks registers the consumers of the session notifications.
func WithSinks(sinks ...contract.EventSink) Option {
	return func(o *sessionOptions) { o.sinks = append(o.sinks, sinks...) }
}

// WithInspector moderates outgoing messages.
func WithInspector(inspector services.Inspector) Option {
	return func(o *sessionOptions) { o.inspector = inspector }
}

// WithCollation sets the language used to sort the roster.
func WithCollation(tag language.Tag) Option {
	return func(o *sessionOptions) { o.collation = tag }
}

func WithInboxSize(size int) Option {
	return func(o *sessionOptions) { o.inboxSize = size }
}

func WithSinkTimeout(timeout time.Duration) Option {
	return func(o *sessionOptions) { o.sinkTimeout = timeout }
}

func WithRestartInterval(interval time.Duration) Option {
	return func(o *sessionOptions) { o.restartInterval = interval }
}

// WithQueueMonitor logs the fill level of the session queues every interval.
func WithQueueMonitor(interval time.Duration) Option {
	return func(o *sessionOptions) { o.monitorInterval = interval }
}

// Session is the chat session controller.
// Every state transition, store notification and command runs on one goroutine,
// the loop, which owns the local state and the projections.
type Session struct {
	store      contract.Store
	log        *slog.Logger
	local      *domain.LocalSessionState
	joiner     services.IJoinService
	feed       *services.FeedService
	presence   *services.PresenceService
	fanout     *workers.EventFanout
	supervisor *workers.Supervisor

	ctx           context.Context
	cancel        context.CancelFunc
	monitorCancel context.CancelFunc

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	current   atomic.Int32

	// Owned by the loop.
	status domain.SessionState
	subs   []contract.Subscription
}

// NewSession returns a Disconnected session bound to store.
// The store is owned by the caller and is not closed by the session.
func NewSession(store contract.Store, log *slog.Logger, opts ...Option) *Session {
	o := sessionOptions{collation: language.Und, inboxSize: defaultInboxSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.inboxSize <= 0 {
		o.inboxSize = defaultInboxSize
	}

	local := &domain.LocalSessionState{}
	var feedOpts []services.FeedOption
	if o.inspector != nil {
		feedOpts = append(feedOpts, services.WithInspector(o.inspector))
	}
	feed := services.NewFeedService(store, local, log, feedOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:      store,
		log:        log,
		local:      local,
		joiner:     services.NewJoinService(store, log),
		feed:       feed,
		presence:   services.NewPresenceService(store, local, feed, projection.NewRoster(o.collation), log),
		fanout:     workers.NewEventFanout(log, o.inboxSize, o.sinkTimeout, o.sinks...),
		supervisor: workers.NewSupervisor(log, o.restartInterval),
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan func(), o.inboxSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		status:     domain.StateDisconnected,
	}

	s.supervisor.Start(ctx, s.fanout)
	monitorCtx, monitorCancel := context.WithCancel(ctx)
	s.monitorCancel = monitorCancel
	if o.monitorInterval > 0 {
		s.supervisor.Start(monitorCtx, workers.NewChannelCapacityWorker(log, []workers.NamedChannel{
			{Name: "session_inbox", Channel: s.inbox},
			{Name: "session_events", Channel: s.fanout.Channel()},
		}, o.monitorInterval))
	}

	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.quit:
			return
		}
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.inbox <- task:
	case <-s.done:
		return errors.ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return errors.ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting, it gives up once the loop is gone.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Session) deliver(apply services.Apply) {
	s.post(func() { s.apply(apply) })
}

// Start opens the feed and presence subscriptions. Any failure is fatal.
func (s *Session) Start(ctx context.Context) error {
	var err error
	if callErr := s.call(ctx, func() { err = s.start(ctx) }); callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) start(ctx context.Context) error {
	switch s.status {
	case domain.StateDisconnected:
	case domain.StateTerminated:
		return errors.ErrTerminated
	default:
		return errors.ErrInvalidState
	}
	s.transition(domain.StateConnecting)

	feedSub, err := s.feed.Subscribe(ctx, s.deliver)
	if err != nil {
		s.fail(err)
		return err
	}
	s.subs = append(s.subs, feedSub)

	presenceSubs, err := s.presence.Subscribe(ctx, s.deliver)
	if err != nil {
		s.fail(err)
		return err
	}
	s.subs = append(s.subs, presenceSubs...)

	s.transition(domain.StateAwaitingIdentity)
	return nil
}

// Join claims a display name. Any failure leaves the session awaiting an identity.
func (s *Session) Join(ctx context.Context, rawName string) (domain.Participant, error) {
	var (
		participant domain.Participant
		err         error
	)
	if callErr := s.call(ctx, func() { participant, err = s.join(ctx, rawName) }); callErr != nil {
		return domain.Participant{}, callErr
	}
	return participant, err
}

func (s *Session) join(ctx context.Context, rawName string) (domain.Participant, error) {
	switch s.status {
	case domain.StateAwaitingIdentity:
	case domain.StateActive:
		return domain.Participant{}, errors.ErrAlreadyJoined
	case domain.StateTerminated:
		return domain.Participant{}, errors.ErrTerminated
	default:
		return domain.Participant{}, errors.ErrInvalidState
	}

	participant, err := s.joiner.AttemptJoin(ctx, rawName)
	if err != nil {
		s.log.Debug("Join refused", "error", err)
		return domain.Participant{}, err
	}
	s.local.Claim(participant)
	s.transition(domain.StateActive)
	return participant, nil
}

// Send writes a message as the claimed identity.
func (s *Session) Send(ctx context.Context, text string) error {
	var err error
	if callErr := s.call(ctx, func() {
		if s.status == domain.StateTerminated {
			err = errors.ErrTerminated
			return
		}
		err = s.feed.Send(ctx, text)
	}); callErr != nil {
		return callErr
	}
	return err
}

// Leave removes the participant record, closes the subscriptions and terminates
// the session. Leaving a terminated session does nothing.
func (s *Session) Leave(ctx context.Context) error {
	err := s.call(ctx, func() { s.leave(ctx) })
	if stderrors.Is(err, errors.ErrTerminated) {
		return nil
	}
	return err
}

func (s *Session) leave(ctx context.Context) {
	if s.status == domain.StateTerminated {
		return
	}
	if s.status == domain.StateActive {
		if err := s.removeIdentity(ctx); err != nil {
			s.log.Warn("Participant record not removed on leave", "error", err)
		}
	}
	s.closeSubscriptions()
	s.local.Reset()
	s.transition(domain.StateTerminated)
}

// State can be read from any goroutine.
func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.current.Load())
}

// Roster returns the participants sorted by display name.
func (s *Session) Roster(ctx context.Context) ([]domain.Participant, error) {
	var roster []domain.Participant
	err := s.call(ctx, func() { roster = s.presence.Roster() })
	return roster, err
}

// Feed returns the current feed window, oldest first.
func (s *Session) Feed(ctx context.Context) ([]domain.ChatEvent, error) {
	var window []domain.ChatEvent
	err := s.call(ctx, func() { window = s.feed.Window() })
	return window, err
}

// Identity returns the claimed participant, if any.
func (s *Session) Identity(ctx context.Context) (domain.Participant, bool, error) {
	var (
		participant domain.Participant
		joined      bool
	)
	err := s.call(ctx, func() {
		if s.local.Joined && s.local.Identity != nil {
			participant, joined = *s.local.Identity, true
		}
	})
	return participant, joined, err
}

// Close leaves the session, stops the loop and waits for the pending
// notifications to reach the sinks.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = s.Leave(ctx)
		close(s.quit)
		<-s.done
		s.monitorCancel()
		s.fanout.Close()
		s.supervisor.Wait()
		s.cancel()
	})
	return err
}

func (s *Session) apply(apply services.Apply) {
	if s.status == domain.StateTerminated || s.status == domain.StateDisconnected {
		return
	}
	events, err := apply()
	if err != nil {
		s.fail(err)
		return
	}
	for _, e := range events {
		s.publish(e)
	}
}

// fail terminates the session after an unrecoverable error.
func (s *Session) fail(err error) {
	if s.status == domain.StateTerminated {
		return
	}
	s.log.Error("Session terminated", "error", err)
	if s.local.Joined {
		ctx, cancel := context.WithTimeout(context.Background(), removalTimeout)
		if removeErr := s.removeIdentity(ctx); removeErr != nil {
			s.log.Warn("Participant record not removed after failure", "error", removeErr)
		}
		cancel()
	}
	s.closeSubscriptions()
	s.local.Reset()
	s.transition(domain.StateTerminated)
	s.publish(event.FatalError{Message: FatalMessage, Err: err})
}

func (s *Session) removeIdentity(ctx context.Context) error {
	if s.local.Identity == nil {
		return nil
	}
	return s.store.Remove(ctx, contract.Ref{Path: services.PresencePath, Key: s.local.Identity.ID})
}

func (s *Session) closeSubscriptions() {
	for _, sub := range s.subs {
		if err := sub.Close(); err != nil {
			s.log.Debug("Subscription close failed", "error", err)
		}
	}
	s.subs = nil
}

func (s *Session) transition(next domain.SessionState) {
	previous := s.status
	s.status = next
	s.current.Store(int32(next))
	s.log.Info("Session state changed", "from", previous, "to", next)
	s.publish(event.StateChanged{Old: previous, New: next})
}

func (s *Session) publish(e event.DomainEvent) {
	s.fanout.Publish(s.ctx, e)
}
