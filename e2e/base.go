package e2e

import (
	"context"
	"fmt"
	"livechat/domain"
	"livechat/runtime"
	"livechat/sink"
	"livechat/transport"
	"log/slog"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseStoreSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseStoreSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.StoreURL == "" {
		s.T().Skip("STORE_URL is not set")
	}
}

// Participant is a session connected to the running store with its feed recorded.
type Participant struct {
	Session *runtime.Session
	Client  *transport.Client
	Feed    chan domain.ChatEvent
	Roster  chan []domain.Participant
}

// Connect dials the store and starts a session
func (s *BaseStoreSuite) Connect(name string) *Participant {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := transport.Dial(ctx, s.Config.StoreURL, transport.Credentials{
		ProjectID: s.Config.ProjectID,
		APIKey:    s.Config.APIKey,
		AppID:     "e2e",
	}, log)
	s.Require().NoError(err, "Failed to connect to the store at "+s.Config.StoreURL)

	p := &Participant{
		Client: client,
		Feed:   make(chan domain.ChatEvent, 256),
		Roster: make(chan []domain.Participant, 256),
	}
	p.Session = runtime.NewSession(client, log, runtime.WithSinks(sink.Callbacks{
		OnFeedEvent:     func(e domain.ChatEvent) { p.Feed <- e },
		OnRosterChanged: func(ps []domain.Participant) { p.Roster <- ps },
	}))
	s.Require().NoError(p.Session.Start(ctx))
	s.T().Cleanup(func() {
		_ = p.Session.Close()
		_ = p.Client.Close()
	})
	return p
}

// WaitFeed blocks until an entry matching fn is received
func (s *BaseStoreSuite) WaitFeed(p *Participant, fn func(domain.ChatEvent) bool) domain.ChatEvent {
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-p.Feed:
			if fn(e) {
				return e
			}
		case <-deadline:
			s.FailNow("feed entry not received")
			return nil
		}
	}
}

// WaitRoster blocks until a roster matching fn is received
func (s *BaseStoreSuite) WaitRoster(p *Participant, fn func([]domain.Participant) bool) []domain.Participant {
	deadline := time.After(10 * time.Second)
	for {
		select {
		case roster := <-p.Roster:
			if fn(roster) {
				return roster
			}
		case <-deadline:
			s.FailNow("roster not received")
			return nil
		}
	}
}
