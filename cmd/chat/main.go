package main

import (
	"context"
	"fmt"
	"livechat/internal"
	"livechat/moderation"
	"livechat/runtime"
	"livechat/runtime/workers"
	"livechat/sink"
	"livechat/transport"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/text/language"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	storeConfig, err := runtime.Initialize(config.StoreValues())
	if err != nil {
		return err
	}
	collation, err := language.Parse(config.Collation)
	if err != nil {
		return fmt.Errorf("config error: CHAT_COLLATION: %w", err)
	}

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Store client
	client, err := transport.Dial(ctx, storeConfig.DatabaseURL, transport.Credentials{
		ProjectID: storeConfig.ProjectID,
		APIKey:    storeConfig.APIKey,
		AppID:     storeConfig.AppID,
	}, log, transport.WithSubscriptionQueue(config.SubscriptionQueue))
	if err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	log.Info("Connected to store", "url", storeConfig.DatabaseURL, "connection", client.Connection())
	defer func() { _ = client.Close() }()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer func() {
		stopHeartbeat()
		sup.Wait()
	}()
	if config.HeartbeatInterval > 0 {
		sup.Start(heartbeatCtx, workers.NewHeartbeatWorker(log, client, config.HeartbeatInterval, config.HeartbeatInterval/2,
			func(error) { _ = client.Close() }))
	}

	// 4. Session
	lost := make(chan struct{})
	options := []runtime.Option{
		runtime.WithCollation(collation),
		runtime.WithRestartInterval(config.RestartInterval),
		runtime.WithSinks(
			sink.NewConsole(os.Stdout, time.Local, config.Colours),
			sink.Callbacks{OnFatalError: func(string, error) { close(lost) }},
		),
	}
	if config.QueueMonitor > 0 {
		options = append(options, runtime.WithQueueMonitor(config.QueueMonitor))
	}
	if config.Moderation {
		moderator, err := newModerator(config, log)
		if err != nil {
			return err
		}
		options = append(options, runtime.WithInspector(moderator))
	}
	session := runtime.NewSession(client, log, options...)
	defer func() { _ = session.Close() }()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("chat unavailable: %w", err)
	}

	// 5. Interaction until /quit, a signal or the loss of the connection
	return Prompt(ctx, session, os.Stdin, os.Stdout, lost)
}

func newModerator(config Config, log *slog.Logger) (*moderation.Moderator, error) {
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, fmt.Errorf("config error: CHAT_CHARACTER_REPLACEMENT: %w", err)
	}
	data, err := runtime.NewCensoredLoader(nil).LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	log.Info("Censored words loaded", "count", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, char, log)
}
