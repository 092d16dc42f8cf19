package main

import "time"

type Config struct {
	APIKey            string        `env:"CHAT_API_KEY"`
	AuthDomain        string        `env:"CHAT_AUTH_DOMAIN"`
	DatabaseURL       string        `env:"CHAT_DATABASE_URL"`
	ProjectID         string        `env:"CHAT_PROJECT_ID"`
	StorageBucket     string        `env:"CHAT_STORAGE_BUCKET"`
	MessagingSenderID string        `env:"CHAT_MESSAGING_SENDER_ID"`
	AppID             string        `env:"CHAT_APP_ID"`
	LogLevel          string        `env:"LOG_LEVEL,default=WARN"`
	Moderation        bool          `env:"CHAT_MODERATION,default=false"`
	CharReplacement   string        `env:"CHAT_CHARACTER_REPLACEMENT,default=*"`
	Collation         string        `env:"CHAT_COLLATION,default=und"`
	Colours           bool          `env:"CHAT_COLOURS,default=true"`
	HeartbeatInterval time.Duration `env:"CHAT_HEARTBEAT_INTERVAL,default=20s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s"`
	QueueMonitor      time.Duration `env:"CHAT_QUEUE_MONITOR"`
	SubscriptionQueue int           `env:"CHAT_SUBSCRIPTION_BUFFER,default=1024"`
}

// StoreValues returns the static store configuration keyed as runtime.Initialize expects.
func (c Config) StoreValues() map[string]string {
	return map[string]string{
		"apiKey":            c.APIKey,
		"authDomain":        c.AuthDomain,
		"databaseURL":       c.DatabaseURL,
		"projectId":         c.ProjectID,
		"storageBucket":     c.StorageBucket,
		"messagingSenderId": c.MessagingSenderID,
		"appId":             c.AppID,
	}
}
