package internal

import (
	"fmt"
	"time"
)

// Config is read by the store server from the environment.
type Config struct {
	Host               string        `env:"STORE_HOST,default=localhost"`
	Port               int           `env:"STORE_PORT,default=8080"`
	BadgerFilepath     string        `env:"BADGER_FILEPATH,required=true"`
	ProjectID          string        `env:"PROJECT_ID,required=true"`
	APIKey             string        `env:"API_KEY,required=true"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=15s"`
	HeartbeatTimeout   time.Duration `env:"HEARTBEAT_TIMEOUT,default=5s"`
	SubscriptionBuffer int           `env:"SUBSCRIPTION_BUFFER,default=1024"`
	RestartInterval    time.Duration `env:"RESTART_INTERVAL,default=1s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	InspectEndpoint    string        `env:"INSPECT_ENDPOINT"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"replacement must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
