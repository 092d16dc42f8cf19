package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// STORE_URL points at a running storeserver, the suite is skipped without it
	StoreURL  string `envconfig:"STORE_URL"`
	ProjectID string `envconfig:"PROJECT_ID" default:"livechat"`
	APIKey    string `envconfig:"API_KEY"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
