package runtime

import (
	stderrors "errors"
	"livechat/errors"
	"net/url"
	"reflect"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

// StoreConfig is the static configuration a client needs to reach the store.
// Fields are declared in the order missing keys are reported.
type StoreConfig struct {
	APIKey            string `env:"apiKey" validate:"required"`
	AuthDomain        string `env:"authDomain" validate:"required"`
	DatabaseURL       string `env:"databaseURL" validate:"required,storeurl"`
	ProjectID         string `env:"projectId" validate:"required"`
	StorageBucket     string `env:"storageBucket" validate:"required"`
	MessagingSenderID string `env:"messagingSenderId" validate:"required"`
	AppID             string `env:"appId" validate:"required"`
}

// RequiredKeys lists every configuration key, in declaration order.
var RequiredKeys = []string{
	"apiKey", "authDomain", "databaseURL", "projectId",
	"storageBucket", "messagingSenderId", "appId",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report errors with the configuration key instead of the Go field name.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("env"), ",")
		return name
	})
	_ = v.RegisterValidation("storeurl", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		if err != nil || u.Host == "" {
			return false
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
			return true
		}
		return false
	})
	return v
}

// Initialize validates the configuration map. Every missing or invalid key is
// reported at once in a *errors.ConfigError.
func Initialize(values map[string]string) (StoreConfig, error) {
	trimmed := make(env.EnvSet, len(values))
	for key, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			trimmed[key] = value
		}
	}

	var cfg StoreConfig
	if err := env.Unmarshal(trimmed, &cfg); err != nil {
		return StoreConfig{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		var fieldErrors validator.ValidationErrors
		if !stderrors.As(err, &fieldErrors) {
			return StoreConfig{}, err
		}
		configErr := &errors.ConfigError{}
		for _, fe := range fieldErrors {
			if fe.Tag() == "required" {
				configErr.Missing = append(configErr.Missing, fe.Field())
				continue
			}
			configErr.Invalid = append(configErr.Invalid, fe.Field())
		}
		return StoreConfig{}, configErr
	}
	return cfg, nil
}

// ToMap is the inverse of Initialize.
func (c StoreConfig) ToMap() map[string]string {
	es, err := env.Marshal(&c)
	if err != nil {
		return nil
	}
	return es
}
