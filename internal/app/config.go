package app

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the client and the stub server.
type Config struct {
	APIBaseURL      string        `envconfig:"API_BASE_URL" default:"http://127.0.0.1:8090/api"`
	APITimeout      time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	APIMaxRetries   int           `envconfig:"API_MAX_RETRIES" default:"2"`
	APIRetryBackoff time.Duration `envconfig:"API_RETRY_BACKOFF" default:"500ms"`

	NotifyPollInterval time.Duration `envconfig:"NOTIFY_POLL_INTERVAL" default:"30s"`

	SessionFile string `envconfig:"SESSION_FILE"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	StubAddr       string        `envconfig:"STUB_ADDR" default:":8090"`
	StubRateLimit  int           `envconfig:"STUB_RATE_LIMIT" default:"120"`
	StubRateWindow time.Duration `envconfig:"STUB_RATE_WINDOW" default:"1m"`
}

// LoadConfig reads configuration from a .env file (when present) and the
// environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("api base url must be provided")
	}
	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.SessionFile = filepath.Join(dir, "procura", "session.json")
	}
	return &cfg, nil
}
