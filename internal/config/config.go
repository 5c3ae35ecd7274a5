package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spendbook/internal/core"
)

type Config struct {
	// Backend endpoints
	BaseURL string

	// Static credentials sent on every request
	APIKey    string
	AuthToken string
	AppName   string

	// Session persistence
	SessionDBPath string

	// Repository
	FetchLimit int

	// Transport
	HTTPTimeout time.Duration
}

func Load() *Config {
	return &Config{
		BaseURL:   getEnv("CLOUDIO_BASE_URL", ""),
		APIKey:    getEnv("CLOUDIO_API_KEY", ""),
		AuthToken: getEnv("CLOUDIO_AUTH_TOKEN", ""),
		AppName:   getEnv("CLOUDIO_APP_NAME", "Training"),

		SessionDBPath: getEnv("SESSION_DB_PATH", "./data/session.db"),

		FetchLimit: getEnvInt("FETCH_LIMIT", 1000),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
	}
}

// Validate validates the configuration and returns an error if invalid.
// A missing base URL wraps core.ErrConfiguration: the client fails closed at
// startup rather than discovering the gap on first login.
func (c *Config) Validate() error {
	var errs []string

	if c.BaseURL == "" {
		errs = append(errs, "CLOUDIO_BASE_URL must be set")
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid base URL '%s': %v", c.BaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("invalid base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}

	if c.AppName == "" {
		errs = append(errs, "application name cannot be empty")
	}

	if c.SessionDBPath == "" {
		errs = append(errs, "session database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SessionDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create session database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.FetchLimit < 1 {
		errs = append(errs, fmt.Sprintf("invalid fetch limit %d: must be at least 1", c.FetchLimit))
	} else if c.FetchLimit > 10000 {
		errs = append(errs, fmt.Sprintf("invalid fetch limit %d: must be at most 10000", c.FetchLimit))
	}

	if c.HTTPTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 5*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid HTTP timeout %v: must be at most 5 minutes", c.HTTPTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n- %s", core.ErrConfiguration, strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
