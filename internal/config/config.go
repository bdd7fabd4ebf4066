// Package config reads tokenmeter settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds every setting the CLI and the library wiring need.
type Config struct {
	Gemini struct {
		APIKey  string `env:"GEMINI_API_KEY" env-description:"Gemini API key; empty leaves the client unconfigured"`
		BaseURL string `env:"GEMINI_API_BASE_URL" env-description:"Override of the Gemini REST endpoint"`
		Model   string `env:"GEMINI_MODEL" env-default:"gemini-2.5-pro" env-description:"Model used for every request"`
	}

	Retry struct {
		Delay       time.Duration `env:"RETRY_DELAY" env-default:"1s" env-description:"Wait between attempts after a 503"`
		MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" env-default:"0" env-description:"Cap on attempts per request; 0 retries forever"`
	}

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"0s" env-description:"Deadline per provider attempt; 0 disables it"`
	RateLimitPerMin int           `env:"RATE_LIMIT_PER_MIN" env-default:"0" env-description:"Client-side request pacing; 0 disables it"`
	PricingFile     string        `env:"PRICING_FILE" env-description:"YAML pricing table overriding the model defaults"`
	LedgerPath      string        `env:"LEDGER_PATH" env-description:"SQLite usage ledger; empty disables persistence"`

	Log struct {
		Level  string `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
		Format string `env:"LOG_FORMAT" env-default:"text" env-description:"text or json"`
		File   string `env:"LOG_FILE" env-description:"Rotating log file; empty logs to stderr"`
	}
}

// Load reads envFiles (".env" when none are given) into the process
// environment without overriding variables that are already set, then parses
// the environment into a Config. Missing files are not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that cannot be wired.
func (c *Config) Validate() error {
	var errs []error
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("RETRY_DELAY must not be negative, got %s", c.Retry.Delay))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must not be negative, got %d", c.Retry.MaxAttempts))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout))
	}
	if c.RateLimitPerMin < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MIN must not be negative, got %d", c.RateLimitPerMin))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Description lists every supported variable, for CLI help output.
func Description() string {
	header := "Environment variables:"
	description, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return header
	}
	return description
}
