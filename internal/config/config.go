// Package config loads process configuration once at startup into a typed
// struct, following the env-tag convention already used (but never wired to
// a parser) by pkg/db in this tree.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// GitProviderConfig is one entry of the GIT_PROVIDERS JSON array.
type GitProviderConfig struct {
	Type          string   `json:"type"`
	Host          string   `json:"host"`
	Orgs          []string `json:"orgs"`
	CredentialEnv string   `json:"credential_env"`
}

// Config is the process-wide configuration, bound from the environment once
// at startup in cmd/server and threaded explicitly through every component
// from there — never read ad hoc from package-level globals.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	GitProvidersJSON string `env:"GIT_PROVIDERS" envDefault:"[]"`

	PlaybooksDir   string `env:"ANSIBLE_PLAYBOOKS_DIR" envDefault:"./playbooks"`
	CollectionsDir string `env:"ANSIBLE_COLLECTIONS_DIR" envDefault:"./collections"`

	JobTTL              time.Duration `env:"JOB_TTL_SECONDS" envDefault:"86400s"`
	StaleJobThreshold   time.Duration `env:"STALE_JOB_THRESHOLD_MINUTES" envDefault:"60m"`
	StaleSweepInterval  time.Duration `env:"STALE_SWEEP_INTERVAL_MINUTES" envDefault:"10m"`
	GitOperationTimeout time.Duration `env:"GIT_OPERATION_TIMEOUT_SECONDS" envDefault:"120s"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30s"`

	WorkerCount int `env:"WORKER_COUNT" envDefault:"4"`

	SentryDSN string `env:"SENTRY_DSN" envDefault:""`
}

// ErrInvalidGitProviders is returned when GIT_PROVIDERS is not valid JSON.
var ErrInvalidGitProviders = errors.New("config: GIT_PROVIDERS is not a valid JSON array")

// Load reads the process environment into a Config, applying defaults and
// failing fast on missing required values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}
	if _, err := cfg.GitProviders(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GitProviders decodes the GIT_PROVIDERS environment value.
func (c *Config) GitProviders() ([]GitProviderConfig, error) {
	var providers []GitProviderConfig
	if err := json.Unmarshal([]byte(c.GitProvidersJSON), &providers); err != nil {
		return nil, errors.Join(ErrInvalidGitProviders, err)
	}
	return providers, nil
}

// SentryEnabled reports whether the error-reporting sink is configured.
func (c *Config) SentryEnabled() bool {
	return c.SentryDSN != ""
}
