// Package config reads the process environment contract (spec §6) once
// at startup and hands a fully-populated Config down to every
// constructor. Nothing downstream of cmd/tonequeue-server reads
// os.Getenv directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full environment contract a tonequeue-server process
// expects.
type Config struct {
	// StoreURL is the DSN for the Durable Store (e.g. a sqlite file::
	// or postgres:// URL consumed by store/sql).
	StoreURL string

	// BrokerURL is the DSN for the Queue Broker. In the reference
	// deployment this is the same database as StoreURL.
	BrokerURL string

	// IDPURL is the identity provider's token endpoint used for the
	// OAuth2 refresh-token grant (spec §4.3).
	IDPURL string

	// IDPClientID and IDPClientSecret authenticate this service to the
	// identity provider when exchanging a refresh token.
	IDPClientID     string
	IDPClientSecret string

	// ArtifactsRoot is the filesystem root the model cache and render
	// output are written under.
	ArtifactsRoot string

	// ModelRegistryURL is the base URL of the external model artifact
	// registry the Worker Lease Loop resolves model-stage references
	// against (spec.md §1, "Model artifact registry").
	ModelRegistryURL string

	// MaxAttempts bounds how many times the Worker retries a
	// transient render failure before failing the job permanently
	// (spec §4.5 step 9, §7). Transient credential and model-fetch
	// failures are retried without counting against it. Default 3.
	MaxAttempts int

	// JobWallClock bounds how long a job may run before the
	// Supervisor force-fails it with error_kind=timeout (spec §4.6).
	// Default 1800s.
	JobWallClock time.Duration

	// ProgressSilence is how long a Worker may go without reporting
	// progress before its lease is considered suspect. Default 300s.
	ProgressSilence time.Duration

	// RetentionDays is how long a terminal job's result artifact is
	// kept on disk before the Supervisor's retention GC unlinks it.
	// Default 14.
	RetentionDays int
}

// Load reads Config from the process environment, applying the
// defaults spec.md §5 calls for wherever a variable is unset. A set
// but unparsable value makes Load return an error.
func Load() (*Config, error) {
	cfg := &Config{
		StoreURL:         os.Getenv("STORE_URL"),
		BrokerURL:        os.Getenv("BROKER_URL"),
		IDPURL:           os.Getenv("IDP_URL"),
		IDPClientID:      os.Getenv("IDP_CLIENT_ID"),
		IDPClientSecret:  os.Getenv("IDP_CLIENT_SECRET"),
		ArtifactsRoot:    os.Getenv("ARTIFACTS_ROOT"),
		ModelRegistryURL: os.Getenv("MODEL_REGISTRY_URL"),
		MaxAttempts:      3,
		JobWallClock:     1800 * time.Second,
		ProgressSilence:  300 * time.Second,
		RetentionDays:    14,
	}

	if v, ok := os.LookupEnv("MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: MAX_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = n
	}

	if v, ok := os.LookupEnv("JOB_WALL_CLOCK"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: JOB_WALL_CLOCK: %w", err)
		}
		cfg.JobWallClock = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv("PROGRESS_SILENCE"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PROGRESS_SILENCE: %w", err)
		}
		cfg.ProgressSilence = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv("RETENTION_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: RETENTION_DAYS: %w", err)
		}
		cfg.RetentionDays = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.StoreURL == "" {
		return fmt.Errorf("config: STORE_URL is required")
	}
	if c.BrokerURL == "" {
		return fmt.Errorf("config: BROKER_URL is required")
	}
	if c.ArtifactsRoot == "" {
		return fmt.Errorf("config: ARTIFACTS_ROOT is required")
	}
	if c.ModelRegistryURL == "" {
		return fmt.Errorf("config: MODEL_REGISTRY_URL is required")
	}
	if c.IDPURL == "" {
		return fmt.Errorf("config: IDP_URL is required")
	}
	if c.IDPClientID == "" {
		return fmt.Errorf("config: IDP_CLIENT_ID is required")
	}
	if c.IDPClientSecret == "" {
		return fmt.Errorf("config: IDP_CLIENT_SECRET is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: MAX_ATTEMPTS must be >= 1")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("config: RETENTION_DAYS must be >= 0")
	}
	return nil
}

// Retention converts RetentionDays to a time.Duration for direct use
// in SupervisorConfig.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
