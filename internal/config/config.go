// Package config loads the server's settings from the environment and the
// marketplace catalog from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env          string `envconfig:"APP_ENV" default:"dev"`
	Port         string `envconfig:"APP_PORT" default:"8080"`
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	AccessTTLMin int    `envconfig:"ACCESS_TOKEN_TTL_MIN" default:"60"`
	BcryptCost   int    `envconfig:"BCRYPT_COST" default:"10"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// CatalogPath seeds airports, airlines, agents, clients and operators
	// when no snapshot is available.
	CatalogPath string `envconfig:"CATALOG_PATH" default:"catalog.yaml"`

	// SnapshotDriver is one of file, mysql or postgres.
	SnapshotDriver string `envconfig:"SNAPSHOT_DRIVER" default:"file"`
	SnapshotPath   string `envconfig:"SNAPSHOT_PATH" default:"data/marketplace.snapshot"`
	DBDSN          string `envconfig:"DB_DSN"`

	// AMQPURL enables domain events when set.
	AMQPURL string `envconfig:"AMQP_URL"`

	AgentWorkers   int `envconfig:"AGENT_WORKERS" default:"3"`
	AgentQueueSize int `envconfig:"AGENT_QUEUE_SIZE" default:"64"`

	// ExpirySweepInterval of 0 leaves expiry purely lazy.
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"0s"`
}

// AccessTTL is the lifetime of issued access tokens.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// Load reads Config from the environment and checks the values that
// envconfig cannot.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET must not be empty")
	}
	switch c.SnapshotDriver {
	case "file":
	case "mysql", "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("config: DB_DSN is required for snapshot driver %q", c.SnapshotDriver)
		}
	default:
		return fmt.Errorf("config: unknown SNAPSHOT_DRIVER %q", c.SnapshotDriver)
	}
	if c.AgentWorkers < 1 {
		return fmt.Errorf("config: AGENT_WORKERS must be positive, got %d", c.AgentWorkers)
	}
	if c.AgentQueueSize < 1 {
		return fmt.Errorf("config: AGENT_QUEUE_SIZE must be positive, got %d", c.AgentQueueSize)
	}
	if c.ExpirySweepInterval < 0 {
		return fmt.Errorf("config: EXPIRY_SWEEP_INTERVAL must not be negative")
	}
	return nil
}
