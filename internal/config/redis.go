package config

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server backing the search cache and the
// rate limiter. Addr wins over Host and Port when both are set.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
}

func (c RedisConfig) address() string {
	switch {
	case c.Addr != "":
		return c.Addr
	case c.Host != "" && c.Port != "":
		return c.Host + ":" + c.Port
	}
	return "localhost:6379"
}

// NewRedisClient connects to Redis as configured by REDIS_* variables. It
// returns nil when the server cannot be reached; callers then run without
// caching and rate limiting.
func NewRedisClient(logger *slog.Logger) *redis.Client {
	var c RedisConfig
	if err := envconfig.Process("", &c); err != nil {
		logger.Warn("redis config invalid, cache and rate limit disabled", "err", err)
		return nil
	}
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, cache and rate limit disabled", "addr", c.address(), "err", err)
		client.Close()
		return nil
	}
	return client
}
