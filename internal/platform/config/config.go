// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"greenchain/pkg/domain"
	pstrings "greenchain/pkg/platform/strings"
)

// RedisConfig holds connection settings for the capability cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds broker settings for the event feed. Empty brokers
// disable Kafka entirely.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// DatabaseURL selects the lifecycle mirror backend. Empty means the
	// in-memory store.
	DatabaseURL string

	Redis RedisConfig
	Kafka KafkaConfig

	// FungibleTokenAddr is the deployed carbon token contract.
	FungibleTokenAddr domain.Address
}

// FromEnv builds a Config from environment variables, loading .env first if
// one is present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:          envOr("GREENCHAIN_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("JWT_ISSUER", "greenchain"),
		JWTAudience:   envOr("JWT_AUDIENCE", "greenchain-api"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			ConsumerGroup: envOr("KAFKA_CONSUMER_GROUP", "greenchain-coordinator"),
		},
	}

	addr, err := domain.ParseAddress(envOr("FUNGIBLE_TOKEN_ADDR", string(domain.ZeroAddress)))
	if err != nil {
		return Config{}, err
	}
	cfg.FungibleTokenAddr = addr
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(s, ","))
}
