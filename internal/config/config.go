package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendLocal  = "local"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Presence    PresenceConfig
	Broadcast   BroadcastConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type PresenceConfig struct {
	Backend       string
	TTL           time.Duration
	SweepInterval time.Duration
}

type BroadcastConfig struct {
	Backend string
	Channel string
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Addr:           getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			SendBufferSize: getEnvAsInt("WS_SEND_BUFFER", 256),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "meetmesh"),
		},
		Presence: PresenceConfig{
			Backend:       getEnv("PRESENCE_BACKEND", BackendRedis),
			TTL:           getEnvAsDuration("PRESENCE_TTL", 24*time.Hour),
			SweepInterval: getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", time.Minute),
		},
		Broadcast: BroadcastConfig{
			Backend: getEnv("BROADCAST_BACKEND", BackendRedis),
			Channel: getEnv("BROADCAST_CHANNEL", "meetmesh:conversations"),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvAsInt("SEND_RATE_LIMIT", 60),
			Window: getEnvAsDuration("SEND_RATE_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// NeedsRedis reports whether any configured backend talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Presence.Backend == BackendRedis ||
		c.Broadcast.Backend == BackendRedis ||
		c.RateLimit.Limit > 0
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN must be set")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Presence.Backend != BackendRedis && c.Presence.Backend != BackendMemory {
		return fmt.Errorf("PRESENCE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.Presence.Backend)
	}
	if c.Broadcast.Backend != BackendRedis && c.Broadcast.Backend != BackendLocal {
		return fmt.Errorf("BROADCAST_BACKEND must be %q or %q, got %q", BackendRedis, BackendLocal, c.Broadcast.Backend)
	}
	if c.Presence.TTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be positive")
	}
	if c.Presence.Backend == BackendMemory && c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("PRESENCE_SWEEP_INTERVAL must be positive")
	}
	if c.Server.SendBufferSize <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("SEND_RATE_WINDOW must be positive when SEND_RATE_LIMIT is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
