package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNATS     = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Messaging network
	Domain      string // Local domain users belong to
	ServiceName string // Registered as ServiceName.Domain
	Transport   string // nats or redis
	NatsURL     string
	NatsSubject string

	// Storage
	PropertyStore string // sqlite, postgres, redis or memory
	Directory     string // sqlite, postgres or memory
	DatabaseURL   string
	SQLitePath    string
	RedisURL      string

	// HTTP
	AdminToken        string // Admin routes are disabled when empty
	TrustProxyHeaders bool   // Take the caller IP from X-Forwarded-For / X-Real-IP

	// Rate limiting (requires REDIS_URL)
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables and an optional
// sendmessage.yaml in the working directory or /etc/sendmessage.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	cfg, err := load(viper.New())
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func load(v *viper.Viper) (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	v.SetConfigName("sendmessage")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/sendmessage")
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("domain", "localhost")
	v.SetDefault("service_name", "sendmessage")
	v.SetDefault("transport", BackendNATS)
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("nats_subject", "sendmessage.messages")
	v.SetDefault("property_store", BackendSQLite)
	v.SetDefault("directory", BackendSQLite)
	v.SetDefault("sqlite_path", "./data/sendmessage.db")
	v.SetDefault("trust_proxy_headers", false)
	v.SetDefault("auto_block_enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:              v.GetString("port"),
		Env:               v.GetString("env"),
		Domain:            strings.ToLower(v.GetString("domain")),
		ServiceName:       v.GetString("service_name"),
		Transport:         strings.ToLower(v.GetString("transport")),
		NatsURL:           v.GetString("nats_url"),
		NatsSubject:       v.GetString("nats_subject"),
		PropertyStore:     strings.ToLower(v.GetString("property_store")),
		Directory:         strings.ToLower(v.GetString("directory")),
		DatabaseURL:       v.GetString("database_url"),
		SQLitePath:        v.GetString("sqlite_path"),
		RedisURL:          v.GetString("redis_url"),
		AdminToken:        v.GetString("admin_token"),
		TrustProxyHeaders: v.GetBool("trust_proxy_headers"),
		AutoBlockEnabled:  v.GetBool("auto_block_enabled"),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	for _, entry := range strings.Split(v.GetString("rate_limit_whitelist"), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PropertyStore {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("PROPERTY_STORE %q is not one of memory, sqlite, postgres, redis", c.PropertyStore)
	}
	switch c.Directory {
	case BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("DIRECTORY %q is not one of memory, sqlite, postgres", c.Directory)
	}
	switch c.Transport {
	case BackendNATS, BackendRedis:
	default:
		return fmt.Errorf("TRANSPORT %q is not one of nats, redis", c.Transport)
	}

	if c.UsesBackend(BackendPostgres) && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the postgres backend")
	}
	if c.UsesBackend(BackendRedis) && c.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis backend")
	}

	// In production, in-process state would not survive restarts or be shared
	if c.Env == "production" && (c.PropertyStore == BackendMemory || c.Directory == BackendMemory) {
		return errors.New("the memory backend is not allowed in production")
	}
	return nil
}

// UsesBackend reports whether any component is configured to use backend.
func (c *Config) UsesBackend(backend string) bool {
	return c.PropertyStore == backend || c.Directory == backend || c.Transport == backend
}

// ServiceAddress is the address the relay registers on the network.
func (c *Config) ServiceAddress() string {
	return c.ServiceName + "." + c.Domain
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
