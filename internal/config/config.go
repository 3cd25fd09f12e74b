package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Env     string `mapstructure:"env"`
	Feed    FeedConfig
	Markets MarketsConfig
	Auth    AuthConfig
	Redis   RedisConfig
	Log     LogConfig
}

// FeedConfig holds streaming-feed settings. Zero durations and counts fall
// back to the selected protocol variant's defaults.
type FeedConfig struct {
	URL                  string `mapstructure:"url"`
	Variant              string `mapstructure:"variant"`
	BackoffBaseMs        int    `mapstructure:"backoff_base_ms"`
	MaxReconnectAttempts int    `mapstructure:"max_reconnect_attempts"`
	HeartbeatSec         int    `mapstructure:"heartbeat_sec"`
}

// BackoffBase returns the configured backoff base as a duration.
func (f FeedConfig) BackoffBase() time.Duration {
	return time.Duration(f.BackoffBaseMs) * time.Millisecond
}

// Heartbeat returns the configured heartbeat interval as a duration.
func (f FeedConfig) Heartbeat() time.Duration {
	return time.Duration(f.HeartbeatSec) * time.Second
}

// MarketsConfig holds snapshot-API settings.
type MarketsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	ClobURL   string `mapstructure:"clob_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// Timeout returns the configured request timeout as a duration.
func (m MarketsConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// AuthConfig holds credential settings. PrivateKey enables in-process
// credential derivation; the explicit triple takes precedence when set.
// With neither, the terminal runs in anonymous market-channel mode.
type AuthConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`
	Key        string `mapstructure:"key"`
	Secret     string `mapstructure:"secret"`
	Passphrase string `mapstructure:"passphrase"`
}

// RedisConfig holds the optional book-mirror sink settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from environment variables prefixed with POLYBURG_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLYBURG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")

	// Feed defaults; zero backoff/attempt/heartbeat values defer to the
	// protocol variant.
	v.SetDefault("feed.url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("feed.variant", "clob")
	v.SetDefault("feed.backoff_base_ms", 0)
	v.SetDefault("feed.max_reconnect_attempts", 0)
	v.SetDefault("feed.heartbeat_sec", 0)

	// Markets defaults
	v.SetDefault("markets.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("markets.clob_url", "https://clob.polymarket.com")
	v.SetDefault("markets.timeout_ms", 10000)

	// Auth defaults
	v.SetDefault("auth.chain_id", 137)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")

	cfg := &Config{}

	cfg.Env = v.GetString("env")

	cfg.Feed = FeedConfig{
		URL:                  v.GetString("feed.url"),
		Variant:              v.GetString("feed.variant"),
		BackoffBaseMs:        v.GetInt("feed.backoff_base_ms"),
		MaxReconnectAttempts: v.GetInt("feed.max_reconnect_attempts"),
		HeartbeatSec:         v.GetInt("feed.heartbeat_sec"),
	}

	cfg.Markets = MarketsConfig{
		BaseURL:   v.GetString("markets.base_url"),
		ClobURL:   v.GetString("markets.clob_url"),
		APIKey:    v.GetString("markets.api_key"),
		TimeoutMs: v.GetInt("markets.timeout_ms"),
	}

	cfg.Auth = AuthConfig{
		PrivateKey: v.GetString("auth.private_key"),
		ChainID:    v.GetInt64("auth.chain_id"),
		Key:        v.GetString("auth.key"),
		Secret:     v.GetString("auth.secret"),
		Passphrase: v.GetString("auth.passphrase"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("redis.enabled"),
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	cfg.Log = LogConfig{
		Level: v.GetString("log.level"),
	}

	return cfg, nil
}
