// Package config loads falld settings. Environment variables override the
// optional YAML file, which overrides defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	commoncfg "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/config"
)

// InsecureDefaultJWTSecret is refused at startup.
const InsecureDefaultJWTSecret = "dev-secret-change-me"

// Config falld configuration.
type Config struct {
	HTTP     HTTPConfig               `mapstructure:"http"`
	Database commoncfg.DatabaseConfig `mapstructure:"database"`
	Redis    commoncfg.RedisConfig    `mapstructure:"redis"`
	MQTT     commoncfg.MQTTConfig     `mapstructure:"mqtt"`
	Log      LogConfig                `mapstructure:"log"`
	Auth     AuthConfig               `mapstructure:"auth"`
	Discord  DiscordConfig            `mapstructure:"discord"`
	Stream   StreamConfig             `mapstructure:"stream"`
	Podium   PodiumConfig             `mapstructure:"podium"`
	Worker   WorkerConfig             `mapstructure:"worker"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig bearer token settings (HS256).
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// DiscordConfig webhook sink; empty WebhookURL disables it.
type DiscordConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FrontendURL string        `mapstructure:"frontend_url"`
}

// StreamConfig Redis stream sink, active only when Redis is enabled.
type StreamConfig struct {
	Name   string `mapstructure:"name"`
	MaxLen int64  `mapstructure:"max_len"`
}

type PodiumConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type WorkerConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// envBindings maps config keys to the environment variable names used by deployments.
var envBindings = map[string]string{
	"http.addr":             "HTTP_ADDR",
	"http.request_timeout":  "HTTP_REQUEST_TIMEOUT",
	"http.shutdown_timeout": "HTTP_SHUTDOWN_TIMEOUT",
	"http.cors_origin":      "CORS_ORIGIN",

	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.name":              "DB_NAME",
	"database.sslmode":           "DB_SSLMODE",
	"database.max_conns":         "DB_MAX_CONNS",
	"database.max_idle":          "DB_MAX_IDLE",
	"database.conn_max_lifetime": "DB_CONN_MAX_LIFETIME",

	"redis.enabled":  "REDIS_ENABLED",
	"redis.addr":     "REDIS_ADDR",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"mqtt.enabled":   "MQTT_ENABLED",
	"mqtt.broker":    "MQTT_BROKER",
	"mqtt.client_id": "MQTT_CLIENT_ID",
	"mqtt.username":  "MQTT_USERNAME",
	"mqtt.password":  "MQTT_PASSWORD",
	"mqtt.topic":     "MQTT_TOPIC",
	"mqtt.qos":       "MQTT_QOS",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",

	"auth.jwt_secret": "JWT_SECRET",
	"auth.token_ttl":  "JWT_TTL",

	"discord.webhook_url":  "DISCORD_WEBHOOK_URL",
	"discord.timeout":      "DISCORD_WEBHOOK_TIMEOUT",
	"discord.frontend_url": "FRONTEND_URL",

	"stream.name":    "EVENT_STREAM_NAME",
	"stream.max_len": "EVENT_STREAM_MAXLEN",

	"podium.cache_ttl": "PODIUM_CACHE_TTL",
	"worker.pool_size": "WORKER_POOL_SIZE",
}

// Load reads and validates the configuration needed to serve.
func Load(configFile string) (*Config, error) {
	cfg, err := Read(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Read reads configFile when non-empty, then environment variables, without
// validation. Used by commands that never serve requests.
func Read(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks for settings the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Auth.JWTSecret == "":
		return errors.New("JWT_SECRET must be set")
	case c.Auth.JWTSecret == InsecureDefaultJWTSecret:
		return errors.New("JWT_SECRET must not use the insecure default value")
	case c.HTTP.RequestTimeout <= 0:
		return errors.New("HTTP_REQUEST_TIMEOUT must be positive")
	case c.Worker.PoolSize <= 0:
		return errors.New("WORKER_POOL_SIZE must be positive")
	case c.MQTT.QoS > 2:
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.cors_origin", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "falls")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "falld-ingest")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "falls/+/events")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("discord.webhook_url", "")
	v.SetDefault("discord.timeout", "5s")
	v.SetDefault("discord.frontend_url", "")

	v.SetDefault("stream.name", "falls:events:stream")
	v.SetDefault("stream.max_len", 10000)

	v.SetDefault("podium.cache_ttl", "5s")
	v.SetDefault("worker.pool_size", 8)
}
