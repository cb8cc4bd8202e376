package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
)

// Config holds server configuration values.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Delivery DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	Bus      BusConfig      `mapstructure:"bus" yaml:"bus"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MaxMessageBytes caps one inbound websocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// WSRateLimit is inbound websocket frames per second per connection; 0 disables.
	WSRateLimit float64  `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type StorageConfig struct {
	// Driver is sqlite or pebble.
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Path is the sqlite file or the pebble directory.
	Path string `mapstructure:"path" yaml:"path"`
}

type DeliveryConfig struct {
	Mode       string        `mapstructure:"mode" yaml:"mode"`
	GraceDelay time.Duration `mapstructure:"grace_delay" yaml:"grace_delay"`
}

type PresenceConfig struct {
	// Backend is memory or redis.
	Backend       string `mapstructure:"backend" yaml:"backend"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	// Node identifies this process in shared presence and in the kafka consumer group.
	Node string `mapstructure:"node" yaml:"node"`
}

type BusConfig struct {
	// Backend is memory or kafka.
	Backend string   `mapstructure:"backend" yaml:"backend"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DefaultJWTSecret is only meant for local development.
const DefaultJWTSecret = "dev-secret-change-me"

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			MaxMessageBytes:   64 << 10,
			WSRateLimit:       20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		JWT: JWTConfig{
			Secret:   DefaultJWTSecret,
			Issuer:   "cartchat",
			Audience: "cartchat",
			TTL:      24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "cartchat.db",
		},
		Delivery: DeliveryConfig{
			Mode:       string(delivery.ModePresence),
			GraceDelay: time.Second,
		},
		Presence: PresenceConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			Node:      "node-1",
		},
		Bus: BusConfig{
			Backend: "memory",
			Brokers: []string{"localhost:9092"},
			Topic:   "cartchat.events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver. It is
// used for command line overrides.
func (c *Config) UpdateFrom(other Config) {
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.ReadHeaderTimeout != 0 {
		c.Server.ReadHeaderTimeout = other.Server.ReadHeaderTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Storage.Driver != "" {
		c.Storage.Driver = other.Storage.Driver
	}
	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}
	if other.Delivery.Mode != "" {
		c.Delivery.Mode = other.Delivery.Mode
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.WSRateLimit < 0 {
		errs = append(errs, errors.New("server.ws_rate_limit must not be negative"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}

	switch c.Storage.Driver {
	case "sqlite", "pebble":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if _, err := delivery.ParseMode(c.Delivery.Mode); err != nil {
		errs = append(errs, fmt.Errorf("delivery.mode: %w", err))
	}
	if c.Delivery.GraceDelay < 0 {
		errs = append(errs, errors.New("delivery.grace_delay must not be negative"))
	}

	switch c.Presence.Backend {
	case "memory":
	case "redis":
		if c.Presence.RedisAddr == "" {
			errs = append(errs, errors.New("presence.redis_addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown presence.backend %q", c.Presence.Backend))
	}
	if c.Presence.Node == "" {
		errs = append(errs, errors.New("presence.node is required"))
	}

	switch c.Bus.Backend {
	case "memory":
	case "kafka":
		if len(c.Bus.Brokers) == 0 || c.Bus.Topic == "" {
			errs = append(errs, errors.New("bus.brokers and bus.topic are required for kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus.backend %q", c.Bus.Backend))
	}

	return errors.Join(errs...)
}
