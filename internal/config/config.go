// Package config loads the chat server configuration. Values come from
// DefaultConfig, then an optional YAML file named by CHAT_CONFIG_FILE, then
// environment variables (a .env file in the working directory is loaded
// first and never overrides variables already set).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Upload    UploadConfig    `yaml:"upload"`
	WS        WSConfig        `yaml:"ws"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	WebOrigins      []string      `yaml:"web_origins"` // CORS allow list; "*" allows any
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory | postgres
	DatabaseURL string `yaml:"database_url"`
}

// RedisConfig enables the shared message rate limiter. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig enables the NATS room bus. Empty URL keeps events in process.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// UploadConfig selects attachment storage. Empty MongoURI keeps uploads in
// memory.
type UploadConfig struct {
	MongoURI      string `yaml:"mongodb_uri"`
	Database      string `yaml:"mongodb_database"`
	Bucket        string `yaml:"bucket"`
	PublicBaseURL string `yaml:"public_base_url"`
	MaxBytes      int64  `yaml:"max_bytes"`
}

type WSConfig struct {
	MaxConnections    int           `yaml:"max_connections"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
}

type RateLimitConfig struct {
	HTTPPerSec    float64       `yaml:"http_per_sec"`
	HTTPBurst     int           `yaml:"http_burst"`
	MessageLimit  int           `yaml:"message_limit"`
	MessageWindow time.Duration `yaml:"message_window"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			WebOrigins:      []string{"http://localhost:5173"},
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Driver: DriverMemory},
		Upload: UploadConfig{
			Database: "chat",
			Bucket:   "chat_attachments",
			MaxBytes: 10 << 20,
		},
		WS: WSConfig{
			MaxConnections:    100000,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			HTTPPerSec:    600.0 / (15 * 60),
			HTTPBurst:     60,
			MessageLimit:  20,
			MessageWindow: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	return load(".env")
}

func load(dotenv string) (*Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", dotenv, err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv("CHAT_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("LISTEN_ADDR", &c.Server.ListenAddr)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("STORE_DRIVER", &c.Store.Driver)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("NATS_URL", &c.NATS.URL)
	str("MONGODB_URI", &c.Upload.MongoURI)
	str("MONGODB_DATABASE", &c.Upload.Database)
	str("UPLOAD_BUCKET", &c.Upload.Bucket)
	str("UPLOAD_PUBLIC_BASE_URL", &c.Upload.PublicBaseURL)

	if v := os.Getenv("WEB_ORIGIN"); v != "" {
		c.Server.WebOrigins = splitList(v)
	}

	var errs []error
	parse := func(key string, fn func(string) error) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
		}
	}
	parse("UPLOAD_MAX_BYTES", func(v string) (err error) {
		c.Upload.MaxBytes, err = strconv.ParseInt(v, 10, 64)
		return
	})
	parse("MAX_CONNECTIONS", func(v string) (err error) {
		c.WS.MaxConnections, err = strconv.Atoi(v)
		return
	})
	parse("WS_READ_TIMEOUT", func(v string) (err error) {
		c.WS.ReadTimeout, err = time.ParseDuration(v)
		return
	})
	parse("WS_WRITE_TIMEOUT", func(v string) (err error) {
		c.WS.WriteTimeout, err = time.ParseDuration(v)
		return
	})
	parse("HTTP_RATE_PER_SEC", func(v string) (err error) {
		c.RateLimit.HTTPPerSec, err = strconv.ParseFloat(v, 64)
		return
	})
	parse("HTTP_RATE_BURST", func(v string) (err error) {
		c.RateLimit.HTTPBurst, err = strconv.Atoi(v)
		return
	})
	parse("MESSAGE_RATE_LIMIT", func(v string) (err error) {
		c.RateLimit.MessageLimit, err = strconv.Atoi(v)
		return
	})
	parse("MESSAGE_RATE_WINDOW", func(v string) (err error) {
		c.RateLimit.MessageWindow, err = time.ParseDuration(v)
		return
	})
	parse("REDIS_DB", func(v string) (err error) {
		c.Redis.DB, err = strconv.Atoi(v)
		return
	})
	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store driver %q", c.Store.Driver))
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("config: listen address is empty"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("config: upload max bytes must be positive"))
	}
	return errors.Join(errs...)
}

// String renders the effective configuration for the startup log with
// secrets elided.
func (c *Config) String() string {
	return fmt.Sprintf(
		"listen=%s origins=%s store=%s redis=%s nats=%s uploads=%s max_conns=%d msg_limit=%d/%s",
		c.Server.ListenAddr,
		strings.Join(c.Server.WebOrigins, ","),
		c.Store.Driver,
		orOff(c.Redis.Addr),
		orOff(c.NATS.URL),
		uploadBackend(c.Upload),
		c.WS.MaxConnections,
		c.RateLimit.MessageLimit,
		c.RateLimit.MessageWindow,
	)
}

func uploadBackend(u UploadConfig) string {
	if u.MongoURI == "" {
		return "memory"
	}
	return "gridfs:" + u.Database + "/" + u.Bucket
}

func orOff(v string) string {
	if v == "" {
		return "off"
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
