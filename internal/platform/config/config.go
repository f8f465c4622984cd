// Package config provides configuration loading for the verification server.
// Precedence is hard defaults, then an optional YAML file, then environment
// variables. The resulting Config is built once in main and passed to
// constructors; nothing mutates it afterwards.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names a persona store implementation. The backend is chosen
// explicitly at startup; connection strings are never sniffed.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// ReplyFormat selects the wire shape of verification replies.
type ReplyFormat string

const (
	// ReplyFormatPerson is the canonical envelope: ok/person/error.
	ReplyFormatPerson ReplyFormat = "person"
	// ReplyFormatBank nests a validity block under data for callers that
	// predate the canonical envelope.
	ReplyFormatBank ReplyFormat = "bank"
)

// Config holds everything the server needs to run.
type Config struct {
	Rabbit RabbitConfig `yaml:"rabbit"`
	Store  StoreConfig  `yaml:"store"`
	Verify VerifyConfig `yaml:"verify"`
	Ops    OpsConfig    `yaml:"ops"`
	Log    LogConfig    `yaml:"log"`
}

// RabbitConfig captures broker connectivity and topology names.
type RabbitConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	VHost      string `yaml:"vhost"`
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routingKey"`
	// Prefetch is both the channel QoS and the worker count, so the broker
	// never hands out more deliveries than the server will work on.
	Prefetch int `yaml:"prefetch"`
}

// URL renders the AMQP connection string. Credentials are escaped so
// passwords with reserved characters survive the round trip.
func (r RabbitConfig) URL() string {
	vhost := r.VHost
	if vhost == "/" {
		vhost = ""
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.Username, r.Password),
		Host:   fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:   "/" + vhost,
	}
	return u.String()
}

// StoreConfig selects and parameterises the persona store backend.
type StoreConfig struct {
	Backend     Backend `yaml:"backend"`
	SQLitePath  string  `yaml:"sqlitePath"`
	PostgresDSN string  `yaml:"postgresDsn"`
	PoolSize    int     `yaml:"poolSize"`
}

// VerifyConfig tunes the verification path itself.
type VerifyConfig struct {
	ReplyFormat   ReplyFormat   `yaml:"replyFormat"`
	LookupTimeout time.Duration `yaml:"lookupTimeout"`
}

// OpsConfig covers the operational HTTP listener. An empty Addr disables it.
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration the server runs with when nothing else
// is set: local broker, local SQLite file, canonical reply format.
func Default() Config {
	return Config{
		Rabbit: RabbitConfig{
			Host:       "localhost",
			Port:       5672,
			Username:   "guest",
			Password:   "guest",
			VHost:      "/",
			Exchange:   "rabbit_exchange",
			Queue:      "reniec_queue",
			RoutingKey: "reniec_operation",
			Prefetch:   8,
		},
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: "./data/reniec.db",
			PoolSize:   4,
		},
		Verify: VerifyConfig{
			ReplyFormat:   ReplyFormatPerson,
			LookupTimeout: 5 * time.Second,
		},
		Ops: OpsConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration. path points at an optional YAML
// file; an empty path skips that layer. Environment variables are applied
// last and win over the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Store.PostgresDSN == "" {
		cfg.Store.PostgresDSN = postgresDSNFromEnv()
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Rabbit.Host, "RABBIT_HOST")
	setString(&cfg.Rabbit.Username, "RABBIT_USERNAME")
	setString(&cfg.Rabbit.Password, "RABBIT_PASSWORD")
	setString(&cfg.Rabbit.VHost, "RABBIT_VHOST")
	setString(&cfg.Rabbit.Exchange, "RABBIT_EXCHANGE")
	setString(&cfg.Rabbit.Queue, "RABBIT_QUEUE")
	setString(&cfg.Rabbit.RoutingKey, "RABBIT_ROUTING_KEY")
	setString(&cfg.Store.SQLitePath, "DB_SQLITE_PATH")
	setString(&cfg.Store.PostgresDSN, "PG_DSN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	// OPS_ADDR set to the empty string disables the listener, so this one
	// distinguishes set-but-empty from unset.
	if v, ok := os.LookupEnv("OPS_ADDR"); ok {
		cfg.Ops.Addr = v
	}

	if v := os.Getenv("DB_BACKEND"); v != "" {
		cfg.Store.Backend = Backend(strings.ToLower(v))
	}
	if v := os.Getenv("REPLY_FORMAT"); v != "" {
		cfg.Verify.ReplyFormat = ReplyFormat(strings.ToLower(v))
	}
	if err := setInt(&cfg.Rabbit.Port, "RABBIT_PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Rabbit.Prefetch, "RABBIT_PREFETCH"); err != nil {
		return err
	}
	if err := setInt(&cfg.Store.PoolSize, "DB_POOL_SIZE"); err != nil {
		return err
	}
	if v := os.Getenv("LOOKUP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse LOOKUP_TIMEOUT: %w", err)
		}
		cfg.Verify.LookupTimeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

// postgresDSNFromEnv composes a DSN from the conventional PG* variables for
// deployments that do not hand over a single connection string.
func postgresDSNFromEnv() string {
	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(get("PGUSER", "postgres")),
		url.QueryEscape(get("PGPASSWORD", "postgres")),
		get("PGHOST", "localhost"),
		get("PGPORT", "5432"),
		get("PGDATABASE", "reniec"),
	)
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown DB_BACKEND %q (want sqlite or postgres)", c.Store.Backend)
	}
	switch c.Verify.ReplyFormat {
	case ReplyFormatPerson, ReplyFormatBank:
	default:
		return fmt.Errorf("unknown REPLY_FORMAT %q (want person or bank)", c.Verify.ReplyFormat)
	}
	if c.Rabbit.Prefetch < 1 {
		return fmt.Errorf("RABBIT_PREFETCH must be at least 1, got %d", c.Rabbit.Prefetch)
	}
	if c.Store.PoolSize < 1 {
		return fmt.Errorf("DB_POOL_SIZE must be at least 1, got %d", c.Store.PoolSize)
	}
	if c.Verify.LookupTimeout <= 0 {
		return fmt.Errorf("LOOKUP_TIMEOUT must be positive, got %s", c.Verify.LookupTimeout)
	}
	return nil
}
