// Package config loads the gateway configuration from YAML with SEARCHGATE_ environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SEARCHGATE_"

var (
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrUnknownAdapter           = errors.New("unknown adapter")
	ErrUnknownBackend           = errors.New("unknown backend")
	ErrDSNMissing               = errors.New("postgres.dsn is required by a postgres backend")
	ErrBadgerPathMissing        = errors.New("counters.badger_path is required by the badger backend")
	ErrUnknownLogLevel          = errors.New("unknown log level")
)

// Queue names of one queue type.
type QueueNames struct {
	Queue string `yaml:"queue"`
	Busy  string `yaml:"busy"`
}

type Queue struct {
	Backend             string        `yaml:"backend"`
	SecondsToWaitOnBusy int           `yaml:"seconds_to_wait_on_busy"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	Commands            QueueNames    `yaml:"commands"`
	DomainEvents        QueueNames    `yaml:"domain_events"`
}

type Counters struct {
	Backend    string `yaml:"backend"`
	BadgerPath string `yaml:"badger_path"`
}

type Index struct {
	Path        string `yaml:"path"`
	OpenIndices int    `yaml:"open_indices"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

// StaticToken is a token declared in the configuration file.
type StaticToken struct {
	UUID      string         `yaml:"uuid"`
	AppUUID   string         `yaml:"app_uuid"`
	Indices   []string       `yaml:"indices"`
	Endpoints []string       `yaml:"endpoints"`
	Plugins   []string       `yaml:"plugins"`
	TTL       int            `yaml:"ttl"`
	Metadata  map[string]any `yaml:"metadata"`
}

type Tokens struct {
	Static        []StaticToken `yaml:"static"`
	SigningSecret string        `yaml:"signing_secret"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type Limitations struct {
	NumberOfResults int `yaml:"number_of_results"`
}

type Interactions struct {
	Endpoint string `yaml:"endpoint"`
}

type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type HTTP struct {
	MaxBodyBytes int64     `yaml:"max_body_bytes"`
	RateLimit    RateLimit `yaml:"rate_limit"`
}

// Config is the whole gateway configuration. It is built once at boot.
type Config struct {
	HTTPAddr            string       `yaml:"http_addr"`
	GRPCAddr            string       `yaml:"grpc_addr"`
	LogLevel            string       `yaml:"log_level"`
	GodToken            string       `yaml:"god_token"`
	ReadonlyToken       string       `yaml:"readonly_token"`
	PingToken           string       `yaml:"ping_token"`
	CommandsAdapter     string       `yaml:"commands_adapter"`
	DomainEventsAdapter string       `yaml:"domain_events_adapter"`
	Limitations         Limitations  `yaml:"limitations"`
	Queue               Queue        `yaml:"queue"`
	Counters            Counters     `yaml:"counters"`
	Index               Index        `yaml:"index"`
	Postgres            Postgres     `yaml:"postgres"`
	Tokens              Tokens       `yaml:"tokens"`
	Plugins             []string     `yaml:"plugins"`
	Interactions        Interactions `yaml:"interactions"`
	HTTP                HTTP         `yaml:"http"`
}

// Default returns a configuration that runs fully in memory.
func Default() Config {
	return Config{
		HTTPAddr:            ":8100",
		GRPCAddr:            ":8101",
		LogLevel:            "info",
		CommandsAdapter:     "inline",
		DomainEventsAdapter: "ignore",
		Limitations:         Limitations{NumberOfResults: 100},
		Queue: Queue{
			Backend:             "none",
			SecondsToWaitOnBusy: 10,
			PollInterval:        500 * time.Millisecond,
			Commands:            QueueNames{Queue: "searchgate_commands", Busy: "searchgate_commands_busy"},
			DomainEvents:        QueueNames{Queue: "searchgate_domain_events", Busy: "searchgate_domain_events_busy"},
		},
		Counters: Counters{Backend: "memory"},
		Index:    Index{OpenIndices: 64},
		Tokens:   Tokens{CacheTTL: time.Minute},
		Plugins:  []string{"security"},
		HTTP: HTTP{
			MaxBodyBytes: 10 << 20,
			RateLimit:    RateLimit{PerSecond: 50, Burst: 100},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides. An empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfigFileUnreadable, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfigFileUnmarshallable, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides scalar settings from SEARCHGATE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("GOD_TOKEN", &c.GodToken)
	str("READONLY_TOKEN", &c.ReadonlyToken)
	str("PING_TOKEN", &c.PingToken)
	str("COMMANDS_ADAPTER", &c.CommandsAdapter)
	str("DOMAIN_EVENTS_ADAPTER", &c.DomainEventsAdapter)
	str("QUEUE_BACKEND", &c.Queue.Backend)
	str("COUNTERS_BACKEND", &c.Counters.Backend)
	str("COUNTERS_BADGER_PATH", &c.Counters.BadgerPath)
	str("INDEX_PATH", &c.Index.Path)
	str("PG_DSN", &c.Postgres.DSN)
	str("TOKENS_SIGNING_SECRET", &c.Tokens.SigningSecret)
	str("INTERACTIONS_ENDPOINT", &c.Interactions.Endpoint)
	if v, ok := lookup(EnvPrefix + "PLUGINS"); ok {
		c.Plugins = splitList(v)
	}
	for key, dst := range map[string]*int{
		"NUMBER_OF_RESULTS":       &c.Limitations.NumberOfResults,
		"SECONDS_TO_WAIT_ON_BUSY": &c.Queue.SecondsToWaitOnBusy,
		"OPEN_INDICES":            &c.Index.OpenIndices,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects unknown adapters and backends and missing backend settings.
func (c Config) Validate() error {
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		return fmt.Errorf("%w: log_level %q", ErrUnknownLogLevel, c.LogLevel)
	}
	if !oneOf(c.CommandsAdapter, "inline", "enqueue") {
		return fmt.Errorf("%w: commands_adapter %q", ErrUnknownAdapter, c.CommandsAdapter)
	}
	if !oneOf(c.DomainEventsAdapter, "inline", "enqueue", "ignore") {
		return fmt.Errorf("%w: domain_events_adapter %q", ErrUnknownAdapter, c.DomainEventsAdapter)
	}
	if !oneOf(c.Queue.Backend, "none", "memory", "postgres") {
		return fmt.Errorf("%w: queue.backend %q", ErrUnknownBackend, c.Queue.Backend)
	}
	if !oneOf(c.Counters.Backend, "memory", "badger", "postgres") {
		return fmt.Errorf("%w: counters.backend %q", ErrUnknownBackend, c.Counters.Backend)
	}
	if (c.Queue.Backend == "postgres" || c.Counters.Backend == "postgres") && c.Postgres.DSN == "" {
		return ErrDSNMissing
	}
	if c.Counters.Backend == "badger" && c.Counters.BadgerPath == "" {
		return ErrBadgerPathMissing
	}
	return nil
}

// UsesPostgres reports whether any backend needs a database connection.
func (c Config) UsesPostgres() bool {
	return c.Postgres.DSN != ""
}

// WaitOnBusy returns the consumer back-off as a duration.
func (c Config) WaitOnBusy() time.Duration {
	return time.Duration(c.Queue.SecondsToWaitOnBusy) * time.Second
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
