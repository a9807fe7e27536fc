// Package config holds the process configuration for the todos proxy.
// Values are read once at startup and passed explicitly to each component.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/todos-proxy/pkg/logging"
	"github.com/rs/zerolog"
)

// Defaults for every configurable value.
const (
	DefaultRedisHost       = "localhost"
	DefaultRedisPort       = 6379
	DefaultRedisDB         = 0
	DefaultPort            = 3000
	DefaultUpstreamURL     = "https://jsonplaceholder.typicode.com/todos"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultCacheTTL        = 10 * time.Second
	DefaultUserAgent       = "todos-proxy/0.1.0"
	DefaultLogLevel        = logging.LevelInfo
)

// Environment variable names.
const (
	EnvRedisHost       = "REDIS_HOST"
	EnvRedisPort       = "REDIS_PORT"
	EnvRedisDB         = "REDIS_DB"
	EnvPort            = "PORT"
	EnvUpstreamURL     = "UPSTREAM_URL"
	EnvUpstreamTimeout = "UPSTREAM_TIMEOUT"
	EnvCacheTTL        = "CACHE_TTL"
	EnvUserAgent       = "USER_AGENT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogPretty       = "LOG_PRETTY"
)

// Config is the complete runtime configuration.
type Config struct {
	// Redis connection parameters
	RedisHost string
	RedisPort int
	RedisDB   int

	// Port is the HTTP listen port.
	Port int

	// Upstream resource
	UpstreamURL     string
	UpstreamTimeout time.Duration
	UserAgent       string

	// CacheTTL is the lifetime of the cached payload.
	CacheTTL time.Duration

	LogLevel  logging.LogLevel
	LogPretty bool
}

// Default returns a configuration populated with all defaults.
func Default() Config {
	return Config{
		RedisHost:       DefaultRedisHost,
		RedisPort:       DefaultRedisPort,
		RedisDB:         DefaultRedisDB,
		Port:            DefaultPort,
		UpstreamURL:     DefaultUpstreamURL,
		UpstreamTimeout: DefaultUpstreamTimeout,
		UserAgent:       DefaultUserAgent,
		CacheTTL:        DefaultCacheTTL,
		LogLevel:        DefaultLogLevel,
	}
}

// LookupFunc matches the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// InvalidValue records an environment variable that was set but could not be
// used, so the default was applied instead.
type InvalidValue struct {
	Variable string
	Value    string
	Default  any
}

// Load reads the configuration from the process environment. Invalid values
// are returned rather than logged so they can be reported once logging is set
// up from the configuration itself.
func Load() (Config, []InvalidValue) {
	return Parse(os.LookupEnv)
}

// Parse builds a configuration from lookup, falling back to the default for
// every variable that is unset, empty or unparsable.
func Parse(lookup LookupFunc) (Config, []InvalidValue) {
	cfg := Default()
	r := &reader{lookup: lookup}

	cfg.RedisHost = r.str(EnvRedisHost, cfg.RedisHost)
	cfg.RedisPort = r.integer(EnvRedisPort, cfg.RedisPort)
	cfg.RedisDB = r.integer(EnvRedisDB, cfg.RedisDB)
	cfg.Port = r.integer(EnvPort, cfg.Port)
	cfg.UpstreamURL = r.str(EnvUpstreamURL, cfg.UpstreamURL)
	// zero disables the upstream timeout
	cfg.UpstreamTimeout = r.nonNegativeDuration(EnvUpstreamTimeout, cfg.UpstreamTimeout)
	cfg.UserAgent = r.str(EnvUserAgent, cfg.UserAgent)
	cfg.CacheTTL = r.duration(EnvCacheTTL, cfg.CacheTTL)
	cfg.LogLevel = logging.LogLevel(r.str(EnvLogLevel, string(cfg.LogLevel)))
	cfg.LogPretty = r.boolean(EnvLogPretty, cfg.LogPretty)

	return cfg, r.invalids
}

// FromLookup is Parse with every invalid value logged at warn level.
func FromLookup(lookup LookupFunc, logger zerolog.Logger) Config {
	cfg, invalid := Parse(lookup)
	LogInvalid(logger, invalid)
	return cfg
}

// LogInvalid writes one warning per invalid value.
func LogInvalid(logger zerolog.Logger, invalid []InvalidValue) {
	for _, v := range invalid {
		logger.Warn().
			Str("variable", v.Variable).
			Str("value", v.Value).
			Interface("default", v.Default).
			Msg("Invalid environment value, using default")
	}
}

// ListenAddr returns the address for http.Server.
func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

type reader struct {
	lookup   LookupFunc
	invalids []InvalidValue
}

func (r *reader) raw(key string) (string, bool) {
	value, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (r *reader) str(key, fallback string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return fallback
}

func (r *reader) integer(key string, fallback int) int {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		r.invalid(key, value, fallback)
		return fallback
	}
	return n
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		r.invalid(key, value, fallback)
		return fallback
	}
	return d
}

func (r *reader) nonNegativeDuration(key string, fallback time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		r.invalid(key, value, fallback)
		return fallback
	}
	return d
}

func (r *reader) boolean(key string, fallback bool) bool {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.invalid(key, value, fallback)
		return fallback
	}
	return b
}

func (r *reader) invalid(key, value string, fallback any) {
	r.invalids = append(r.invalids, InvalidValue{Variable: key, Value: value, Default: fallback})
}
