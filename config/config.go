// Package config provides configuration management for the application.
//
// Configuration is assembled in three layers: built-in defaults, an optional
// YAML file whose values may reference the environment as ${VAR} or
// ${VAR:-default}, and finally environment variable overrides. A .env file
// in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by the cache and state sections.
const (
	CacheTypeLocal = "local"
	CacheTypeRedis = "redis"

	StateTypeFile       = "file"
	StateTypeSQLite     = "sqlite"
	StateTypePostgreSQL = "postgresql"
)

// defaultConfigPaths are tried in order when no path is given.
var defaultConfigPaths = []string{"config.yaml", "config/config.yaml"}

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	QWeather QWeatherConfig `yaml:"qweather"`
	Fetch    FetchConfig    `yaml:"fetch"`
	HTTP     HTTPConfig     `yaml:"http"`
	Cache    CacheConfig    `yaml:"cache"`
	State    StateConfig    `yaml:"state"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey enables bearer authentication on the API when set
	MasterKey string `yaml:"master_key"`
}

// QWeatherConfig holds the upstream API settings
type QWeatherConfig struct {
	APIKey     string `yaml:"api_key"`
	GeoBaseURL string `yaml:"geo_base_url"`
	BaseURL    string `yaml:"base_url"`
	Lang       string `yaml:"lang"`
	Unit       string `yaml:"unit"`
}

// FetchConfig holds the retry budget of upstream requests
type FetchConfig struct {
	// Timeout is the per-attempt timeout in seconds
	Timeout int `yaml:"timeout"`
	// MaxAttempts is the total number of attempts per request
	MaxAttempts int `yaml:"max_attempts"`
	// RetryDelay is the pause between attempts in seconds
	RetryDelay int `yaml:"retry_delay"`
}

// HTTPConfig holds transport timeouts in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// CacheConfig selects the cache backend. Entry lifetime is fixed.
type CacheConfig struct {
	Type  string      `yaml:"type"`
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// StateConfig selects where recent queries and the last city are kept
type StateConfig struct {
	Type       string           `yaml:"type"`
	MaxHistory int              `yaml:"max_history"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// RefreshConfig controls background warm-up of the last city
type RefreshConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval is in minutes
	Interval int `yaml:"interval"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig controls log level and format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadResult is the outcome of Load.
type LoadResult struct {
	Config *Config
	// Path is the YAML file that was read, empty when none was found
	Path string
	// Warnings lists non-fatal configuration problems
	Warnings []string
}

// Load reads configuration from the default locations.
func Load() (*LoadResult, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path, or from the default locations when
// path is empty. An explicit path that does not exist is an error.
func LoadFrom(path string) (*LoadResult, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	if path == "" {
		path = os.Getenv("WEATHERDESK_CONFIG")
	}
	used, err := readYAML(cfg, path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, Path: used, Warnings: cfg.Warnings()}, nil
}

// readYAML merges the YAML file into cfg and returns the path it used.
func readYAML(cfg *Config, path string) (string, error) {
	candidates := defaultConfigPaths
	explicit := path != ""
	if explicit {
		candidates = []string{path}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && !explicit {
				continue
			}
			return "", fmt.Errorf("failed to read config file %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		QWeather: QWeatherConfig{
			GeoBaseURL: "https://geoapi.qweather.com",
			BaseURL:    "https://devapi.qweather.com",
			Lang:       "zh",
			Unit:       "m",
		},
		Fetch: FetchConfig{
			Timeout:     5,
			MaxAttempts: 3,
			RetryDelay:  1,
		},
		HTTP: HTTPConfig{
			Timeout:               30,
			ResponseHeaderTimeout: 30,
		},
		Cache: CacheConfig{
			Type: CacheTypeLocal,
			Dir:  "cache",
			Redis: RedisConfig{
				Prefix: "weatherdesk:",
			},
		},
		State: StateConfig{
			Type:       StateTypeFile,
			MaxHistory: 10,
			SQLite: SQLiteConfig{
				Path: "data/weatherdesk.db",
			},
			PostgreSQL: PostgreSQLConfig{
				MaxConns: 10,
			},
		},
		Refresh: RefreshConfig{
			Enabled:  false,
			Interval: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// A ${VAR} without default whose variable is unset or empty is left as is.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides lets environment variables take precedence over YAML.
func applyEnvOverrides(cfg *Config) error {
	envString("PORT", &cfg.Server.Port)
	envString("WEATHERDESK_MASTER_KEY", &cfg.Server.MasterKey)

	envString("QWEATHER_API_KEY", &cfg.QWeather.APIKey)
	envString("QWEATHER_GEO_BASE_URL", &cfg.QWeather.GeoBaseURL)
	envString("QWEATHER_BASE_URL", &cfg.QWeather.BaseURL)
	envString("QWEATHER_LANG", &cfg.QWeather.Lang)
	envString("QWEATHER_UNIT", &cfg.QWeather.Unit)

	envString("CACHE_TYPE", &cfg.Cache.Type)
	envString("WEATHERDESK_CACHE_DIR", &cfg.Cache.Dir)
	envString("REDIS_URL", &cfg.Cache.Redis.URL)
	envString("REDIS_PREFIX", &cfg.Cache.Redis.Prefix)

	envString("STATE_TYPE", &cfg.State.Type)
	envString("SQLITE_PATH", &cfg.State.SQLite.Path)
	envString("POSTGRES_URL", &cfg.State.PostgreSQL.URL)

	envString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)

	ints := []struct {
		key string
		dst *int
	}{
		{"FETCH_TIMEOUT", &cfg.Fetch.Timeout},
		{"FETCH_MAX_ATTEMPTS", &cfg.Fetch.MaxAttempts},
		{"FETCH_RETRY_DELAY", &cfg.Fetch.RetryDelay},
		{"HTTP_TIMEOUT", &cfg.HTTP.Timeout},
		{"HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout},
		{"STATE_MAX_HISTORY", &cfg.State.MaxHistory},
		{"POSTGRES_MAX_CONNS", &cfg.State.PostgreSQL.MaxConns},
		{"REFRESH_INTERVAL", &cfg.Refresh.Interval},
	}
	for _, v := range ints {
		if err := envInt(v.key, v.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"REFRESH_ENABLED", &cfg.Refresh.Enabled},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
	}
	for _, v := range bools {
		if err := envBool(v.key, v.dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) error {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", key, val)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not a boolean", key, val)
	}
	*dst = b
	return nil
}

// Validate reports configuration errors that would prevent startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %d", c.Fetch.Timeout))
	}
	if c.Fetch.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch.retry_delay must not be negative, got %d", c.Fetch.RetryDelay))
	}

	switch c.Cache.Type {
	case CacheTypeLocal:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the local cache"))
		}
	case CacheTypeRedis:
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("cache.redis.url is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache type: %q (valid: local, redis)", c.Cache.Type))
	}

	switch c.State.Type {
	case StateTypeFile:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the file state store"))
		}
	case StateTypeSQLite:
	case StateTypePostgreSQL:
		if c.State.PostgreSQL.URL == "" {
			errs = append(errs, errors.New("state.postgresql.url is required for the postgresql state store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state type: %q (valid: file, sqlite, postgresql)", c.State.Type))
	}
	if c.State.MaxHistory < 1 {
		errs = append(errs, fmt.Errorf("state.max_history must be at least 1, got %d", c.State.MaxHistory))
	}

	if c.Refresh.Enabled && c.Refresh.Interval < 1 {
		errs = append(errs, fmt.Errorf("refresh.interval must be at least 1 minute, got %d", c.Refresh.Interval))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("metrics.endpoint must start with '/', got %q", c.Metrics.Endpoint))
	}

	return errors.Join(errs...)
}

// Warnings lists problems that do not prevent startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.QWeather.APIKey == "" {
		warnings = append(warnings, "QWEATHER_API_KEY is not set; only cached data can be served")
	}
	return warnings
}
