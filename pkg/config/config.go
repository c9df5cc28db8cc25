package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. Sections are separated by a
// double underscore: EXTRACTOR_PIPELINE__WORKERS -> pipeline.workers.
const EnvPrefix = "EXTRACTOR_"

// Config holds all application configuration
type Config struct {
	Log           LogConfig           `koanf:"log"`
	Database      DatabaseConfig      `koanf:"database"`
	Storage       StorageConfig       `koanf:"storage"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Observability ObservabilityConfig `koanf:"observability"`
	Eval          EvalConfig          `koanf:"eval"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// PageDir receives one log file per processed page. Empty disables them.
	PageDir string `koanf:"page_dir"`
}

type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Database        string        `koanf:"database"`
	SSLMode         string        `koanf:"sslmode"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
}

type StorageConfig struct {
	Path           string `koanf:"path"`
	RetentionDays  int    `koanf:"retention_days"`
	SweepSchedule  string `koanf:"sweep_schedule"`
	SweepOnStartup bool   `koanf:"sweep_on_startup"`
}

type PipelineConfig struct {
	Workers int `koanf:"workers"`
	// RateLimitPerSecond throttles collaborator calls; 0 disables the limiter.
	RateLimitPerSecond float64  `koanf:"rate_limit_per_second"`
	RateLimitBurst     int      `koanf:"rate_limit_burst"`
	MissingValues      []string `koanf:"missing_values"`
	Delimiter          string   `koanf:"delimiter"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool `koanf:"metrics_enabled"`
	MetricsPort    int  `koanf:"metrics_port"`
}

type EvalConfig struct {
	Tolerance       float64 `koanf:"tolerance"`
	HeaderThreshold float64 `koanf:"header_threshold"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":                      "info",
		"log.format":                     "text",
		"log.page_dir":                   "",
		"database.enabled":               false,
		"database.host":                  "localhost",
		"database.port":                  5469,
		"database.user":                  "postgres",
		"database.password":              "postgres",
		"database.database":              "extractor-dev",
		"database.sslmode":               "disable",
		"database.max_conns":             25,
		"database.min_conns":             5,
		"database.max_conn_lifetime":     "5m",
		"database.max_conn_idle_time":    "10m",
		"storage.path":                   "./artifacts",
		"storage.retention_days":         30,
		"storage.sweep_schedule":         "0 3 * * *",
		"storage.sweep_on_startup":       false,
		"pipeline.workers":               4,
		"pipeline.rate_limit_per_second": 0,
		"pipeline.rate_limit_burst":      1,
		"pipeline.delimiter":             "",
		"observability.metrics_enabled":  true,
		"observability.metrics_port":     9090,
		"eval.tolerance":                 0.0001,
		"eval.header_threshold":          0.8,
	}
}

// Load reads configuration. Precedence, lowest to highest: defaults, YAML file
// at path (optional), .env, POSTGRES_* variables, EXTRACTOR_* variables, flags
// that were explicitly set. Only flags listed in flagKeys are read.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := k.Load(env.Provider("POSTGRES_", ".", postgresKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load database env vars: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !f.Changed || !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Pipeline.RateLimitPerSecond < 0 {
		errs = append(errs, errors.New("pipeline.rate_limit_per_second must not be negative"))
	}
	if len([]rune(c.Pipeline.Delimiter)) > 1 {
		errs = append(errs, fmt.Errorf("pipeline.delimiter must be a single character, got %q", c.Pipeline.Delimiter))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if c.Storage.RetentionDays < 0 {
		errs = append(errs, errors.New("storage.retention_days must not be negative"))
	}
	if c.Eval.Tolerance < 0 {
		errs = append(errs, errors.New("eval.tolerance must not be negative"))
	}
	if c.Eval.HeaderThreshold < 0 || c.Eval.HeaderThreshold > 1 {
		errs = append(errs, errors.New("eval.header_threshold must be within [0, 1]"))
	}
	if c.Database.Enabled && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required when the database is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Retention returns the artifact retention window.
func (c *StorageConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DelimiterRune returns the configured CSV delimiter, or 0 to auto-detect.
func (c *PipelineConfig) DelimiterRune() rune {
	for _, r := range c.Delimiter {
		return r
	}
	return 0
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func postgresKey(s string) string {
	name := strings.ToLower(strings.TrimPrefix(s, "POSTGRES_"))
	if name == "db" {
		name = "database"
	}
	return "database." + name
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"page-logs":    "log.page_dir",
	"db":           "database.enabled",
	"storage":      "storage.path",
	"retention":    "storage.retention_days",
	"workers":      "pipeline.workers",
	"rate-limit":   "pipeline.rate_limit_per_second",
	"delimiter":    "pipeline.delimiter",
	"metrics":      "observability.metrics_enabled",
	"metrics-port": "observability.metrics_port",
	"tolerance":    "eval.tolerance",
	"threshold":    "eval.header_threshold",
}
