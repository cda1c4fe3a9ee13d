package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port            int    `yaml:"port"`
		APIKey          string `yaml:"api_key"`
		CORSAllowOrigin string `yaml:"cors_allow_origin"`
	} `yaml:"server"`
	FRED struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxRetries     int    `yaml:"max_retries"`
		Demo           bool   `yaml:"demo"`
	} `yaml:"fred"`
	Cache struct {
		// Pointers so an explicit 0 can be told apart from unset.
		TTLMinutes           *int `yaml:"ttl_minutes"`
		FailureTTLMinutes    *int `yaml:"failure_ttl_minutes"`
		LookbackYears        int  `yaml:"lookback_years"`
		FetchTimeoutSeconds  int  `yaml:"fetch_timeout_seconds"`
		MaxConcurrentFetches int  `yaml:"max_concurrent_fetches"`
	} `yaml:"cache"`
	Schedule struct {
		RefreshCron  string `yaml:"refresh_cron"`
		SnapshotCron string `yaml:"snapshot_cron"`
	} `yaml:"schedule"`
	Snapshot struct {
		Backend       string `yaml:"backend"` // sqlite, redis or none
		SQLitePath    string `yaml:"sqlite_path"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		RedisKey      string `yaml:"redis_key"`
	} `yaml:"snapshot"`
	IndicatorsPath string `yaml:"indicators_path"`
	LogLevel       string `yaml:"log_level"`
	Proxy          string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is allowed; a
// malformed one is not.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("FRED_API_KEY"); v != "" {
		cfg.FRED.APIKey = v
	}
	if v := os.Getenv("FRED_BASE_URL"); v != "" {
		cfg.FRED.BaseURL = v
	}
	if v := os.Getenv("DEMO_MODE"); v != "" {
		cfg.FRED.Demo = parseBool(v)
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("INDICATORS_PATH"); v != "" {
		cfg.IndicatorsPath = v
	}
	if v := os.Getenv("SNAPSHOT_BACKEND"); v != "" {
		cfg.Snapshot.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Snapshot.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Snapshot.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Snapshot.RedisPassword = v
	}
	if v := os.Getenv("CACHE_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTLMinutes = &n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.CORSAllowOrigin == "" {
		cfg.Server.CORSAllowOrigin = "*"
	}
	if cfg.FRED.TimeoutSeconds == 0 {
		cfg.FRED.TimeoutSeconds = 30
	}
	if cfg.FRED.MaxRetries == 0 {
		cfg.FRED.MaxRetries = 3
	}
	if cfg.Cache.TTLMinutes == nil {
		ttl := 60
		cfg.Cache.TTLMinutes = &ttl
	}
	if cfg.Cache.FailureTTLMinutes == nil {
		cfg.Cache.FailureTTLMinutes = cfg.Cache.TTLMinutes
	}
	if cfg.Cache.LookbackYears == 0 {
		cfg.Cache.LookbackYears = 6
	}
	if cfg.Cache.FetchTimeoutSeconds == 0 {
		cfg.Cache.FetchTimeoutSeconds = 45
	}
	if cfg.Cache.MaxConcurrentFetches == 0 {
		cfg.Cache.MaxConcurrentFetches = 4
	}
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 */15 * * * *"
	}
	if cfg.Schedule.SnapshotCron == "" {
		cfg.Schedule.SnapshotCron = "0 5 * * * *"
	}
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = "sqlite"
	}
	if cfg.Snapshot.SQLitePath == "" {
		cfg.Snapshot.SQLitePath = "data/canary_snapshot.db"
	}
	if cfg.Snapshot.RedisKey == "" {
		cfg.Snapshot.RedisKey = "macrocanary:snapshot"
	}
	if cfg.IndicatorsPath == "" {
		cfg.IndicatorsPath = "config/indicators.yml"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	var errs []string

	if c.FRED.APIKey == "" && !c.FRED.Demo {
		errs = append(errs, "fred.api_key (FRED_API_KEY) is required unless fred.demo is set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Cache.TTLMinutes != nil && *c.Cache.TTLMinutes < 0 {
		errs = append(errs, "cache.ttl_minutes must not be negative")
	}
	if c.Cache.FailureTTLMinutes != nil && *c.Cache.FailureTTLMinutes < 0 {
		errs = append(errs, "cache.failure_ttl_minutes must not be negative")
	}
	if c.Cache.FetchTimeoutSeconds <= 0 {
		errs = append(errs, "cache.fetch_timeout_seconds must be positive")
	}
	if c.Cache.MaxConcurrentFetches <= 0 {
		errs = append(errs, "cache.max_concurrent_fetches must be positive")
	}
	if c.Cache.LookbackYears < 1 {
		errs = append(errs, "cache.lookback_years must be at least 1")
	}
	switch c.Snapshot.Backend {
	case "sqlite", "none":
	case "redis":
		if c.Snapshot.RedisAddr == "" {
			errs = append(errs, "snapshot.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("snapshot.backend %q must be sqlite, redis or none", c.Snapshot.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return minutes(c.Cache.TTLMinutes)
}

// FailureTTL is how long a failed fetch is reused; it follows the TTL unless set.
func (c *Config) FailureTTL() time.Duration {
	if c.Cache.FailureTTLMinutes == nil {
		return c.CacheTTL()
	}
	return minutes(c.Cache.FailureTTLMinutes)
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Cache.FetchTimeoutSeconds) * time.Second
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.FRED.TimeoutSeconds) * time.Second
}

func minutes(n *int) time.Duration {
	if n == nil {
		return 0
	}
	return time.Duration(*n) * time.Minute
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}
