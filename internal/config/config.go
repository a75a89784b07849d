package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. Values come from an optional
// YAML file with AUTHGRID_* environment variables taking precedence.
type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		GRPCAddr           string   `yaml:"grpc_addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	} `yaml:"storage"`

	Cache struct {
		Driver string `yaml:"driver"` // memory | redis
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Auth struct {
		Secret        string `yaml:"secret"`
		Issuer        string `yaml:"issuer"`
		IdentityTTL   string `yaml:"identity_ttl"`
		AllowDegraded bool   `yaml:"allow_degraded"`
		PurgeInterval string `yaml:"purge_interval"`
	} `yaml:"auth"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"` // memory | redis
		Limit   int    `yaml:"limit"`
		Window  string `yaml:"window"`
		// Per-IP token bucket applied in front of everything.
		IPBurst     int `yaml:"ip_burst"`
		IPPerSecond int `yaml:"ip_per_second"`
	} `yaml:"rate"`

	Health struct {
		Interval    string `yaml:"interval"`
		Timeout     string `yaml:"timeout"`
		Concurrency int    `yaml:"concurrency"`
		StaleAfter  string `yaml:"stale_after"`
	} `yaml:"health"`
}

// Load reads path (when non-empty), applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		return nil, fmt.Errorf("auth secret is not configured (AUTHGRID_AUTH_SECRET)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.App.Env, "AUTHGRID_ENV")
	setString(&c.Server.Addr, "AUTHGRID_ADDR")
	setString(&c.Server.GRPCAddr, "AUTHGRID_GRPC_ADDR")
	setString(&c.Storage.DSN, "AUTHGRID_PG_DSN")
	setString(&c.Cache.Driver, "AUTHGRID_CACHE_DRIVER")
	setString(&c.Cache.Redis.Addr, "AUTHGRID_REDIS_ADDR")
	setString(&c.Cache.Redis.Password, "AUTHGRID_REDIS_PASSWORD")
	setInt(&c.Cache.Redis.DB, "AUTHGRID_REDIS_DB")
	setString(&c.Auth.Secret, "AUTHGRID_AUTH_SECRET")
	setString(&c.Auth.Issuer, "AUTHGRID_AUTH_ISSUER")
	setBool(&c.Auth.AllowDegraded, "AUTHGRID_AUTH_ALLOW_DEGRADED")
	setBool(&c.Rate.Enabled, "AUTHGRID_RATE_ENABLED")
	setString(&c.Rate.Driver, "AUTHGRID_RATE_DRIVER")
	setInt(&c.Rate.Limit, "AUTHGRID_RATE_LIMIT")
	setString(&c.Rate.Window, "AUTHGRID_RATE_WINDOW")
	setString(&c.Health.Interval, "AUTHGRID_HEALTH_INTERVAL")
	setString(&c.Health.StaleAfter, "AUTHGRID_HEALTH_STALE_AFTER")
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "authgrid"
	}
	if c.Storage.MaxOpenConns == 0 {
		c.Storage.MaxOpenConns = 25
	}
	if c.Storage.MaxIdleConns == 0 {
		c.Storage.MaxIdleConns = 10
	}
	if c.Rate.Driver == "" {
		c.Rate.Driver = "memory"
	}
	if c.Rate.Limit == 0 {
		c.Rate.Limit = 120
	}
	if c.Rate.IPBurst == 0 {
		c.Rate.IPBurst = 50
	}
	if c.Rate.IPPerSecond == 0 {
		c.Rate.IPPerSecond = 25
	}
	if c.Health.Concurrency == 0 {
		c.Health.Concurrency = 5
	}
}

// Duration accessors; invalid values fall back to the stated default.

func (c *Config) ConnMaxLifetime() time.Duration {
	return duration(c.Storage.ConnMaxLifetime, 30*time.Minute)
}

func (c *Config) CacheDefaultTTL() time.Duration {
	return duration(c.Cache.Memory.DefaultTTL, time.Hour)
}

func (c *Config) IdentityTTL() time.Duration {
	return duration(c.Auth.IdentityTTL, time.Hour)
}

func (c *Config) PurgeInterval() time.Duration {
	return duration(c.Auth.PurgeInterval, time.Hour)
}

func (c *Config) RateWindow() time.Duration {
	return duration(c.Rate.Window, time.Minute)
}

func (c *Config) HealthInterval() time.Duration {
	return duration(c.Health.Interval, 5*time.Minute)
}

func (c *Config) HealthTimeout() time.Duration {
	return duration(c.Health.Timeout, 5*time.Second)
}

func (c *Config) StaleAfter() time.Duration {
	return duration(c.Health.StaleAfter, 24*time.Hour)
}

func duration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
