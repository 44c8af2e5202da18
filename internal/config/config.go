package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Options  OptionsConfig  `mapstructure:"options"`
	Activity ActivityConfig `mapstructure:"activity"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type BackendConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
	LoginPath       string `mapstructure:"login_path"`
	RefreshPath     string `mapstructure:"refresh_path"`
	LogoutPath      string `mapstructure:"logout_path"`
	RefreshSkewSecs int    `mapstructure:"refresh_skew_seconds"`
}

// Timeout is the HTTP client timeout for backend calls.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

type ConsoleConfig struct {
	PagesFile         string `mapstructure:"pages_file"`
	WatchPages        bool   `mapstructure:"watch_pages"`
	Timezone          string `mapstructure:"timezone"`
	Locale            string `mapstructure:"locale"`
	DefaultPageSize   int    `mapstructure:"default_page_size"`
	SessionSecret     string `mapstructure:"session_secret"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
	SecureCookies     bool   `mapstructure:"secure_cookies"`
}

// Location resolves Timezone, falling back to UTC.
func (c ConsoleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c ConsoleConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

type OptionsConfig struct {
	CacheTTLSeconds int   `mapstructure:"cache_ttl_seconds"`
	MaxCost         int64 `mapstructure:"max_cost"`
}

type ActivityConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"` // directory for the SQLite database file
	Name            string `mapstructure:"name"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	PoolSize        int    `mapstructure:"pool_size"`
	BufferSize      int    `mapstructure:"buffer_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	RetentionDays   int    `mapstructure:"retention_days"`
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// DSN returns the driver-specific data source name.
func (a ActivityConfig) DSN() string {
	if a.IsSQLite() {
		return a.Path + "/" + a.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		a.User, a.Password, a.Host, a.Port, a.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (a ActivityConfig) IsSQLite() bool {
	return a.Driver == "sqlite"
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads console.yaml from path, or from . and ./config when path is
// empty. Environment variables ROCKET_CONSOLE_<SECTION>_<KEY> override the
// file. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("console")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("ROCKET_CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.timeout_ms", 15000)
	v.SetDefault("backend.login_path", "/api/auth/login")
	v.SetDefault("backend.refresh_path", "/api/auth/refresh")
	v.SetDefault("backend.logout_path", "/api/auth/logout")
	v.SetDefault("backend.refresh_skew_seconds", 30)
	v.SetDefault("console.pages_file", "pages.yaml")
	v.SetDefault("console.watch_pages", true)
	v.SetDefault("console.timezone", "UTC")
	v.SetDefault("console.locale", "en")
	v.SetDefault("console.default_page_size", 10)
	v.SetDefault("console.session_secret", "changeme-console-secret")
	v.SetDefault("console.session_ttl_minutes", 480)
	v.SetDefault("console.secure_cookies", false)
	v.SetDefault("options.cache_ttl_seconds", 60)
	v.SetDefault("options.max_cost", 1<<20)
	v.SetDefault("activity.enabled", true)
	v.SetDefault("activity.driver", "sqlite")
	v.SetDefault("activity.path", "./data")
	v.SetDefault("activity.name", "console")
	v.SetDefault("activity.host", "localhost")
	v.SetDefault("activity.port", 5432)
	v.SetDefault("activity.pool_size", 5)
	v.SetDefault("activity.buffer_size", 500)
	v.SetDefault("activity.flush_interval_ms", 500)
	v.SetDefault("activity.retention_days", 30)
	v.SetDefault("activity.cleanup_schedule", "@every 1h")
	v.SetDefault("log.level", "info")
}

// Validate rejects settings the console cannot start with.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("config: backend.base_url is required")
	}
	if c.Console.SessionSecret == "" {
		return fmt.Errorf("config: console.session_secret is required")
	}
	if c.Console.Timezone != "" {
		if _, err := time.LoadLocation(c.Console.Timezone); err != nil {
			return fmt.Errorf("config: console.timezone: %w", err)
		}
	}
	switch c.Activity.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: activity.driver must be sqlite or postgres, got %q", c.Activity.Driver)
	}
	return nil
}
