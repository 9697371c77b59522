package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "MEDTRACKER"

// Config holds all configuration for medtracker
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Events   EventsConfig   `mapstructure:"events"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`

	// path of the config file that was read, empty if none
	File string `mapstructure:"-"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // sqlite, badger or memory
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// ScheduleConfig holds scheduling engine settings
type ScheduleConfig struct {
	Timezone     string `mapstructure:"timezone"`
	PollInterval string `mapstructure:"poll_interval"`
}

// EventsConfig selects where status transitions are published
type EventsConfig struct {
	Log       bool        `mapstructure:"log"`
	WebSocket bool        `mapstructure:"websocket"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the Redis stream sink settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
	// consecutive failures before the circuit opens
	BreakerFailures uint32 `mapstructure:"breaker_failures"`
	BreakerTimeout  string `mapstructure:"breaker_timeout"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	AuthEnabled   bool     `mapstructure:"auth_enabled"`
	AdminPassword string   `mapstructure:"admin_password"`
	JWTSecret     string   `mapstructure:"jwt_secret"`
	TokenTTL      string   `mapstructure:"token_ttl"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
	RateLimit     float64  `mapstructure:"rate_limit"` // mutating requests per second
	RateBurst     int      `mapstructure:"rate_burst"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := LoadEnvFiles(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medtracker.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medtracker.yaml")
	}

	var file string
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		file = configPath
	}

	// Environment variables (MEDTRACKER_SERVER_PORT, MEDTRACKER_SCHEDULE_TIMEZONE, etc.)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.File = file
	return cfg, nil
}

// Watch re-reads the config file on every change and passes the result to
// fn. Invalid revisions are reported through onError and otherwise
// ignored. Watch does nothing when no file was loaded.
func Watch(cfg *Config, fn func(*Config), onError func(error)) {
	if cfg.File == "" {
		return
	}
	v := viper.New()
	setDefaults(v)
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.badger_path", cfg.Storage.BadgerPath)
	v.SetConfigFile(cfg.File)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		onError(fmt.Errorf("failed to read config: %w", err))
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			onError(err)
			return
		}
		next.File = cfg.File
		fn(next)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Storage defaults
	v.SetDefault("storage.backend", "sqlite")

	// Schedule defaults
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("schedule.poll_interval", "1m")

	// Event sinks
	v.SetDefault("events.log", true)
	v.SetDefault("events.websocket", true)
	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.stream", "medtracker:events")
	v.SetDefault("events.redis.max_len", 10000)
	v.SetDefault("events.redis.breaker_failures", 5)
	v.SetDefault("events.redis.breaker_timeout", "30s")

	// Security defaults
	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.admin_password", "")
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.token_ttl", "168h")
	v.SetDefault("security.allow_origins", []string{"*"})
	v.SetDefault("security.rate_limit", 10.0)
	v.SetDefault("security.rate_burst", 20)

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func getDefaultDataDir() string {
	// Try XDG_DATA_HOME first
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medtracker")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medtracker")
}

// loadEnvOverrides applies the aliases in envAliases on top of what
// AutomaticEnv resolved.
func loadEnvOverrides(cfg *Config) {
	if tz := ResolveEnvWithAliases("MEDTRACKER_SCHEDULE_TIMEZONE"); tz != "" {
		cfg.Schedule.Timezone = tz
	}
	if addr := ResolveEnvWithAliases("MEDTRACKER_EVENTS_REDIS_ADDR"); addr != "" {
		cfg.Events.Redis.Addr = addr
	}
	if pw := ResolveEnvWithAliases("MEDTRACKER_EVENTS_REDIS_PASSWORD"); pw != "" {
		cfg.Events.Redis.Password = pw
	}
	if secret := ResolveEnvWithAliases("MEDTRACKER_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	if pw := ResolveEnvWithAliases("MEDTRACKER_SECURITY_ADMIN_PASSWORD"); pw != "" {
		cfg.Security.AdminPassword = pw
	}

	if port := ResolveEnvWithAliases("MEDTRACKER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "badger", "memory":
	default:
		return fmt.Errorf("storage.backend must be sqlite, badger or memory, got %q", cfg.Storage.Backend)
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}

	if _, err := cfg.PollInterval(); err != nil {
		return err
	}

	if cfg.Events.Redis.Enabled {
		if cfg.Events.Redis.Addr == "" {
			return fmt.Errorf("events.redis.addr is required when the redis sink is enabled")
		}
		if _, err := time.ParseDuration(cfg.Events.Redis.BreakerTimeout); err != nil {
			return fmt.Errorf("invalid events.redis.breaker_timeout: %w", err)
		}
	}

	if cfg.Security.AuthEnabled {
		if cfg.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_password is required when auth is enabled")
		}
		if _, err := time.ParseDuration(cfg.Security.TokenTTL); err != nil {
			return fmt.Errorf("invalid security.token_ttl: %w", err)
		}
		if cfg.Security.JWTSecret == "" {
			cfg.Security.JWTSecret = generateRandomString(32)
		}
	}

	return nil
}

func generateRandomString(n int) string {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("x", n)
	}
	return hex.EncodeToString(b)
}

// Location returns the timezone dose times are interpreted in.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" || c.Schedule.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// PollInterval returns how often statuses are re-evaluated.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Schedule.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule.poll_interval %q: %w", c.Schedule.PollInterval, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("schedule.poll_interval must be at least 1s, got %s", d)
	}
	return d, nil
}

// OpenTimeout returns how long the redis circuit stays open.
func (r RedisConfig) OpenTimeout() time.Duration {
	d, err := time.ParseDuration(r.BreakerTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// TokenLifetime returns the lifetime of issued API tokens.
func (s SecurityConfig) TokenLifetime() time.Duration {
	d, err := time.ParseDuration(s.TokenTTL)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
