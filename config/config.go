package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the full service configuration. Values come from defaults,
// then an optional TOML file, then environment variables, in that order.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Session SessionConfig `toml:"session"`
	Surface SurfaceConfig `toml:"surface"`
	Store   StoreConfig   `toml:"store"`
	Log     LogConfig     `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type SessionConfig struct {
	AutoScroll bool `toml:"auto_scroll"`
}

// SurfaceConfig selects where merged text is written back to.
type SurfaceConfig struct {
	Kind string `toml:"kind" validate:"oneof=memory file store"`

	// Root is the workspace directory for the file surface.
	Root string `toml:"root"`
}

// StoreConfig configures the document store behind the store surface.
type StoreConfig struct {
	Kind    string `toml:"kind" validate:"oneof=memory firestore"`
	Project string `toml:"project"`

	// FlushSeconds is the write-behind cache interval. Zero disables the
	// cache and writes through directly.
	FlushSeconds int `toml:"flush_seconds" validate:"gte=0"`
}

type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`

	// Path is the rotating log file. Empty logs to the console only.
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" validate:"gt=0"`
	MaxBackups int    `toml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days" validate:"gte=0"`
}

var validate = validator.New()

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Session: SessionConfig{AutoScroll: true},
		Surface: SurfaceConfig{Kind: "memory", Root: "."},
		Store:   StoreConfig{Kind: "memory", FlushSeconds: 2},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if it
// exists), and environment variables. A missing file is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	// Pull a local .env into the environment first, if present.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults and environment.
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Surface.Kind == "file" && cfg.Surface.Root == "" {
		return nil, fmt.Errorf("invalid config: file surface requires a workspace root")
	}
	if cfg.Store.Kind == "firestore" && cfg.Store.Project == "" {
		return nil, fmt.Errorf("invalid config: firestore store requires a project")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("INLINE_EDIT_ADDR", cfg.Server.Addr)
	cfg.Session.AutoScroll = getEnvAsBool("INLINE_EDIT_AUTO_SCROLL", cfg.Session.AutoScroll)
	cfg.Surface.Kind = getEnv("INLINE_EDIT_SURFACE", cfg.Surface.Kind)
	cfg.Surface.Root = getEnv("INLINE_EDIT_WORKSPACE", cfg.Surface.Root)
	cfg.Store.Kind = getEnv("INLINE_EDIT_STORE", cfg.Store.Kind)
	cfg.Store.Project = getEnv("INLINE_EDIT_FIRESTORE_PROJECT", cfg.Store.Project)
	cfg.Store.FlushSeconds = getEnvAsInt("INLINE_EDIT_FLUSH_SECONDS", cfg.Store.FlushSeconds)
	cfg.Log.Level = getEnv("INLINE_EDIT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Path = getEnv("INLINE_EDIT_LOG_PATH", cfg.Log.Path)
}

// FlushInterval returns the write-behind interval as a duration.
func (c *StoreConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
