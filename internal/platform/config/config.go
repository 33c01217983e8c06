package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// SiteConfig adds or overrides one monitored domain.
type SiteConfig struct {
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type Config struct {
	DataDir        string        `yaml:"data_dir"`
	Storage        StorageConfig `yaml:"storage"`
	Retry          RetryConfig   `yaml:"retry"`
	Cooldown       time.Duration `yaml:"cooldown"`
	StrictCooldown bool          `yaml:"strict_cooldown"`
	ListenAddr     string        `yaml:"listen_addr"`
	SocketPath     string        `yaml:"socket_path"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	Sites          []SiteConfig  `yaml:"sites"`
	// AllowedOrigins lists browser origins the gateway accepts, e.g.
	// chrome-extension://<id>. Clients that send no Origin are always allowed.
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

func Default(dataDir string) Config {
	return Config{
		DataDir:    dataDir,
		Storage:    StorageConfig{Driver: DriverBadger},
		Retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond},
		Cooldown:   5 * time.Minute,
		ListenAddr: "127.0.0.1:7878",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load builds the configuration for dataDir. A missing file at path is not an
// error; an empty path means <dataDir>/config.yaml. FOCUSGUARD_* environment
// variables override the file.
func Load(dataDir, path string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	cfg := Default(dataDir)
	if path == "" {
		path = filepath.Join(dataDir, "config.yaml")
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "focusguard.sock")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("FOCUSGUARD_DATA_DIR", &c.DataDir)
	str("FOCUSGUARD_STORAGE_DRIVER", &c.Storage.Driver)
	str("FOCUSGUARD_LISTEN_ADDR", &c.ListenAddr)
	str("FOCUSGUARD_SOCKET_PATH", &c.SocketPath)
	str("FOCUSGUARD_LOG_LEVEL", &c.LogLevel)
	str("FOCUSGUARD_LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup("FOCUSGUARD_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v, ok := lookup("FOCUSGUARD_COOLDOWN"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FOCUSGUARD_COOLDOWN %q: %w", v, err)
		}
		c.Cooldown = d
	}
	if v, ok := lookup("FOCUSGUARD_STRICT_COOLDOWN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FOCUSGUARD_STRICT_COOLDOWN %q: %w", v, err)
		}
		c.StrictCooldown = b
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	for i, s := range c.Sites {
		if strings.TrimSpace(s.Domain) == "" || strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sites[%d] needs both domain and name", i)
		}
	}
	for i, o := range c.AllowedOrigins {
		if !strings.Contains(o, "://") {
			return fmt.Errorf("allowed_origins[%d] %q is not an origin", i, o)
		}
	}
	return nil
}

func (c Config) BadgerPath() string {
	return filepath.Join(c.DataDir, "badger")
}

func (c Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "focusguard.db")
}

func (c Config) PIDPath() string {
	return filepath.Join(c.DataDir, "daemon.pid")
}

func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "daemon.log")
}

// NotesDir is where markdown session notes are exported by default.
func (c Config) NotesDir() string {
	return filepath.Join(c.DataDir, "notes")
}
