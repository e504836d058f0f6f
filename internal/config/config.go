// Package config loads uiwalk configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. UIWALK_BROWSER_PORT.
const EnvPrefix = "UIWALK"

// Config is the root configuration.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Poll    PollConfig    `mapstructure:"poll"`
	Run     RunConfig     `mapstructure:"run"`
	Logging LoggingConfig `mapstructure:"logging"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
}

// BrowserConfig describes the Chrome remote-debugging endpoint.
type BrowserConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// AttachURL selects an existing tab whose URL contains this text.
	// Empty opens a fresh tab.
	AttachURL string `mapstructure:"attach_url"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// PollConfig tunes the condition poller.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// RunConfig bounds a whole recipe run.
type RunConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	ProjectDir string        `mapstructure:"project_dir"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig configures `uiwalk serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Host:           "127.0.0.1",
			Port:           9222,
			ConnectTimeout: 10 * time.Second,
		},
		Poll: PollConfig{
			Interval: 100 * time.Millisecond,
		},
		Run: RunConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(DefaultDataDir(), "history.db"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8087",
		},
	}
}

// DefaultConfigDir returns ~/.config/uiwalk, honoring XDG_CONFIG_HOME.
func DefaultConfigDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return filepath.Join(dir, "uiwalk")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "uiwalk")
	}
	return ".uiwalk"
}

// DefaultDataDir returns ~/.local/share/uiwalk, honoring XDG_DATA_HOME.
func DefaultDataDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, "uiwalk")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "uiwalk")
	}
	return ".uiwalk"
}

// Load reads configuration. An explicit path must exist; otherwise the default
// config file is optional.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("browser.host", cfg.Browser.Host)
	v.SetDefault("browser.port", cfg.Browser.Port)
	v.SetDefault("browser.attach_url", cfg.Browser.AttachURL)
	v.SetDefault("browser.connect_timeout", cfg.Browser.ConnectTimeout)
	v.SetDefault("poll.interval", cfg.Poll.Interval)
	v.SetDefault("run.timeout", cfg.Run.Timeout)
	v.SetDefault("run.project_dir", cfg.Run.ProjectDir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("history.enabled", cfg.History.Enabled)
	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("server.addr", cfg.Server.Addr)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Browser.Host) == "" {
		problems = append(problems, "browser.host is required")
	}
	if c.Browser.Port <= 0 || c.Browser.Port > 65535 {
		problems = append(problems, fmt.Sprintf("browser.port %d out of range", c.Browser.Port))
	}
	if c.Browser.ConnectTimeout <= 0 {
		problems = append(problems, "browser.connect_timeout must be positive")
	}
	if c.Poll.Interval <= 0 {
		problems = append(problems, "poll.interval must be positive")
	}
	if c.Run.Timeout < 0 {
		problems = append(problems, "run.timeout must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		problems = append(problems, "history.path is required when history is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BrowserURL returns the remote-debugging websocket base URL.
func (c *Config) BrowserURL() string {
	return fmt.Sprintf("ws://%s:%d", c.Browser.Host, c.Browser.Port)
}
