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

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Name}}"
	OutputFormat string

	// Fixed output width for the now command (0 = disabled)
	OutputWidth int

	// Marquee scrolling for output wider than OutputWidth
	MarqueeEnabled   bool
	MarqueeSpeed     int
	MarqueeSeparator string

	// Log level for the daemon (debug, info, warn, error)
	LogLevel string

	// Directory holding the queue database and the status file
	DataDir string

	Source SourceConfig
	Engine EngineConfig

	// Last.fm API credentials
	LastFM LastFMConfig
}

// LastFMConfig holds Last.fm specific configuration
type LastFMConfig struct {
	APIKey     string
	APISecret  string
	SessionKey string
	Username   string
	Password   string
	BaseURL    string
}

// SourceConfig selects and tunes the music player the daemon watches
type SourceConfig struct {
	Kind         string // applescript or mpd
	PollInterval time.Duration
	MPDAddress   string
	MPDPassword  string
}

// EngineConfig holds the scrobble engine limits. Zero values fall back to
// the engine defaults.
type EngineConfig struct {
	BatchSize     int
	MaxAttempts   int
	QueueCapacity int
	EventBuffer   int
	RetryInterval time.Duration
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	SubmitTimeout time.Duration
	ShutdownGrace time.Duration
	MaxAge        time.Duration
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := newViper()

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	v.SetDefault("output_format", "{{.Artist}} - {{.Name}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("source.kind", "applescript")
	v.SetDefault("source.poll_interval", 3*time.Second)
	v.SetDefault("source.mpd.address", "localhost:6600")

	// SCROBBLED_LASTFM_SESSION_KEY overrides lastfm.session_key
	v.SetEnvPrefix("SCROBBLED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		LogLevel:         v.GetString("log_level"),
		DataDir:          v.GetString("data_dir"),
		Source: SourceConfig{
			Kind:         v.GetString("source.kind"),
			PollInterval: v.GetDuration("source.poll_interval"),
			MPDAddress:   v.GetString("source.mpd.address"),
			MPDPassword:  v.GetString("source.mpd.password"),
		},
		Engine: EngineConfig{
			BatchSize:     v.GetInt("engine.batch_size"),
			MaxAttempts:   v.GetInt("engine.max_attempts"),
			QueueCapacity: v.GetInt("engine.queue_capacity"),
			EventBuffer:   v.GetInt("engine.event_buffer"),
			RetryInterval: v.GetDuration("engine.retry_interval"),
			BackoffMin:    v.GetDuration("engine.backoff_min"),
			BackoffMax:    v.GetDuration("engine.backoff_max"),
			SubmitTimeout: v.GetDuration("engine.submit_timeout"),
			ShutdownGrace: v.GetDuration("engine.shutdown_grace"),
			MaxAge:        v.GetDuration("engine.max_age"),
		},
		LastFM: LastFMConfig{
			APIKey:     v.GetString("lastfm.api_key"),
			APISecret:  v.GetString("lastfm.api_secret"),
			SessionKey: v.GetString("lastfm.session_key"),
			Username:   v.GetString("lastfm.username"),
			Password:   v.GetString("lastfm.password"),
			BaseURL:    v.GetString("lastfm.base_url"),
		},
	}
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	if dir := os.Getenv("SCROBBLED_CONFIG_DIR"); dir != "" {
		return dir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "scrobbled")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// DefaultDataDir returns ~/.local/share/scrobbled, or "." without a home
// directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "scrobbled")
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := filepath.Join(getConfigDir(), "config.yaml")

	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("log_level", c.LogLevel)
	v.Set("data_dir", c.DataDir)

	v.Set("source.kind", c.Source.Kind)
	v.Set("source.poll_interval", c.Source.PollInterval.String())
	v.Set("source.mpd.address", c.Source.MPDAddress)
	if c.Source.MPDPassword != "" {
		v.Set("source.mpd.password", c.Source.MPDPassword)
	}

	setDuration := func(key string, d time.Duration) {
		if d > 0 {
			v.Set(key, d.String())
		}
	}
	setInt := func(key string, n int) {
		if n > 0 {
			v.Set(key, n)
		}
	}
	setInt("engine.batch_size", c.Engine.BatchSize)
	setInt("engine.max_attempts", c.Engine.MaxAttempts)
	setInt("engine.queue_capacity", c.Engine.QueueCapacity)
	setInt("engine.event_buffer", c.Engine.EventBuffer)
	setDuration("engine.retry_interval", c.Engine.RetryInterval)
	setDuration("engine.backoff_min", c.Engine.BackoffMin)
	setDuration("engine.backoff_max", c.Engine.BackoffMax)
	setDuration("engine.submit_timeout", c.Engine.SubmitTimeout)
	setDuration("engine.shutdown_grace", c.Engine.ShutdownGrace)
	setDuration("engine.max_age", c.Engine.MaxAge)

	v.Set("lastfm.api_key", c.LastFM.APIKey)
	v.Set("lastfm.api_secret", c.LastFM.APISecret)
	v.Set("lastfm.session_key", c.LastFM.SessionKey)
	if c.LastFM.Username != "" {
		v.Set("lastfm.username", c.LastFM.Username)
	}
	if c.LastFM.Password != "" {
		v.Set("lastfm.password", c.LastFM.Password)
	}
	if c.LastFM.BaseURL != "" {
		v.Set("lastfm.base_url", c.LastFM.BaseURL)
	}

	// The file holds the session key.
	if err := v.WriteConfigAs(configFile); err != nil {
		return err
	}
	return os.Chmod(configFile, 0600)
}
