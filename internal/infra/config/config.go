// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Output names for PlayerConfig.Output.
const (
	OutputSpeaker = "speaker"
	OutputNull    = "null"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Player  PlayerConfig            `yaml:"player"`
	Library LibraryConfig           `yaml:"library"`
	Artwork ArtworkConfig           `yaml:"artwork"`
	LastFM  LastFMConfig            `yaml:"lastfm"`
	State   StateConfig             `yaml:"state"`
	Filters map[string]FilterConfig `yaml:"filters"`
	Log     LogConfig               `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string `yaml:"addr" default:":8080" validate:"required"`
	Token string `yaml:"token"` // Empty disables authentication
}

// PlayerConfig represents playback configuration.
type PlayerConfig struct {
	Output             string `yaml:"output" default:"speaker" validate:"oneof=speaker null"`
	SampleRate         int    `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs           int    `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
	TickIntervalMs     int    `yaml:"tick_interval_ms" default:"1000" validate:"gte=0,lte=60000"`
	PreviousRestartSec int    `yaml:"previous_restart_sec" default:"3" validate:"gte=0,lte=60"`
	InitialVolume      int    `yaml:"initial_volume" default:"50" validate:"gte=0,lte=100"`
	Repeat             string `yaml:"repeat" default:"off" validate:"oneof=off one all"`
	Shuffle            bool   `yaml:"shuffle"`
	AutoPlay           bool   `yaml:"auto_play"`
}

// LibraryConfig represents music library configuration.
type LibraryConfig struct {
	Dirs       []string `yaml:"dirs" validate:"dive,required"`
	Watch      bool     `yaml:"watch"`
	DebounceMs int      `yaml:"debounce_ms" default:"2000" validate:"gte=0,lte=60000"`
}

// ArtworkConfig represents cover art configuration.
type ArtworkConfig struct {
	Size      int `yaml:"size" default:"300" validate:"gte=16,lte=2048"`
	CacheSize int `yaml:"cache_size" default:"64" validate:"gte=1"`
}

// LastFMConfig represents Last.fm API configuration.
// Album art lookups are disabled when APIKey is empty.
type LastFMConfig struct {
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// StateConfig represents persisted state configuration.
type StateConfig struct {
	Path     string `yaml:"path" default:"groovebox-state.yaml" validate:"required"`
	Disabled bool   `yaml:"disabled"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File  string `yaml:"file"` // Empty logs to stdout
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data, filepath.Dir(path))
}

// Parse parses configuration data. Relative library and state paths are
// resolved against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	cfg.resolvePaths(baseDir)
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	cfg.overrideFromEnv()
	return &cfg
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("GROOVEBOX_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
}

func (c *Config) resolvePaths(baseDir string) {
	if baseDir == "" {
		return
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	for i, dir := range c.Library.Dirs {
		c.Library.Dirs[i] = resolve(dir)
	}
	c.State.Path = resolve(c.State.Path)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// TickInterval returns the position tick period.
func (p PlayerConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMs) * time.Millisecond
}

// PreviousRestartThreshold returns how far into a track Previous restarts it.
func (p PlayerConfig) PreviousRestartThreshold() time.Duration {
	return time.Duration(p.PreviousRestartSec) * time.Second
}

// Buffer returns the output buffer duration.
func (p PlayerConfig) Buffer() time.Duration {
	return time.Duration(p.BufferMs) * time.Millisecond
}

// Debounce returns the watcher debounce period.
func (l LibraryConfig) Debounce() time.Duration {
	return time.Duration(l.DebounceMs) * time.Millisecond
}

// Timeout returns the HTTP timeout for Last.fm requests.
func (l LastFMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}
