// Package config handles configuration loading, validation, and management
// for the gaze input daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gazeinput/internal/gaze"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Pointer holds the gaze state machine timing.
	Pointer PointerConfig `toml:"pointer" json:"pointer" yaml:"pointer"`

	// Cursor holds the gaze cursor presentation.
	Cursor CursorConfig `toml:"cursor" json:"cursor" yaml:"cursor"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Journal configuration for the event database.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Server configuration for the HTTP and websocket endpoints.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// DBus configuration for the desktop bus gaze source.
	DBus DBusConfig `toml:"dbus" json:"dbus" yaml:"dbus"`

	// Layout configuration for the element tree.
	Layout LayoutConfig `toml:"layout" json:"layout" yaml:"layout"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// PointerConfig holds the fallback state delays. Delays are given in
// microseconds, the tick unit of tracker timestamps.
type PointerConfig struct {
	FixationDelayUs  int64 `toml:"fixation_delay_us" json:"fixation_delay_us" yaml:"fixation_delay_us"`
	DwellDelayUs     int64 `toml:"dwell_delay_us" json:"dwell_delay_us" yaml:"dwell_delay_us"`
	RepeatDelayUs    int64 `toml:"repeat_delay_us" json:"repeat_delay_us" yaml:"repeat_delay_us"`
	EnterExitDelayUs int64 `toml:"enter_exit_delay_us" json:"enter_exit_delay_us" yaml:"enter_exit_delay_us"`

	// IdleTimeUs is the eyes-off delay.
	IdleTimeUs int64 `toml:"idle_time_us" json:"idle_time_us" yaml:"idle_time_us"`

	// MaxSampleMs caps the gaze time credited for a single sample, so a
	// tracker gap is not counted as looking.
	MaxSampleMs int64 `toml:"max_sample_ms" json:"max_sample_ms" yaml:"max_sample_ms"`

	// MaxRepeatCount is the number of repeat invocations allowed on layout
	// nodes that do not set their own.
	MaxRepeatCount int `toml:"max_repeat_count" json:"max_repeat_count" yaml:"max_repeat_count"`
}

// CursorConfig holds the gaze cursor presentation.
type CursorConfig struct {
	Visible bool `toml:"visible" json:"visible" yaml:"visible"`
	Radius  int  `toml:"radius" json:"radius" yaml:"radius"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is where logs go: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// ThrottleMs limits repeated debug messages to one per interval.
	ThrottleMs int `toml:"throttle_ms" json:"throttle_ms" yaml:"throttle_ms"`
}

// JournalConfig holds the event journal configuration.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the sqlite busy timeout.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// RetentionDays drops sessions older than this on open. Zero keeps all.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Enabled       bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen        string `toml:"listen" json:"listen" yaml:"listen"`
	WebSocketPath string `toml:"websocket_path" json:"websocket_path" yaml:"websocket_path"`
	MetricsPath   string `toml:"metrics_path" json:"metrics_path" yaml:"metrics_path"`

	// AllowedOrigins are the websocket origin patterns accepted besides
	// same-origin requests.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// DBusConfig holds the desktop bus source configuration.
type DBusConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Bus is "session" or "system".
	Bus string `toml:"bus" json:"bus" yaml:"bus"`

	// Interface is the signal interface the tracker daemon emits on.
	Interface string `toml:"interface" json:"interface" yaml:"interface"`

	// Path is the object path of the tracker daemon.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LayoutConfig names the element tree the pointer hit tests against.
type LayoutConfig struct {
	// Path is a YAML layout file. When empty, a single screen-sized root
	// of ScreenWidth by ScreenHeight is used.
	Path         string  `toml:"path" json:"path" yaml:"path"`
	ScreenWidth  float64 `toml:"screen_width" json:"screen_width" yaml:"screen_width"`
	ScreenHeight float64 `toml:"screen_height" json:"screen_height" yaml:"screen_height"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Pointer: PointerConfig{
			FixationDelayUs:  gaze.DefaultFixationDelay.Microseconds(),
			DwellDelayUs:     gaze.DefaultDwellDelay.Microseconds(),
			RepeatDelayUs:    gaze.DefaultRepeatDelay.Microseconds(),
			EnterExitDelayUs: gaze.DefaultEnterExitDelay.Microseconds(),
			IdleTimeUs:       gaze.DefaultEyesOffDelay.Microseconds(),
			MaxSampleMs:      gaze.DefaultMaxSampleDuration.Milliseconds(),
			MaxRepeatCount:   0,
		},
		Cursor: CursorConfig{
			Visible: true,
			Radius:  gaze.DefaultCursorRadius,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "gazed.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			ThrottleMs: 1000,
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "journal.db"),
			BusyTimeoutMs: 5000,
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:        true,
			Listen:         "127.0.0.1:7878",
			WebSocketPath:  "/ws",
			MetricsPath:    "/metrics",
			AllowedOrigins: []string{},
		},
		DBus: DBusConfig{
			Enabled:   false,
			Bus:       "session",
			Interface: "org.gazeinput.Tracker",
			Path:      "/org/gazeinput/Tracker",
		},
		Layout: LayoutConfig{
			ScreenWidth:  1920,
			ScreenHeight: 1080,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base data directory.
// Uses platform-specific paths or the GAZE_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("GAZE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path, applies environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories of the configured files.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Logging.FilePath)}
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with GAZE_.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	envInt64 := func(name string, dst *int64) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	envInt64("GAZE_FIXATION_DELAY_US", &c.Pointer.FixationDelayUs)
	envInt64("GAZE_DWELL_DELAY_US", &c.Pointer.DwellDelayUs)
	envInt64("GAZE_REPEAT_DELAY_US", &c.Pointer.RepeatDelayUs)
	envInt64("GAZE_ENTER_EXIT_DELAY_US", &c.Pointer.EnterExitDelayUs)
	envInt64("GAZE_IDLE_TIME_US", &c.Pointer.IdleTimeUs)

	if v := os.Getenv("GAZE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GAZE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("GAZE_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	envBool("GAZE_JOURNAL_ENABLED", &c.Journal.Enabled)
	if v := os.Getenv("GAZE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	envBool("GAZE_DBUS_ENABLED", &c.DBus.Enabled)
	if v := os.Getenv("GAZE_LAYOUT"); v != "" {
		c.Layout.Path = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version: c.Version,
		Pointer: c.Pointer,
		Cursor:  c.Cursor,
		Logging: c.Logging,
		Journal: c.Journal,
		Server:  c.Server,
		DBus:    c.DBus,
		Layout:  c.Layout,
	}
	clone.Server.AllowedOrigins = append([]string{}, c.Server.AllowedOrigins...)
	return clone
}

// Settings renders the pointer and cursor sections as the flat settings
// map understood by gaze.Pointer.LoadSettings.
func (c *Config) Settings() gaze.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return gaze.Settings{
		gaze.SettingFixationDelay:    c.Pointer.FixationDelayUs,
		gaze.SettingDwellDelay:       c.Pointer.DwellDelayUs,
		gaze.SettingRepeatDelay:      c.Pointer.RepeatDelayUs,
		gaze.SettingEnterExitDelay:   c.Pointer.EnterExitDelayUs,
		gaze.SettingGazeIdleTime:     c.Pointer.IdleTimeUs,
		gaze.SettingCursorRadius:     c.Cursor.Radius,
		gaze.SettingCursorVisibility: c.Cursor.Visible,
	}
}

// MaxSampleDuration returns the single sample cap as a duration.
func (c *Config) MaxSampleDuration() time.Duration {
	return time.Duration(c.Pointer.MaxSampleMs) * time.Millisecond
}
