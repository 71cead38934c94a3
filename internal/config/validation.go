package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// ValidateConfig checks every section and returns all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validatePointer(&c.Pointer)...)
	errs = append(errs, validateCursor(&c.Cursor)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateDBus(&c.DBus)...)
	errs = append(errs, validateLayout(&c.Layout)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePointer(p *PointerConfig) ValidationErrors {
	var errs ValidationErrors

	delays := []struct {
		field string
		value int64
	}{
		{"pointer.fixation_delay_us", p.FixationDelayUs},
		{"pointer.dwell_delay_us", p.DwellDelayUs},
		{"pointer.repeat_delay_us", p.RepeatDelayUs},
		{"pointer.enter_exit_delay_us", p.EnterExitDelayUs},
	}
	for _, d := range delays {
		if d.value < 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "delay cannot be negative"})
		}
	}

	if p.DwellDelayUs < p.FixationDelayUs {
		errs = append(errs, ValidationError{
			Field:   "pointer.dwell_delay_us",
			Message: "dwell delay must not be shorter than the fixation delay",
		})
	}
	if p.RepeatDelayUs > 0 && p.RepeatDelayUs < p.DwellDelayUs {
		errs = append(errs, ValidationError{
			Field:   "pointer.repeat_delay_us",
			Message: "repeat delay must not be shorter than the dwell delay",
		})
	}
	if p.IdleTimeUs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pointer.idle_time_us",
			Message: "idle time must be positive",
		})
	}
	if p.MaxSampleMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "pointer.max_sample_ms",
			Message: "max sample duration must be at least 1 ms",
		})
	}
	if p.MaxRepeatCount < 0 {
		errs = append(errs, ValidationError{
			Field:   "pointer.max_repeat_count",
			Message: "max repeat count cannot be negative",
		})
	}

	return errs
}

func validateCursor(c *CursorConfig) ValidationErrors {
	if c.Radius < 0 {
		return ValidationErrors{{Field: "cursor.radius", Message: "radius cannot be negative"}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when logging to a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.ThrottleMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.throttle_ms",
			Message: "throttle cannot be negative",
		})
	}

	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors
	if j.Enabled && j.Path == "" {
		errs = append(errs, ValidationError{Field: "journal.path", Message: "path is required when the journal is enabled"})
	}
	if j.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "journal.busy_timeout_ms", Message: "busy timeout cannot be negative"})
	}
	if j.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "journal.retention_days", Message: "retention cannot be negative"})
	}
	return errs
}

func validateServer(s *ServerConfig) ValidationErrors {
	if !s.Enabled {
		return nil
	}
	var errs ValidationErrors
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.listen",
			Message: fmt.Sprintf("invalid listen address %q: %v", s.Listen, err),
		})
	}
	for _, p := range []struct{ field, path string }{
		{"server.websocket_path", s.WebSocketPath},
		{"server.metrics_path", s.MetricsPath},
	} {
		if !strings.HasPrefix(p.path, "/") {
			errs = append(errs, ValidationError{Field: p.field, Message: "path must start with /"})
		}
	}
	if s.WebSocketPath != "" && s.WebSocketPath == s.MetricsPath {
		errs = append(errs, ValidationError{Field: "server.metrics_path", Message: "metrics and websocket paths collide"})
	}
	return errs
}

func validateDBus(d *DBusConfig) ValidationErrors {
	if !d.Enabled {
		return nil
	}
	var errs ValidationErrors
	if d.Bus != "session" && d.Bus != "system" {
		errs = append(errs, ValidationError{Field: "dbus.bus", Message: fmt.Sprintf("invalid bus %q (valid: session, system)", d.Bus)})
	}
	if d.Interface == "" || !strings.Contains(d.Interface, ".") {
		errs = append(errs, ValidationError{Field: "dbus.interface", Message: "interface must be a dotted name"})
	}
	if !strings.HasPrefix(d.Path, "/") {
		errs = append(errs, ValidationError{Field: "dbus.path", Message: "object path must start with /"})
	}
	return errs
}

func validateLayout(l *LayoutConfig) ValidationErrors {
	if l.Path != "" {
		return nil
	}
	if l.ScreenWidth <= 0 || l.ScreenHeight <= 0 {
		return ValidationErrors{{Field: "layout.screen_width", Message: "screen size must be positive without a layout file"}}
	}
	return nil
}
