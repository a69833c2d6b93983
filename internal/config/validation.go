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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var backendNames = []string{"auto", "windows", "listener", "simulated"}

// ValidateConfig performs validation of the whole configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if c.Backend != "" && !contains(backendNames, c.Backend) {
		errs = append(errs, ValidationError{
			Field:   "backend",
			Message: fmt.Sprintf("unknown backend %q (valid: %s)", c.Backend, strings.Join(backendNames, ", ")),
		})
	}

	errs = append(errs, validateStore(&c.Store)...)
	errs = append(errs, validateTiming(&c.Timing)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStore(s *StoreConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case StoreJSON, StoreSQLite:
	default:
		errs = append(errs, ValidationError{
			Field:   "store.type",
			Message: fmt.Sprintf("invalid store type: %s (valid: json, sqlite)", s.Type),
		})
	}

	if s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "store.path",
			Message: "store path is required",
		})
	}

	return errs
}

func validateTiming(t *TimingConfig) ValidationErrors {
	var errs ValidationErrors

	fields := []struct {
		name  string
		value int
	}{
		{"timing.modifier_settle_ms", t.ModifierSettleMs},
		{"timing.action_settle_ms", t.ActionSettleMs},
		{"timing.default_delay_ms", t.DefaultDelayMs},
	}
	for _, f := range fields {
		if f.value < 0 {
			errs = append(errs, ValidationError{
				Field:   f.name,
				Message: "cannot be negative",
			})
		}
	}

	if t.TurboIntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "timing.turbo_interval_ms",
			Message: "must be at least 1 ms",
		})
	}

	return errs
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
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
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

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if m.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return ValidationErrors{{
			Field:   "metrics.listen",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		}}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
