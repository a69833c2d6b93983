package mapping

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid field of a mapping.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mapping: %s: %s", e.Field, e.Message)
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

// Validate checks that every event of m belongs to the vocabulary and that
// the timing options are sane.
func (m Mapping) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "must not be empty"})
	}
	if !m.Source.Valid() {
		errs = append(errs, ValidationError{
			Field:   "source",
			Message: fmt.Sprintf("unknown event %s", m.Source),
		})
	}
	if len(m.Target) == 0 {
		errs = append(errs, ValidationError{Field: "target", Message: "at least one event is required"})
	}
	for i, ev := range m.Target {
		if !ev.Valid() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("target[%d]", i),
				Message: fmt.Sprintf("unknown event %s", ev),
			})
		}
	}
	if m.DelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "delay_ms",
			Message: fmt.Sprintf("must be non-negative, got %d", m.DelayMs),
		})
	}
	if m.StopKey != nil && !m.StopKey.Valid() {
		errs = append(errs, ValidationError{
			Field:   "stop_key",
			Message: fmt.Sprintf("unknown event %s", *m.StopKey),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
