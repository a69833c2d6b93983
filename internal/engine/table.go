package engine

import (
	"errors"
	"fmt"

	"keyremap/internal/input"
	"keyremap/internal/mapping"
)

// ErrConflict matches every *ConflictError.
var ErrConflict = errors.New("engine: conflicting mappings")

// ConflictError reports two enabled mappings bound to the same source.
type ConflictError struct {
	Source input.Event
	First  string
	Second string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("engine: mappings %s and %s share source %s", e.First, e.Second, e.Source)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// table is the immutable lookup built from one snapshot of mappings.
type table struct {
	sources  map[input.Event]*mapping.Mapping
	stopKeys map[input.Event][]*mapping.Mapping
	keyboard bool
	mouse    bool
}

// buildTable keeps the enabled mappings, validates them and indexes them by
// source and stop key.
func buildTable(ms []mapping.Mapping) (*table, error) {
	t := &table{
		sources:  make(map[input.Event]*mapping.Mapping),
		stopKeys: make(map[input.Event][]*mapping.Mapping),
	}

	for _, m := range mapping.Active(ms) {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
		}
		m := m.Clone()
		if prev, ok := t.sources[m.Source]; ok {
			return nil, &ConflictError{Source: m.Source, First: prev.ID, Second: m.ID}
		}
		t.sources[m.Source] = &m
		t.need(m.Source.Type)

		if m.StopKey != nil {
			t.stopKeys[*m.StopKey] = append(t.stopKeys[*m.StopKey], &m)
			t.need(m.StopKey.Type)
		}
	}
	return t, nil
}

func (t *table) need(typ input.EventType) {
	switch typ {
	case input.TypeKeyboard:
		t.keyboard = true
	case input.TypeMouse:
		t.mouse = true
	}
}

// Check runs the same validation and conflict detection as Start without
// touching the backend.
func Check(ms []mapping.Mapping) error {
	_, err := buildTable(ms)
	return err
}
