// Package input defines the closed vocabulary of keyboard keys and mouse
// buttons understood by the remapper, and the Event value that carries them.
//
// Values are canonical lower-case identifiers ("a", "f5", "page_up",
// "mouse_left"). Every backend translates its native codes to and from this
// vocabulary, so mappings are portable between backends.
package input

import (
	"fmt"
	"strings"
)

// EventType distinguishes keyboard events from mouse button events.
type EventType string

const (
	TypeKeyboard EventType = "keyboard"
	TypeMouse    EventType = "mouse"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == TypeKeyboard || t == TypeMouse
}

// Event is a single input identifier. It is comparable and safe to use as a
// map key.
type Event struct {
	Type  EventType `json:"event_type" yaml:"event_type" toml:"event_type"`
	Value string    `json:"value" yaml:"value" toml:"value"`
}

// Keyboard returns a keyboard event for value.
func Keyboard(value string) Event {
	return Event{Type: TypeKeyboard, Value: value}
}

// Mouse returns a mouse button event for value.
func Mouse(value string) Event {
	return Event{Type: TypeMouse, Value: value}
}

// Valid reports whether the event type is known and its value belongs to that
// type's vocabulary.
func (e Event) Valid() bool {
	switch e.Type {
	case TypeKeyboard:
		_, ok := keyTable[e.Value]
		return ok
	case TypeMouse:
		_, ok := buttonTable[e.Value]
		return ok
	default:
		return false
	}
}

// IsModifier reports whether e is one of the keyboard modifiers
// shift, ctrl, alt or meta.
func (e Event) IsModifier() bool {
	return e.Type == TypeKeyboard && modifiers[e.Value]
}

// String renders the event as "type:value".
func (e Event) String() string {
	return string(e.Type) + ":" + e.Value
}

// DisplayName returns a human-readable label such as "Page Up" or
// "Mouse Left".
func (e Event) DisplayName() string {
	if e.Type == TypeMouse {
		if name, ok := buttonNames[e.Value]; ok {
			return name
		}
		return e.Value
	}
	words := strings.Split(e.Value, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ParseEvent parses "keyboard:a", "mouse:mouse_left" or a bare value. A bare
// value is a mouse event when it starts with "mouse_", otherwise a keyboard
// event. The result is validated against the vocabulary.
func ParseEvent(s string) (Event, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Event{}, fmt.Errorf("empty event")
	}

	var ev Event
	if typ, value, ok := strings.Cut(s, ":"); ok {
		ev = Event{Type: EventType(typ), Value: value}
	} else if strings.HasPrefix(s, "mouse_") {
		ev = Mouse(s)
	} else {
		ev = Keyboard(s)
	}

	if !ev.Type.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Type == TypeKeyboard {
		if canon, ok := NormalizeKeyName(ev.Value); ok {
			ev.Value = canon
		}
	}
	if !ev.Valid() {
		return Event{}, fmt.Errorf("unknown %s value %q", ev.Type, ev.Value)
	}
	return ev, nil
}

// ParseSequence parses a target sequence written as events joined by "+" or
// ",", for example "ctrl+c" or "shift,up,down".
func ParseSequence(s string) ([]Event, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ','
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	seq := make([]Event, 0, len(fields))
	for _, f := range fields {
		ev, err := ParseEvent(f)
		if err != nil {
			return nil, err
		}
		seq = append(seq, ev)
	}
	return seq, nil
}

// Partition splits a target sequence into modifiers and actions, keeping the
// relative order inside each group.
func Partition(seq []Event) (mods, actions []Event) {
	for _, ev := range seq {
		if ev.IsModifier() {
			mods = append(mods, ev)
		} else {
			actions = append(actions, ev)
		}
	}
	return mods, actions
}
