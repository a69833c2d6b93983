// Package backend provides the OS-facing half of the remapper: a Hook that
// delivers raw key and mouse button events to a handler which decides whether
// the event is suppressed, and an Injector that synthesizes input.
//
// Two strategies exist:
//   - Windows: WH_KEYBOARD_LL / WH_MOUSE_LL hooks with selective suppression.
//     Synthesized events carry a marker in dwExtraInfo so the hook can
//     recognize them.
//   - Listener (cgo, non-Windows): a passive global listener that cannot
//     suppress. Synthesized events are recognized through an injection ledger.
//
// A Simulated backend stands in for the OS in tests and dry runs.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"keyremap/internal/input"
)

var (
	// ErrUnsupported is returned when a backend is not built for this platform.
	ErrUnsupported = errors.New("backend: not supported on this platform")

	// ErrHookInstall is returned when the OS refuses a hook or listener.
	ErrHookInstall = errors.New("backend: hook installation failed")

	// ErrUnknownValue is returned when a value has no native code.
	ErrUnknownValue = errors.New("backend: no native code for value")

	// ErrAlreadySubscribed is returned when an event type already has a handler.
	ErrAlreadySubscribed = errors.New("backend: event type already subscribed")
)

// RawEvent is a single press or release observed by a hook.
type RawEvent struct {
	Type  input.EventType
	Value string
	Down  bool

	// Injected is set when the event was synthesized by this process.
	Injected bool

	// Code is the native code (virtual key, button id or raw code).
	Code uint32
}

// Event returns the vocabulary event for e.
func (e RawEvent) Event() input.Event {
	return input.Event{Type: e.Type, Value: e.Value}
}

func (e RawEvent) String() string {
	dir := "up"
	if e.Down {
		dir = "down"
	}
	s := fmt.Sprintf("%s %s", e.Event(), dir)
	if e.Injected {
		s += " (injected)"
	}
	return s
}

// Verdict is a handler's decision about a raw event.
type Verdict int

const (
	Pass Verdict = iota
	Suppress
)

func (v Verdict) String() string {
	if v == Suppress {
		return "suppress"
	}
	return "pass"
}

// Handler receives raw events. It runs on the hook goroutine and must not
// block.
type Handler func(RawEvent) Verdict

// Injector synthesizes input. Values come from the input vocabulary.
type Injector interface {
	KeyDown(value string) error
	KeyUp(value string) error
	MouseDown(value string) error
	MouseUp(value string) error
}

// Subscription is an installed hook.
type Subscription interface {
	Close() error
}

// Hook installs handlers for one event type at a time.
type Hook interface {
	Subscribe(t input.EventType, h Handler) (Subscription, error)
}

// Suppression describes what a backend can do with a Suppress verdict.
type Suppression int

const (
	// SuppressSelective drops exactly the events the handler suppresses.
	SuppressSelective Suppression = iota
	// SuppressGlobal can only suppress all keyboard events; the caller must
	// mirror events it wants to pass through.
	SuppressGlobal
	// SuppressNone ignores verdicts.
	SuppressNone
)

func (s Suppression) String() string {
	switch s {
	case SuppressSelective:
		return "selective"
	case SuppressGlobal:
		return "global"
	case SuppressNone:
		return "none"
	default:
		return fmt.Sprintf("suppression(%d)", int(s))
	}
}

// Tagging is the way a backend recognizes its own synthesized events.
type Tagging int

const (
	// TagMarker backends stamp injected events and read the stamp back.
	TagMarker Tagging = iota
	// TagLedger backends remember what they injected and match it on the
	// way back in.
	TagLedger
)

func (t Tagging) String() string {
	switch t {
	case TagMarker:
		return "marker"
	case TagLedger:
		return "ledger"
	default:
		return fmt.Sprintf("tagging(%d)", int(t))
	}
}

// Capabilities describes a backend.
type Capabilities struct {
	Suppression Suppression
	// KeyUp is set when releases are delivered as distinct events. Without
	// it the engine does not track substituted presses.
	KeyUp   bool
	Tagging Tagging
}

// Backend is a complete input backend.
type Backend interface {
	Injector
	Hook
	Name() string
	Capabilities() Capabilities
}

// Names lists the names accepted by New.
func Names() []string {
	return []string{"auto", "windows", "listener", "simulated"}
}

// New returns the backend called name. "auto" (or "") selects windows on
// Windows and listener elsewhere.
func New(name string, log *slog.Logger) (Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	switch name {
	case "", "auto":
		if runtime.GOOS == "windows" {
			return newWindows(log)
		}
		return newListener(log)
	case "windows":
		return newWindows(log)
	case "listener":
		return newListener(log)
	case "simulated":
		return NewSimulated(), nil
	default:
		return nil, fmt.Errorf("backend %q: %w", name, ErrUnsupported)
	}
}
