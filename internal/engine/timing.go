package engine

import (
	"time"

	"keyremap/internal/mapping"
)

// Timing holds the fixed delays used while synthesizing a sequence.
type Timing struct {
	// ModifierSettle follows each modifier press and precedes each
	// modifier release.
	ModifierSettle time.Duration
	// ActionSettle is the hold time between an action's press and release.
	ActionSettle time.Duration
	// TurboInterval replaces the action delay and loop period of turbo
	// mappings. It is also the lower bound of any loop period.
	TurboInterval time.Duration
	// DefaultDelay is the action delay of mappings with DelayMs == 0.
	DefaultDelay time.Duration
}

// DefaultTiming returns the standard delays.
func DefaultTiming() Timing {
	return Timing{
		ModifierSettle: 20 * time.Millisecond,
		ActionSettle:   30 * time.Millisecond,
		TurboInterval:  10 * time.Millisecond,
		DefaultDelay:   50 * time.Millisecond,
	}
}

// ActionDelay is the wait between two actions of m.
func (t Timing) ActionDelay(m mapping.Mapping) time.Duration {
	switch {
	case m.Turbo:
		return t.TurboInterval
	case m.DelayMs > 0:
		return time.Duration(m.DelayMs) * time.Millisecond
	default:
		return t.DefaultDelay
	}
}

// LoopDelay is the pause between two passes of a looping m.
func (t Timing) LoopDelay(m mapping.Mapping) time.Duration {
	if m.Turbo {
		return t.TurboInterval
	}
	return max(time.Duration(m.DelayMs)*time.Millisecond, t.TurboInterval)
}
