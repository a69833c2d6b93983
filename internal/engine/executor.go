package engine

import (
	"errors"
	"time"

	"keyremap/internal/backend"
	"keyremap/internal/input"
	"keyremap/internal/mapping"
)

// execute synthesizes one pass of m's target. Modifiers wrap all actions:
// they are pressed first in order and released last in reverse order.
// Injection is best effort; a failed step is logged and skipped.
func (e *Engine) execute(m mapping.Mapping) {
	start := time.Now()
	mods, actions := input.Partition(m.Target)

	pressed := make([]input.Event, 0, len(mods))
	// A panicking injector must not leave modifiers held system-wide.
	defer func() {
		for i := len(pressed) - 1; i >= 0; i-- {
			e.inject(pressed[i], false)
		}
	}()
	for _, mod := range mods {
		if e.inject(mod, true) {
			pressed = append(pressed, mod)
			time.Sleep(e.timing.ModifierSettle)
		}
	}

	delay := e.timing.ActionDelay(m)
	for i, act := range actions {
		if i > 0 {
			time.Sleep(delay)
		}
		if !e.inject(act, true) {
			continue
		}
		time.Sleep(e.timing.ActionSettle)
		e.inject(act, false)
	}

	for len(pressed) > 0 {
		time.Sleep(e.timing.ModifierSettle)
		last := pressed[len(pressed)-1]
		pressed = pressed[:len(pressed)-1]
		e.inject(last, false)
	}

	e.metrics.RecordSequence(time.Since(start))
}

// inject sends one press or release and reports whether it went out.
func (e *Engine) inject(ev input.Event, down bool) bool {
	var err error
	switch {
	case ev.Type == input.TypeKeyboard && down:
		err = e.backend.KeyDown(ev.Value)
	case ev.Type == input.TypeKeyboard:
		err = e.backend.KeyUp(ev.Value)
	case ev.Type == input.TypeMouse && down:
		err = e.backend.MouseDown(ev.Value)
	case ev.Type == input.TypeMouse:
		err = e.backend.MouseUp(ev.Value)
	default:
		err = backend.ErrUnknownValue
	}

	switch {
	case err == nil:
		e.metrics.InjectedEvents.Inc()
		return true
	case errors.Is(err, backend.ErrUnknownValue):
		e.log.Debug("no native code, skipped", "event", ev)
		return false
	default:
		e.metrics.InjectionErrors.Inc()
		e.log.Warn("injection failed", "event", ev, "down", down, "error", err)
		return false
	}
}
