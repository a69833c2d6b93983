package mapping

import (
	"sort"

	"keyremap/internal/input"
)

// presets are target templates. The source is chosen by the user.
var presets = map[string]Mapping{
	"shift_arrow_turbo": {
		Target: []input.Event{
			input.Keyboard("shift"),
			input.Keyboard("up"),
			input.Keyboard("down"),
			input.Keyboard("left"),
			input.Keyboard("right"),
		},
		Turbo:   true,
		Loop:    true,
		DelayMs: 0,
	},
}

// Preset returns a fresh copy of the named preset with a new id and
// Enabled set. The Source is left zero.
func Preset(name string) (Mapping, bool) {
	p, ok := presets[name]
	if !ok {
		return Mapping{}, false
	}
	m := New(input.Event{}, p.Target...)
	m.Turbo = p.Turbo
	m.Loop = p.Loop
	m.DelayMs = p.DelayMs
	return m, true
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
