// Package mapping defines the remapping rule model and the repository
// contract the engine reads its active set from.
package mapping

import (
	"github.com/google/uuid"

	"keyremap/internal/input"
)

// Mapping is a single remapping rule: when Source is pressed, Target is
// synthesized in its place.
type Mapping struct {
	ID      string        `json:"id"`
	Source  input.Event   `json:"source"`
	Target  []input.Event `json:"target"`
	Enabled bool          `json:"enabled"`

	// DelayMs is the wait between target actions. Zero selects the engine
	// default.
	DelayMs int  `json:"delay_ms"`
	Turbo   bool `json:"turbo"`
	Loop    bool `json:"loop"`

	// StopKey cancels a running loop of this mapping. Nil means the loop only
	// ends when the engine stops.
	StopKey *input.Event `json:"stop_key"`
}

// New returns an enabled mapping with a fresh id.
func New(source input.Event, target ...input.Event) Mapping {
	return Mapping{
		ID:      uuid.NewString(),
		Source:  source,
		Target:  append([]input.Event(nil), target...),
		Enabled: true,
	}
}

// Clone returns a deep copy of m.
func (m Mapping) Clone() Mapping {
	out := m
	out.Target = append([]input.Event(nil), m.Target...)
	if m.StopKey != nil {
		sk := *m.StopKey
		out.StopKey = &sk
	}
	return out
}

// HasStopKey reports whether a stop key is configured.
func (m Mapping) HasStopKey() bool {
	return m.StopKey != nil
}

// Active returns the enabled mappings of ms in their original order.
func Active(ms []Mapping) []Mapping {
	out := make([]Mapping, 0, len(ms))
	for _, m := range ms {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// CloneAll deep-copies a mapping list.
func CloneAll(ms []Mapping) []Mapping {
	if ms == nil {
		return nil
	}
	out := make([]Mapping, len(ms))
	for i, m := range ms {
		out[i] = m.Clone()
	}
	return out
}
