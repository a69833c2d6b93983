package metrics

import "time"

// Remap holds the remapping engine's metrics.
type Remap struct {
	registry *Registry

	Triggers             *Counter
	Suppressed           *Counter
	InjectedEvents       *Counter
	InjectionErrors      *Counter
	LoopsStarted         *Counter
	LoopsStopped         *Counter
	DuplicateLoopTrigger *Counter
	SelfInjectedIgnored  *Counter

	ActiveLoops   *Gauge
	EngineRunning *Gauge

	SequenceDuration *Histogram
}

// NewRemap registers the engine metrics on registry. A nil registry gets a
// private one, so callers that do not export metrics can still pass the
// result around.
func NewRemap(registry *Registry) *Remap {
	if registry == nil {
		registry = NewRegistry("keyremap")
	}

	return &Remap{
		registry: registry,

		Triggers: registry.RegisterCounter(
			"triggers_total",
			"Mapped source presses that triggered a sequence or loop",
			nil,
		),
		Suppressed: registry.RegisterCounter(
			"suppressed_total",
			"Raw events suppressed by the dispatcher",
			nil,
		),
		InjectedEvents: registry.RegisterCounter(
			"injected_events_total",
			"Synthesized press and release events",
			nil,
		),
		InjectionErrors: registry.RegisterCounter(
			"injection_errors_total",
			"Synthesized events the backend failed to inject",
			nil,
		),
		LoopsStarted: registry.RegisterCounter(
			"loops_started_total",
			"Loop repeaters started",
			nil,
		),
		LoopsStopped: registry.RegisterCounter(
			"loops_stopped_total",
			"Loop repeaters that exited",
			nil,
		),
		DuplicateLoopTrigger: registry.RegisterCounter(
			"duplicate_loop_triggers_total",
			"Loop triggers ignored because the loop was already running",
			nil,
		),
		SelfInjectedIgnored: registry.RegisterCounter(
			"self_injected_ignored_total",
			"Inbound events recognized as our own injections",
			nil,
		),

		ActiveLoops: registry.RegisterGauge(
			"active_loops",
			"Loop repeaters currently registered",
			nil,
		),
		EngineRunning: registry.RegisterGauge(
			"engine_running",
			"1 while the engine holds its hooks",
			nil,
		),

		SequenceDuration: registry.RegisterHistogram(
			"sequence_duration_seconds",
			"Time to execute one target sequence",
			nil,
			DurationBuckets,
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *Remap) Registry() *Registry {
	return m.registry
}

// RecordSequence observes one executed sequence.
func (m *Remap) RecordSequence(d time.Duration) {
	m.SequenceDuration.ObserveDuration(d)
}

// LoopStarted marks a repeater as registered.
func (m *Remap) LoopStarted() {
	m.LoopsStarted.Inc()
	m.ActiveLoops.Inc()
}

// LoopStopped marks a repeater as deregistered.
func (m *Remap) LoopStopped() {
	m.LoopsStopped.Inc()
	m.ActiveLoops.Dec()
}

// SetRunning sets the engine_running gauge.
func (m *Remap) SetRunning(running bool) {
	if running {
		m.EngineRunning.Set(1)
		return
	}
	m.EngineRunning.Set(0)
}
