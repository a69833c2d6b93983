package engine

import (
	"sync"

	"keyremap/internal/backend"
	"keyremap/internal/input"
	"keyremap/internal/mapping"
)

// heldSet remembers presses that were suppressed so their releases are
// suppressed too.
type heldSet struct {
	mu   sync.Mutex
	keys map[input.Event]struct{}
}

func newHeldSet() *heldSet {
	return &heldSet{keys: make(map[input.Event]struct{})}
}

func (h *heldSet) add(ev input.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys[ev] = struct{}{}
}

func (h *heldSet) take(ev input.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.keys[ev]; !ok {
		return false
	}
	delete(h.keys, ev)
	return true
}

// handle is the hook callback. Priority: own injections, stop keys of
// running loops, mapped sources, then pass-through.
func (e *Engine) handle(s *session, ev backend.RawEvent) backend.Verdict {
	if !e.current(s) {
		return backend.Pass
	}
	if ev.Injected {
		e.metrics.SelfInjectedIgnored.Inc()
		return backend.Pass
	}

	key := ev.Event()

	if !ev.Down {
		if s.held.take(key) {
			return e.suppress()
		}
		return e.passThrough(s, ev)
	}

	if e.stopLoops(s, key) {
		s.hold(key)
		return e.suppress()
	}

	if m, ok := s.table.sources[key]; ok {
		s.hold(key)
		e.trigger(s, m)
		return e.suppress()
	}

	return e.passThrough(s, ev)
}

// hold records a substituted press so its release is swallowed too. A backend
// that never delivers releases would only grow the set.
func (s *session) hold(key input.Event) {
	if s.caps.KeyUp {
		s.held.add(key)
	}
}

func (e *Engine) suppress() backend.Verdict {
	e.metrics.Suppressed.Inc()
	return backend.Suppress
}

// stopLoops cancels every running loop whose stop key is key.
func (e *Engine) stopLoops(s *session, key input.Event) bool {
	stopped := false
	for _, m := range s.table.stopKeys[key] {
		if s.loops.cancel(m.ID) {
			stopped = true
			e.log.Debug("stop key pressed", "mapping", m.ID, "key", key)
		}
	}
	return stopped
}

// passThrough lets an unmatched event through. A backend that can only
// suppress globally has already swallowed keyboard events, so they are
// replayed.
func (e *Engine) passThrough(s *session, ev backend.RawEvent) backend.Verdict {
	if s.caps.Suppression != backend.SuppressGlobal || ev.Type != input.TypeKeyboard {
		return backend.Pass
	}
	e.inject(ev.Event(), ev.Down)
	return e.suppress()
}

// trigger runs m asynchronously, as a one-shot or as a loop.
func (e *Engine) trigger(s *session, m *mapping.Mapping) {
	e.metrics.Triggers.Inc()

	if !m.Loop {
		e.log.Debug("mapping triggered", "mapping", m.ID, "source", m.Source)
		e.tasks.add()
		go func() {
			defer e.tasks.done()
			defer e.recoverTask(m.ID)
			e.execute(*m)
		}()
		return
	}

	tok, ok := s.loops.acquire(m.ID)
	if !ok {
		e.metrics.DuplicateLoopTrigger.Inc()
		e.log.Debug("loop already running", "mapping", m.ID)
		return
	}
	e.metrics.LoopStarted()
	e.log.Debug("loop started", "mapping", m.ID, "source", m.Source, "turbo", m.Turbo)

	e.tasks.add()
	go e.repeat(s, m, tok)
}
