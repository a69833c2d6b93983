// Package engine matches raw input against a set of mappings and synthesizes
// their target sequences through a backend.
//
// Each Start builds a session: lookup tables, a loop registry and the set of
// substituted presses. Stop discards it. Hook callbacks only ever act on the
// session they were installed for.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"keyremap/internal/backend"
	"keyremap/internal/input"
	"keyremap/internal/mapping"
	"keyremap/internal/metrics"
)

// ErrListenerInstall is returned by Start when a hook cannot be installed.
var ErrListenerInstall = errors.New("engine: listener installation failed")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The engine adds component=engine.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option {
	return func(e *Engine) { e.timing = t }
}

// WithMetrics sets the metrics the engine records into.
func WithMetrics(m *metrics.Remap) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithPanicHandler receives panics recovered from sequence and loop
// goroutines. The engine logs them and keeps running either way.
func WithPanicHandler(fn func(v any, stack []byte)) Option {
	return func(e *Engine) { e.onPanic = fn }
}

// Engine owns the hooks installed on a backend while running.
type Engine struct {
	backend backend.Backend
	log     *slog.Logger
	timing  Timing
	metrics *metrics.Remap
	onPanic func(v any, stack []byte)

	// life serializes Start and Stop.
	life sync.Mutex

	mu   sync.RWMutex
	sess *session

	tasks taskGroup
}

// session is everything built by one Start.
type session struct {
	table  *table
	caps   backend.Capabilities
	cancel context.CancelFunc
	loops  *loopRegistry
	held   *heldSet
	subs   []backend.Subscription
}

// New creates a stopped engine on b.
func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: b,
		log:     slog.Default(),
		timing:  DefaultTiming(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRemap(nil)
	}
	e.log = e.log.With("component", "engine")
	return e
}

// Start installs hooks for ms. A running engine is stopped first. Disabled
// mappings are ignored; invalid or conflicting enabled mappings fail the
// start and leave the engine stopped.
func (e *Engine) Start(ms []mapping.Mapping) error {
	e.life.Lock()
	defer e.life.Unlock()

	e.stopLocked()

	tbl, err := buildTable(ms)
	if err != nil {
		e.log.Error("mapping set rejected", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		table:  tbl,
		caps:   e.backend.Capabilities(),
		cancel: cancel,
		loops:  newLoopRegistry(ctx),
		held:   newHeldSet(),
	}

	for _, typ := range []input.EventType{input.TypeKeyboard, input.TypeMouse} {
		if (typ == input.TypeKeyboard && !tbl.keyboard) || (typ == input.TypeMouse && !tbl.mouse) {
			continue
		}
		sub, err := e.backend.Subscribe(typ, func(ev backend.RawEvent) backend.Verdict {
			return e.handle(s, ev)
		})
		if err != nil {
			closeAll(s.subs, e.log)
			cancel()
			err = fmt.Errorf("%w: %s: %w", ErrListenerInstall, typ, err)
			e.log.Error("listener install failed", "type", typ, "backend", e.backend.Name(), "error", err)
			return err
		}
		s.subs = append(s.subs, sub)
	}

	e.mu.Lock()
	e.sess = s
	e.mu.Unlock()

	e.metrics.SetRunning(true)
	e.log.Info("engine started",
		"backend", e.backend.Name(),
		"mappings", len(tbl.sources),
		"keyboard", tbl.keyboard,
		"mouse", tbl.mouse,
		"suppression", s.caps.Suppression,
		"tagging", s.caps.Tagging,
	)
	return nil
}

// Stop cancels every loop and removes the hooks. It does not wait for
// running sequences; use Wait for that. Stop on a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.life.Lock()
	defer e.life.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	e.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	closeAll(s.subs, e.log)

	e.metrics.SetRunning(false)
	e.log.Info("engine stopped")
}

func closeAll(subs []backend.Subscription, log *slog.Logger) {
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			log.Warn("unsubscribe failed", "error", err)
		}
	}
}

// IsRunning reports whether hooks are installed.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess != nil
}

// ActiveLoops returns the ids of mappings currently looping.
func (e *Engine) ActiveLoops() []string {
	e.mu.RLock()
	s := e.sess
	e.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.loops.ids()
}

// Wait blocks until every sequence and loop started so far has returned, or
// ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	return e.tasks.wait(ctx)
}

func (e *Engine) current(s *session) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess == s
}

// recoverTask must be deferred directly by a task goroutine.
func (e *Engine) recoverTask(id string) {
	v := recover()
	if v == nil {
		return
	}
	stack := debug.Stack()
	e.log.Error("sequence panicked", "mapping", id, "panic", v)
	if e.onPanic != nil {
		e.onPanic(v, stack)
	}
}

// taskGroup counts running goroutines. Unlike sync.WaitGroup it allows
// waiting while new tasks are being added.
type taskGroup struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (g *taskGroup) add() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == 0 {
		g.idle = make(chan struct{})
	}
	g.n++
}

func (g *taskGroup) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n--
	if g.n == 0 {
		close(g.idle)
	}
}

func (g *taskGroup) wait(ctx context.Context) error {
	g.mu.Lock()
	if g.n == 0 {
		g.mu.Unlock()
		return nil
	}
	idle := g.idle
	g.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
