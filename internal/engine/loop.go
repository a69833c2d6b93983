package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"keyremap/internal/mapping"
)

// loopToken is the cancellation handle of one repeater.
type loopToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// loopRegistry maps mapping ids to their running repeater. Presence of an id
// is what "looping" means; a cancelled repeater stays registered until it
// exits.
type loopRegistry struct {
	parent context.Context

	mu     sync.Mutex
	tokens map[string]*loopToken
}

func newLoopRegistry(parent context.Context) *loopRegistry {
	return &loopRegistry{parent: parent, tokens: make(map[string]*loopToken)}
}

// acquire registers a new token for id unless one is already registered.
func (r *loopRegistry) acquire(id string) (*loopToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[id]; ok {
		return nil, false
	}
	ctx, cancel := context.WithCancel(r.parent)
	tok := &loopToken{ctx: ctx, cancel: cancel}
	r.tokens[id] = tok
	return tok, true
}

// release deregisters id if tok is still the registered token.
func (r *loopRegistry) release(id string, tok *loopToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok.cancel()
	if r.tokens[id] != tok {
		return false
	}
	delete(r.tokens, id)
	return true
}

// cancel signals the repeater for id. It reports whether one was registered.
func (r *loopRegistry) cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[id]
	if ok {
		tok.cancel()
	}
	return ok
}

func (r *loopRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.tokens))
	for id := range r.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// repeat runs the mapping's sequence until tok is cancelled, pausing the
// loop delay between passes.
func (e *Engine) repeat(s *session, m *mapping.Mapping, tok *loopToken) {
	defer e.tasks.done()

	id := m.ID
	defer e.recoverTask(id)
	delay := e.timing.LoopDelay(*m)

	defer func() {
		if s.loops.release(id, tok) {
			e.metrics.LoopStopped()
			e.log.Debug("loop stopped", "mapping", id)
		}
	}()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		if tok.ctx.Err() != nil {
			return
		}
		e.execute(*m)

		timer.Reset(delay)
		select {
		case <-tok.ctx.Done():
			return
		case <-timer.C:
		}
	}
}
