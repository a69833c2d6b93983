package backend

import (
	"fmt"
	"sync"
	"time"

	"keyremap/internal/input"
)

// Action is one synthesized press or release recorded by Simulated.
type Action struct {
	Event input.Event
	Down  bool
	At    time.Time
}

func (a Action) String() string {
	if a.Down {
		return a.Event.String() + " down"
	}
	return a.Event.String() + " up"
}

// SimulatedOption configures a Simulated backend.
type SimulatedOption func(*Simulated)

// WithSuppression sets the reported suppression capability.
func WithSuppression(s Suppression) SimulatedOption {
	return func(b *Simulated) { b.caps.Suppression = s }
}

// WithoutEcho stops injected actions from being delivered back to the
// subscribed handlers.
func WithoutEcho() SimulatedOption {
	return func(b *Simulated) { b.echo = false }
}

// WithLedger switches self-injection detection from the injected flag to a
// Ledger, the way the listener backend works: echoes arrive unflagged and
// Deliver flags the ones the ledger recognizes.
func WithLedger() SimulatedOption {
	return func(b *Simulated) {
		b.caps.Tagging = TagLedger
		b.ledger = NewLedger(DefaultLedgerTTL)
	}
}

// WithoutKeyUp reports a backend that never delivers releases.
func WithoutKeyUp() SimulatedOption {
	return func(b *Simulated) { b.caps.KeyUp = false }
}

// WithSubscribeError makes Subscribe fail for t.
func WithSubscribeError(t input.EventType, err error) SimulatedOption {
	return func(b *Simulated) { b.subscribeErr[t] = err }
}

// Simulated is an in-memory backend. Injected actions are recorded and, unless
// disabled, echoed to the subscribed handler flagged as injected, the way an
// OS hook sees a process's own SendInput.
type Simulated struct {
	mu           sync.Mutex
	caps         Capabilities
	echo         bool
	handlers     map[input.EventType]*simSubscription
	actions      []Action
	subscribeErr map[input.EventType]error
	failures     map[input.Event]error
	ledger       *Ledger
}

// NewSimulated creates a simulated backend with selective suppression.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	b := &Simulated{
		caps:         Capabilities{Suppression: SuppressSelective, KeyUp: true, Tagging: TagMarker},
		echo:         true,
		handlers:     make(map[input.EventType]*simSubscription),
		subscribeErr: make(map[input.EventType]error),
		failures:     make(map[input.Event]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Simulated) Name() string { return "simulated" }

func (b *Simulated) Capabilities() Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caps
}

type simSubscription struct {
	b       *Simulated
	t       input.EventType
	handler Handler
	once    sync.Once
}

func (s *simSubscription) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		if s.b.handlers[s.t] == s {
			delete(s.b.handlers, s.t)
		}
	})
	return nil
}

// Subscribe installs h for t.
func (b *Simulated) Subscribe(t input.EventType, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.subscribeErr[t]; err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", t, err)
	}
	if _, ok := b.handlers[t]; ok {
		return nil, ErrAlreadySubscribed
	}
	sub := &simSubscription{b: b, t: t, handler: h}
	b.handlers[t] = sub
	return sub, nil
}

// Subscribed reports whether a handler is installed for t.
func (b *Simulated) Subscribed(t input.EventType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[t]
	return ok
}

// Deliver feeds ev to the handler subscribed for its type. Without a handler
// the event passes.
func (b *Simulated) Deliver(ev RawEvent) Verdict {
	b.mu.Lock()
	sub := b.handlers[ev.Type]
	b.mu.Unlock()

	if b.ledger != nil && !ev.Injected {
		ev.Injected = b.ledger.Consume(ev.Event(), ev.Down)
	}
	if sub == nil {
		return Pass
	}
	return sub.handler(ev)
}

// PendingInjections returns the number of ledger entries not yet matched by
// an echo. It is always zero without WithLedger.
func (b *Simulated) PendingInjections() int {
	if b.ledger == nil {
		return 0
	}
	return b.ledger.Len()
}

// Press delivers a physical press and release of ev and returns both
// verdicts.
func (b *Simulated) Press(ev input.Event) (down, up Verdict) {
	down = b.Deliver(RawEvent{Type: ev.Type, Value: ev.Value, Down: true})
	up = b.Deliver(RawEvent{Type: ev.Type, Value: ev.Value, Down: false})
	return down, up
}

// FailInjection makes every injection of ev return err. A nil err clears it.
func (b *Simulated) FailInjection(ev input.Event, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, ev)
		return
	}
	b.failures[ev] = err
}

// Actions returns a copy of the recorded actions.
func (b *Simulated) Actions() []Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Action(nil), b.actions...)
}

// Reset clears the recorded actions.
func (b *Simulated) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = nil
}

func (b *Simulated) KeyDown(value string) error {
	return b.inject(input.Keyboard(value), true)
}

func (b *Simulated) KeyUp(value string) error {
	return b.inject(input.Keyboard(value), false)
}

func (b *Simulated) MouseDown(value string) error {
	return b.inject(input.Mouse(value), true)
}

func (b *Simulated) MouseUp(value string) error {
	return b.inject(input.Mouse(value), false)
}

func (b *Simulated) inject(ev input.Event, down bool) error {
	if !ev.Valid() {
		return fmt.Errorf("%s: %w", ev, ErrUnknownValue)
	}

	b.mu.Lock()
	if err := b.failures[ev]; err != nil {
		b.mu.Unlock()
		return err
	}
	b.actions = append(b.actions, Action{Event: ev, Down: down, At: time.Now()})
	echo := b.echo
	tagged := b.ledger == nil
	b.mu.Unlock()

	if !tagged {
		b.ledger.Record(ev, down)
	}
	if echo {
		b.Deliver(RawEvent{Type: ev.Type, Value: ev.Value, Down: down, Injected: tagged})
	}
	return nil
}
