//go:build cgo && !windows

package backend

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-vgo/robotgo"
	hook "github.com/robotn/gohook"

	"keyremap/internal/input"
)

// Listener is the passive listener backend. It observes input through a
// global gohook stream and synthesizes with robotgo. The stream cannot drop
// events, so every verdict is ignored, and injected events are recognized
// through a Ledger.
type Listener struct {
	log    *slog.Logger
	ledger *Ledger

	mu       sync.Mutex
	handlers map[input.EventType]*listenerSub
	stop     chan struct{}
	done     chan struct{}
}

func newListener(log *slog.Logger) (Backend, error) {
	return &Listener{
		log:      log.With("component", "backend", "backend", "listener"),
		ledger:   NewLedger(DefaultLedgerTTL),
		handlers: make(map[input.EventType]*listenerSub),
	}, nil
}

func (b *Listener) Name() string { return "listener" }

func (b *Listener) Capabilities() Capabilities {
	return Capabilities{Suppression: SuppressNone, KeyUp: true, Tagging: TagLedger}
}

type listenerSub struct {
	b       *Listener
	t       input.EventType
	handler Handler
	once    sync.Once
}

// Subscribe registers h for t. The shared event stream starts with the first
// subscription and ends with the last.
func (b *Listener) Subscribe(t input.EventType, h Handler) (Subscription, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("subscribe %q: %w", t, ErrUnsupported)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[t]; ok {
		return nil, ErrAlreadySubscribed
	}
	if len(b.handlers) == 0 {
		events := hook.Start()
		if events == nil {
			return nil, fmt.Errorf("%w: event stream unavailable", ErrHookInstall)
		}
		b.stop = make(chan struct{})
		b.done = make(chan struct{})
		go b.run(events, b.stop, b.done)
		b.log.Debug("listener started")
	}

	sub := &listenerSub{b: b, t: t, handler: h}
	b.handlers[t] = sub
	return sub, nil
}

func (s *listenerSub) Close() error {
	s.once.Do(func() {
		b := s.b
		b.mu.Lock()
		if b.handlers[s.t] == s {
			delete(b.handlers, s.t)
		}
		var stop, done chan struct{}
		if len(b.handlers) == 0 && b.stop != nil {
			stop, done = b.stop, b.done
			b.stop, b.done = nil, nil
		}
		b.mu.Unlock()

		if stop != nil {
			hook.End()
			close(stop)
			<-done
			b.log.Debug("listener stopped")
		}
	})
	return nil
}

func (b *Listener) run(events chan hook.Event, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			raw, ok := translate(e)
			if !ok {
				continue
			}
			raw.Injected = b.ledger.Consume(raw.Event(), raw.Down)

			b.mu.Lock()
			sub := b.handlers[raw.Type]
			b.mu.Unlock()
			if sub != nil {
				sub.handler(raw)
			}
		}
	}
}

func translate(e hook.Event) (RawEvent, bool) {
	switch e.Kind {
	case hook.KeyHold, hook.KeyUp:
		value, ok := listenerKey(hook.RawcodetoKeychar(e.Rawcode), e.Keychar)
		if !ok {
			return RawEvent{}, false
		}
		return RawEvent{
			Type:  input.TypeKeyboard,
			Value: value,
			Down:  e.Kind == hook.KeyHold,
			Code:  uint32(e.Rawcode),
		}, true
	case hook.MouseHold, hook.MouseDown:
		value, ok := listenerButton(e.Button)
		if !ok {
			return RawEvent{}, false
		}
		return RawEvent{
			Type:  input.TypeMouse,
			Value: value,
			Down:  e.Kind == hook.MouseHold,
			Code:  uint32(e.Button),
		}, true
	default:
		return RawEvent{}, false
	}
}

func (b *Listener) KeyDown(value string) error { return b.toggleKey(value, true) }
func (b *Listener) KeyUp(value string) error { return b.toggleKey(value, false) }

func (b *Listener) MouseDown(value string) error { return b.toggleButton(value, true) }
func (b *Listener) MouseUp(value string) error { return b.toggleButton(value, false) }

func (b *Listener) toggleKey(value string, down bool) error {
	name, ok := robotgoKey(value)
	if !ok {
		return fmt.Errorf("%s: %w", value, ErrUnknownValue)
	}
	ev := input.Keyboard(value)
	b.ledger.Record(ev, down)
	if err := robotgo.KeyToggle(name, direction(down)); err != nil {
		b.ledger.Forget(ev, down)
		return fmt.Errorf("key toggle %s: %w", value, err)
	}
	return nil
}

func (b *Listener) toggleButton(value string, down bool) error {
	name, ok := robotgoButton(value)
	if !ok {
		return fmt.Errorf("%s: %w", value, ErrUnknownValue)
	}
	ev := input.Mouse(value)
	b.ledger.Record(ev, down)
	if err := robotgo.Toggle(name, direction(down)); err != nil {
		b.ledger.Forget(ev, down)
		return fmt.Errorf("mouse toggle %s: %w", value, err)
	}
	return nil
}

func direction(down bool) string {
	if down {
		return "down"
	}
	return "up"
}
