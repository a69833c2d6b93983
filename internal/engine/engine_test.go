package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyremap/internal/backend"
	"keyremap/internal/input"
	"keyremap/internal/mapping"
	"keyremap/internal/metrics"
)

var fastTiming = Timing{
	ModifierSettle: 2 * time.Millisecond,
	ActionSettle:   2 * time.Millisecond,
	TurboInterval:  5 * time.Millisecond,
	DefaultDelay:   2 * time.Millisecond,
}

func newTestEngine(t *testing.T, b backend.Backend, timing Timing) (*Engine, *metrics.Remap) {
	t.Helper()
	m := metrics.NewRemap(metrics.NewRegistry("test"))
	e := New(b, WithTiming(timing), WithMetrics(m))
	t.Cleanup(func() {
		e.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Wait(ctx)
	})
	return e, m
}

func wait(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func actionStrings(actions []backend.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.String()
	}
	return out
}

func keyMapping(source string, target ...string) mapping.Mapping {
	evs := make([]input.Event, len(target))
	for i, v := range target {
		evs[i] = input.Keyboard(v)
	}
	return mapping.New(input.Keyboard(source), evs...)
}

func TestStartSubscribesOnlyNeededTypes(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, fastTiming)

	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "a")}))
	assert.True(t, e.IsRunning())
	assert.True(t, b.Subscribed(input.TypeKeyboard))
	assert.False(t, b.Subscribed(input.TypeMouse))

	// A mouse stop key is enough to need the mouse hook.
	m := keyMapping("f2", "b")
	m.Loop = true
	stop := input.Mouse("mouse_right")
	m.StopKey = &stop
	require.NoError(t, e.Start([]mapping.Mapping{m}))
	assert.True(t, b.Subscribed(input.TypeKeyboard))
	assert.True(t, b.Subscribed(input.TypeMouse))

	e.Stop()
	assert.False(t, e.IsRunning())
	assert.False(t, b.Subscribed(input.TypeKeyboard))
	assert.False(t, b.Subscribed(input.TypeMouse))
}

func TestDisabledMappingIsInert(t *testing.T) {
	b := backend.NewSimulated()
	e, m := newTestEngine(t, b, fastTiming)

	disabled := keyMapping("f1", "a")
	disabled.Enabled = false
	require.NoError(t, e.Start([]mapping.Mapping{disabled}))
	assert.True(t, e.IsRunning())

	down, up := b.Press(input.Keyboard("f1"))
	assert.Equal(t, backend.Pass, down)
	assert.Equal(t, backend.Pass, up)

	wait(t, e)
	assert.Empty(t, b.Actions())
	assert.Zero(t, m.Triggers.Value())
}

func TestF1CtrlCScenario(t *testing.T) {
	b := backend.NewSimulated()
	e, m := newTestEngine(t, b, DefaultTiming())

	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "ctrl", "c")}))

	down, up := b.Press(input.Keyboard("f1"))
	assert.Equal(t, backend.Suppress, down)
	assert.Equal(t, backend.Suppress, up)

	wait(t, e)
	actions := b.Actions()
	require.Equal(t, []string{
		"keyboard:ctrl down",
		"keyboard:c down",
		"keyboard:c up",
		"keyboard:ctrl up",
	}, actionStrings(actions))

	assert.GreaterOrEqual(t, actions[1].At.Sub(actions[0].At), 20*time.Millisecond)
	assert.GreaterOrEqual(t, actions[2].At.Sub(actions[1].At), 30*time.Millisecond)
	assert.GreaterOrEqual(t, actions[3].At.Sub(actions[2].At), 20*time.Millisecond)

	assert.Equal(t, uint64(1), m.Triggers.Value())
	assert.Equal(t, uint64(4), m.InjectedEvents.Value())
	assert.Equal(t, uint64(1), m.SequenceDuration.Count())
}

func TestSelfInjectedEventsNotRematched(t *testing.T) {
	b := backend.NewSimulated()
	e, m := newTestEngine(t, b, fastTiming)

	require.NoError(t, e.Start([]mapping.Mapping{
		keyMapping("f1", "c"),
		keyMapping("c", "x"),
	}))

	b.Press(input.Keyboard("f1"))
	wait(t, e)

	assert.Equal(t, []string{"keyboard:c down", "keyboard:c up"}, actionStrings(b.Actions()))
	assert.Equal(t, uint64(1), m.Triggers.Value())
	assert.Equal(t, uint64(2), m.SelfInjectedIgnored.Value())

	// A physical c still triggers the second mapping.
	b.Reset()
	down, _ := b.Press(input.Keyboard("c"))
	assert.Equal(t, backend.Suppress, down)
	wait(t, e)
	assert.Equal(t, []string{"keyboard:x down", "keyboard:x up"}, actionStrings(b.Actions()))
}

func permutations(evs []input.Event) [][]input.Event {
	if len(evs) <= 1 {
		return [][]input.Event{append([]input.Event(nil), evs...)}
	}
	var out [][]input.Event
	for i := range evs {
		rest := make([]input.Event, 0, len(evs)-1)
		rest = append(rest, evs[:i]...)
		rest = append(rest, evs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]input.Event{evs[i]}, p...))
		}
	}
	return out
}

func TestModifierEnvelope(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, Timing{})

	base := []input.Event{
		input.Keyboard("a"),
		input.Keyboard("shift"),
		input.Mouse("mouse_left"),
		input.Keyboard("ctrl"),
	}

	for _, target := range permutations(base) {
		m := mapping.New(input.Keyboard("f9"), target...)
		require.NoError(t, e.Start([]mapping.Mapping{m}))
		b.Reset()

		b.Press(input.Keyboard("f9"))
		wait(t, e)

		actions := b.Actions()
		require.Len(t, actions, 8, "target %v", target)

		wantMods, _ := input.Partition(target)
		lastModDown, firstActionDown := -1, len(actions)
		lastActionUp, firstModUp := -1, len(actions)
		var modUps []input.Event
		for i, a := range actions {
			switch {
			case a.Event.IsModifier() && a.Down:
				lastModDown = i
			case a.Event.IsModifier():
				firstModUp = min(firstModUp, i)
				modUps = append(modUps, a.Event)
			case a.Down:
				firstActionDown = min(firstActionDown, i)
			default:
				lastActionUp = i
			}
		}
		assert.Less(t, lastModDown, firstActionDown, "target %v", target)
		assert.Less(t, lastActionUp, firstModUp, "target %v", target)
		assert.Equal(t, []input.Event{wantMods[1], wantMods[0]}, modUps, "target %v", target)
	}
}

func TestLoopIdempotentStart(t *testing.T) {
	b := backend.NewSimulated()
	e, m := newTestEngine(t, b, fastTiming)

	lm := keyMapping("f2", "a")
	lm.Loop = true
	lm.DelayMs = 5
	require.NoError(t, e.Start([]mapping.Mapping{lm}))

	b.Press(input.Keyboard("f2"))
	b.Press(input.Keyboard("f2"))

	assert.Equal(t, []string{lm.ID}, e.ActiveLoops())
	assert.Equal(t, uint64(1), m.LoopsStarted.Value())
	assert.Equal(t, uint64(1), m.DuplicateLoopTrigger.Value())
	assert.Equal(t, uint64(2), m.Triggers.Value())

	e.Stop()
	wait(t, e)
	assert.Nil(t, e.ActiveLoops())
	assert.Equal(t, uint64(1), m.LoopsStopped.Value())
	assert.Zero(t, m.ActiveLoops.Value())
}

func TestMouseTurboLoopWithStopKey(t *testing.T) {
	b := backend.NewSimulated()
	e, m := newTestEngine(t, b, fastTiming)

	stop := input.Keyboard("escape")
	lm := mapping.New(input.Mouse("mouse_left"), input.Keyboard("a"))
	lm.Loop = true
	lm.Turbo = true
	lm.StopKey = &stop
	require.NoError(t, e.Start([]mapping.Mapping{lm}))
	assert.True(t, b.Subscribed(input.TypeMouse))
	assert.True(t, b.Subscribed(input.TypeKeyboard))

	down, up := b.Press(input.Mouse("mouse_left"))
	assert.Equal(t, backend.Suppress, down)
	assert.Equal(t, backend.Suppress, up)

	require.Eventually(t, func() bool {
		return len(b.Actions()) >= 6
	}, time.Second, time.Millisecond)

	// A second press while looping is a no-op.
	b.Press(input.Mouse("mouse_left"))
	assert.Len(t, e.ActiveLoops(), 1)
	assert.Equal(t, uint64(1), m.LoopsStarted.Value())

	down, up = b.Press(stop)
	assert.Equal(t, backend.Suppress, down)
	assert.Equal(t, backend.Suppress, up)

	wait(t, e)
	assert.Empty(t, e.ActiveLoops())
	assert.True(t, e.IsRunning())

	n := len(b.Actions())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, b.Actions(), n)

	// Every pass completed: presses and releases pair up.
	assert.Zero(t, n%2)

	// Without a running loop the stop key is an ordinary key.
	down, _ = b.Press(stop)
	assert.Equal(t, backend.Pass, down)
}

func TestStopKeySharedByLoops(t *testing.T) {
	b := backend.NewSimulated(backend.WithoutEcho())
	e, _ := newTestEngine(t, b, fastTiming)

	stop := input.Keyboard("q")
	one := keyMapping("f3", "a")
	two := keyMapping("f4", "b")
	for _, lm := range []*mapping.Mapping{&one, &two} {
		lm.Loop = true
		lm.StopKey = &stop
	}
	require.NoError(t, e.Start([]mapping.Mapping{one, two}))

	b.Press(input.Keyboard("f3"))
	b.Press(input.Keyboard("f4"))
	assert.Len(t, e.ActiveLoops(), 2)

	b.Press(stop)
	wait(t, e)
	assert.Empty(t, e.ActiveLoops())
}

func TestConflictingSources(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, fastTiming)

	first := keyMapping("f1", "a")
	second := keyMapping("f1", "b")

	err := e.Start([]mapping.Mapping{first, second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.First)
	assert.Equal(t, second.ID, conflict.Second)
	assert.Equal(t, input.Keyboard("f1"), conflict.Source)
	assert.False(t, e.IsRunning())
	assert.False(t, b.Subscribed(input.TypeKeyboard))

	// A disabled duplicate is not a conflict.
	second.Enabled = false
	require.NoError(t, e.Start([]mapping.Mapping{first, second}))
}

func TestInvalidMappingRejected(t *testing.T) {
	e, _ := newTestEngine(t, backend.NewSimulated(), fastTiming)

	bad := keyMapping("f1", "a")
	bad.Target = append(bad.Target, input.Keyboard("bogus"))

	err := e.Start([]mapping.Mapping{bad})
	var verrs mapping.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.False(t, e.IsRunning())
	assert.ErrorAs(t, Check([]mapping.Mapping{bad}), &verrs)
	assert.NoError(t, Check([]mapping.Mapping{keyMapping("f1", "a")}))
}

func TestListenerInstallFailure(t *testing.T) {
	boom := errors.New("access denied")
	b := backend.NewSimulated(backend.WithSubscribeError(input.TypeMouse, boom))
	e, _ := newTestEngine(t, b, fastTiming)

	err := e.Start([]mapping.Mapping{
		keyMapping("f1", "a"),
		mapping.New(input.Mouse("mouse_middle"), input.Keyboard("b")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListenerInstall)
	assert.ErrorIs(t, err, boom)
	assert.False(t, e.IsRunning())
	assert.False(t, b.Subscribed(input.TypeKeyboard))
}

func TestRestartRebuildsTables(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, fastTiming)

	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "a")}))
	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f2", "b")}))
	assert.True(t, e.IsRunning())

	down, _ := b.Press(input.Keyboard("f1"))
	assert.Equal(t, backend.Pass, down)
	down, _ = b.Press(input.Keyboard("f2"))
	assert.Equal(t, backend.Suppress, down)

	wait(t, e)
	assert.Equal(t, []string{"keyboard:b down", "keyboard:b up"}, actionStrings(b.Actions()))
}

func TestStopCancelsLoopsAndIsIdempotent(t *testing.T) {
	b := backend.NewSimulated()
	e, m := newTestEngine(t, b, fastTiming)

	lm := keyMapping("f5", "a")
	lm.Loop = true
	require.NoError(t, e.Start([]mapping.Mapping{lm}))
	b.Press(input.Keyboard("f5"))

	e.Stop()
	e.Stop()
	wait(t, e)

	assert.False(t, e.IsRunning())
	assert.Equal(t, uint64(1), m.LoopsStopped.Value())
	assert.Equal(t, int64(0), m.EngineRunning.Value())

	n := len(b.Actions())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, b.Actions(), n)
}

func TestUnmatchedReleasePasses(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, fastTiming)
	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "a")}))

	// Release without a recorded press: the press happened before Start.
	v := b.Deliver(backend.RawEvent{Type: input.TypeKeyboard, Value: "f1", Down: false})
	assert.Equal(t, backend.Pass, v)

	down, up := b.Press(input.Keyboard("z"))
	assert.Equal(t, backend.Pass, down)
	assert.Equal(t, backend.Pass, up)
}

func TestGlobalSuppressionMirrorsKeys(t *testing.T) {
	b := backend.NewSimulated(backend.WithSuppression(backend.SuppressGlobal))
	e, _ := newTestEngine(t, b, fastTiming)

	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "x")}))

	down, up := b.Press(input.Keyboard("a"))
	assert.Equal(t, backend.Suppress, down)
	assert.Equal(t, backend.Suppress, up)
	assert.Equal(t, []string{"keyboard:a down", "keyboard:a up"}, actionStrings(b.Actions()))

	b.Reset()
	b.Press(input.Keyboard("f1"))
	wait(t, e)

	// The source's release is swallowed, not mirrored.
	assert.Equal(t, []string{"keyboard:x down", "keyboard:x up"}, actionStrings(b.Actions()))
}

func TestInjectionFailureContinues(t *testing.T) {
	b := backend.NewSimulated()
	b.FailInjection(input.Keyboard("c"), errors.New("blocked"))
	e, m := newTestEngine(t, b, fastTiming)

	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "ctrl", "c", "v")}))
	b.Press(input.Keyboard("f1"))
	wait(t, e)

	assert.Equal(t, []string{
		"keyboard:ctrl down",
		"keyboard:v down",
		"keyboard:v up",
		"keyboard:ctrl up",
	}, actionStrings(b.Actions()))
	assert.Equal(t, uint64(1), m.InjectionErrors.Value())
}

func TestWaitHonorsContext(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, fastTiming)

	lm := keyMapping("f6", "a")
	lm.Loop = true
	require.NoError(t, e.Start([]mapping.Mapping{lm}))
	b.Press(input.Keyboard("f6"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Wait(ctx), context.DeadlineExceeded)

	e.Stop()
	wait(t, e)
}

func TestTiming(t *testing.T) {
	tm := DefaultTiming()

	m := keyMapping("f1", "a")
	assert.Equal(t, 50*time.Millisecond, tm.ActionDelay(m))
	assert.Equal(t, 10*time.Millisecond, tm.LoopDelay(m))

	m.DelayMs = 120
	assert.Equal(t, 120*time.Millisecond, tm.ActionDelay(m))
	assert.Equal(t, 120*time.Millisecond, tm.LoopDelay(m))

	m.DelayMs = 3
	assert.Equal(t, 10*time.Millisecond, tm.LoopDelay(m))

	m.Turbo = true
	m.DelayMs = 500
	assert.Equal(t, 10*time.Millisecond, tm.ActionDelay(m))
	assert.Equal(t, 10*time.Millisecond, tm.LoopDelay(m))
}

type panickingBackend struct {
	*backend.Simulated
}

func (p panickingBackend) KeyDown(value string) error {
	if value == "c" {
		panic("injector exploded")
	}
	return p.Simulated.KeyDown(value)
}

func TestSequencePanicIsContained(t *testing.T) {
	b := panickingBackend{backend.NewSimulated()}
	panics := make(chan any, 1)
	e := New(b, WithTiming(fastTiming), WithPanicHandler(func(v any, stack []byte) {
		assert.NotEmpty(t, stack)
		panics <- v
	}))
	t.Cleanup(e.Stop)

	require.NoError(t, e.Start([]mapping.Mapping{
		keyMapping("f1", "c"),
		keyMapping("f2", "a"),
	}))

	b.Press(input.Keyboard("f1"))
	select {
	case v := <-panics:
		assert.Equal(t, "injector exploded", v)
	case <-time.After(2 * time.Second):
		t.Fatal("panic handler was not called")
	}
	wait(t, e)

	// The engine keeps serving other mappings.
	assert.True(t, e.IsRunning())
	b.Reset()
	b.Press(input.Keyboard("f2"))
	wait(t, e)
	assert.Equal(t, []string{"keyboard:a down", "keyboard:a up"}, actionStrings(b.Actions()))
}

func TestSequencePanicReleasesModifiers(t *testing.T) {
	b := panickingBackend{backend.NewSimulated()}
	panics := make(chan any, 1)
	e := New(b, WithTiming(fastTiming), WithPanicHandler(func(v any, stack []byte) {
		panics <- v
	}))
	t.Cleanup(e.Stop)

	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "shift", "ctrl", "c")}))

	b.Press(input.Keyboard("f1"))
	select {
	case <-panics:
	case <-time.After(2 * time.Second):
		t.Fatal("panic handler was not called")
	}
	wait(t, e)

	assert.Equal(t, []string{
		"keyboard:shift down",
		"keyboard:ctrl down",
		"keyboard:ctrl up",
		"keyboard:shift up",
	}, actionStrings(b.Actions()))
}

func TestLedgerTaggedBackendWithoutSuppression(t *testing.T) {
	b := backend.NewSimulated(backend.WithSuppression(backend.SuppressNone), backend.WithLedger())
	e, m := newTestEngine(t, b, fastTiming)

	// The target repeats the source; only the physical press may trigger.
	require.NoError(t, e.Start([]mapping.Mapping{
		keyMapping("a", "a"),
		keyMapping("f1", "ctrl", "c"),
	}))

	b.Press(input.Keyboard("f1"))
	wait(t, e)
	b.Press(input.Keyboard("a"))
	wait(t, e)

	assert.Equal(t, []string{
		"keyboard:ctrl down",
		"keyboard:c down",
		"keyboard:c up",
		"keyboard:ctrl up",
		"keyboard:a down",
		"keyboard:a up",
	}, actionStrings(b.Actions()))
	assert.Equal(t, uint64(2), m.Triggers.Value())
	assert.Equal(t, uint64(6), m.SelfInjectedIgnored.Value())
	assert.Zero(t, b.PendingInjections())
}

func TestBackendWithoutKeyUp(t *testing.T) {
	b := backend.NewSimulated(backend.WithoutKeyUp())
	e, _ := newTestEngine(t, b, fastTiming)
	require.NoError(t, e.Start([]mapping.Mapping{keyMapping("f1", "a")}))

	down := b.Deliver(backend.RawEvent{Type: input.TypeKeyboard, Value: "f1", Down: true})
	assert.Equal(t, backend.Suppress, down)
	wait(t, e)

	// Substituted presses are not tracked, so a stray release passes.
	up := b.Deliver(backend.RawEvent{Type: input.TypeKeyboard, Value: "f1"})
	assert.Equal(t, backend.Pass, up)
}

func TestNumpadEnterIsDistinctFromEnter(t *testing.T) {
	b := backend.NewSimulated()
	e, _ := newTestEngine(t, b, fastTiming)

	ms := []mapping.Mapping{keyMapping("num_enter", "a"), keyMapping("enter", "b")}
	require.NoError(t, Check(ms))
	require.NoError(t, e.Start(ms))

	b.Press(input.Keyboard("num_enter"))
	wait(t, e)
	assert.Equal(t, []string{"keyboard:a down", "keyboard:a up"}, actionStrings(b.Actions()))
}
