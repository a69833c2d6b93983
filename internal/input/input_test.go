package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValid(t *testing.T) {
	tests := []struct {
		ev   Event
		want bool
	}{
		{Keyboard("a"), true},
		{Keyboard("f12"), true},
		{Keyboard("num_enter"), true},
		{Keyboard("mouse_left"), false},
		{Mouse("mouse_left"), true},
		{Mouse("a"), false},
		{Event{Type: "joystick", Value: "a"}, false},
		{Keyboard(""), false},
	}

	for _, tc := range tests {
		t.Run(tc.ev.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ev.Valid())
		})
	}
}

func TestEventEqualityByValue(t *testing.T) {
	a := Keyboard("f1")
	b := Event{Type: TypeKeyboard, Value: "f1"}
	assert.Equal(t, a, b)

	set := map[Event]int{a: 1}
	assert.Equal(t, 1, set[b])
}

func TestIsModifier(t *testing.T) {
	for _, v := range []string{"shift", "ctrl", "alt", "meta"} {
		assert.True(t, Keyboard(v).IsModifier(), v)
	}
	assert.False(t, Keyboard("a").IsModifier())
	assert.False(t, Mouse("shift").IsModifier())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Mouse Left", Mouse("mouse_left").DisplayName())
	assert.Equal(t, "Page Up", Keyboard("page_up").DisplayName())
	assert.Equal(t, "F5", Keyboard("f5").DisplayName())
	assert.Equal(t, "Num 7", Keyboard("num_7").DisplayName())
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		in      string
		want    Event
		wantErr bool
	}{
		{in: "a", want: Keyboard("a")},
		{in: "keyboard:F5", want: Keyboard("f5")},
		{in: "esc", want: Keyboard("escape")},
		{in: "mouse_right", want: Mouse("mouse_right")},
		{in: "mouse:mouse_middle", want: Mouse("mouse_middle")},
		{in: "pagedown", want: Keyboard("page_down")},
		{in: "", wantErr: true},
		{in: "keyboard:nope", wantErr: true},
		{in: "pad:a", wantErr: true},
		{in: "mouse_side", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseEvent(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSequence(t *testing.T) {
	seq, err := ParseSequence("ctrl+c")
	require.NoError(t, err)
	assert.Equal(t, []Event{Keyboard("ctrl"), Keyboard("c")}, seq)

	seq, err = ParseSequence("shift, up,down ,mouse_left")
	require.NoError(t, err)
	assert.Equal(t, []Event{Keyboard("shift"), Keyboard("up"), Keyboard("down"), Mouse("mouse_left")}, seq)

	_, err = ParseSequence("+")
	assert.Error(t, err)

	_, err = ParseSequence("ctrl+bogus")
	assert.Error(t, err)
}

func TestPartition(t *testing.T) {
	seq := []Event{Keyboard("a"), Keyboard("shift"), Mouse("mouse_left"), Keyboard("ctrl"), Keyboard("b")}
	mods, actions := Partition(seq)
	assert.Equal(t, []Event{Keyboard("shift"), Keyboard("ctrl")}, mods)
	assert.Equal(t, []Event{Keyboard("a"), Mouse("mouse_left"), Keyboard("b")}, actions)
}

func TestVirtualKeyRoundTrip(t *testing.T) {
	for _, v := range KeyValues() {
		vk, ok := VirtualKey(v)
		require.True(t, ok, v)
		back, ok := ValueForVirtualKey(vk)
		require.True(t, ok, v)
		if v == "num_enter" {
			assert.Equal(t, "enter", back)
			continue
		}
		assert.Equal(t, v, back)
	}
}

func TestValueForHookKey(t *testing.T) {
	vk, ok := VirtualKey("num_enter")
	require.True(t, ok)

	v, ok := ValueForHookKey(vk, true)
	require.True(t, ok)
	assert.Equal(t, "num_enter", v)

	v, ok = ValueForHookKey(vk, false)
	require.True(t, ok)
	assert.Equal(t, "enter", v)

	// The flag only matters for VK_RETURN.
	v, ok = ValueForHookKey(0x26, true)
	require.True(t, ok)
	assert.Equal(t, "up", v)

	assert.True(t, IsExtendedKey("num_enter"))
	assert.False(t, IsExtendedKey("enter"))

	v, ok = NormalizeKeyName("KP_Enter")
	require.True(t, ok)
	assert.Equal(t, "num_enter", v)
}

func TestValueForSidedVirtualKey(t *testing.T) {
	v, ok := ValueForVirtualKey(0xA1)
	require.True(t, ok)
	assert.Equal(t, "shift", v)

	v, ok = ValueForVirtualKey(0x5C)
	require.True(t, ok)
	assert.Equal(t, "meta", v)

	_, ok = ValueForVirtualKey(0xFF)
	assert.False(t, ok)
}

func TestNormalizeKeyName(t *testing.T) {
	tests := map[string]string{
		"Esc":     "escape",
		"Return":  "enter",
		"lshift":  "shift",
		"cmd":     "meta",
		"num5":    "num_5",
		" ":       "space",
		"a":       "a",
		"PageUp":  "page_up",
		"Control": "ctrl",
	}
	for in, want := range tests {
		got, ok := NormalizeKeyName(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := NormalizeKeyName("hyper")
	assert.False(t, ok)
}

func TestMouseButton(t *testing.T) {
	b, ok := MouseButton("mouse_middle")
	require.True(t, ok)
	assert.Equal(t, ButtonMiddle, b)
	assert.Equal(t, "mouse_middle", b.String())

	_, ok = MouseButton("mouse_x1")
	assert.False(t, ok)
	assert.Equal(t, []string{"mouse_left", "mouse_middle", "mouse_right"}, MouseValues())
}
