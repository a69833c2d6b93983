package input

import (
	"sort"
	"strings"
)

// Button identifies a mouse button.
type Button int

const (
	ButtonLeft Button = iota + 1
	ButtonRight
	ButtonMiddle
)

// String returns the canonical value for the button.
func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "mouse_left"
	case ButtonRight:
		return "mouse_right"
	case ButtonMiddle:
		return "mouse_middle"
	default:
		return "mouse_unknown"
	}
}

// keyTable maps keyboard values to Windows virtual-key codes. The codes double
// as the identity of a key on backends that speak in virtual keys.
var keyTable = map[string]uint16{
	"a": 0x41, "b": 0x42, "c": 0x43, "d": 0x44, "e": 0x45,
	"f": 0x46, "g": 0x47, "h": 0x48, "i": 0x49, "j": 0x4A,
	"k": 0x4B, "l": 0x4C, "m": 0x4D, "n": 0x4E, "o": 0x4F,
	"p": 0x50, "q": 0x51, "r": 0x52, "s": 0x53, "t": 0x54,
	"u": 0x55, "v": 0x56, "w": 0x57, "x": 0x58, "y": 0x59, "z": 0x5A,
	"0": 0x30, "1": 0x31, "2": 0x32, "3": 0x33, "4": 0x34,
	"5": 0x35, "6": 0x36, "7": 0x37, "8": 0x38, "9": 0x39,
	"f1": 0x70, "f2": 0x71, "f3": 0x72, "f4": 0x73,
	"f5": 0x74, "f6": 0x75, "f7": 0x76, "f8": 0x77,
	"f9": 0x78, "f10": 0x79, "f11": 0x7A, "f12": 0x7B,
	"escape": 0x1B, "tab": 0x09, "backspace": 0x08,
	"enter": 0x0D, "space": 0x20, "delete": 0x2E, "insert": 0x2D,
	"home": 0x24, "end": 0x23, "page_up": 0x21, "page_down": 0x22,
	"up": 0x26, "down": 0x28, "left": 0x25, "right": 0x27,
	"shift": 0x10, "ctrl": 0x11, "alt": 0x12, "meta": 0x5B,
	"caps_lock": 0x14, "num_lock": 0x90, "scroll_lock": 0x91,
	"print_screen": 0x2C, "pause": 0x13,
	"minus": 0xBD, "equal": 0xBB,
	"bracket_left": 0xDB, "bracket_right": 0xDD,
	"backslash": 0xDC, "semicolon": 0xBA, "apostrophe": 0xDE,
	"comma": 0xBC, "period": 0xBE, "slash": 0xBF, "grave": 0xC0,
	"num_0": 0x60, "num_1": 0x61, "num_2": 0x62, "num_3": 0x63,
	"num_4": 0x64, "num_5": 0x65, "num_6": 0x66, "num_7": 0x67,
	"num_8": 0x68, "num_9": 0x69,
	"num_multiply": 0x6A, "num_plus": 0x6B, "num_minus": 0x6D,
	"num_decimal": 0x6E, "num_divide": 0x6F, "num_enter": 0x0D,
}

// sidedVirtualKeys are the left/right variants reported by low-level hooks.
var sidedVirtualKeys = map[uint16]string{
	0xA0: "shift", 0xA1: "shift",
	0xA2: "ctrl", 0xA3: "ctrl",
	0xA4: "alt", 0xA5: "alt",
	0x5C: "meta",
}

var vkToValue = func() map[uint16]string {
	m := make(map[uint16]string, len(keyTable)+len(sidedVirtualKeys))
	for v, vk := range keyTable {
		// num_enter shares VK_RETURN; see ValueForHookKey.
		if v == "num_enter" {
			continue
		}
		m[vk] = v
	}
	for vk, v := range sidedVirtualKeys {
		m[vk] = v
	}
	return m
}()

var buttonTable = map[string]Button{
	"mouse_left":   ButtonLeft,
	"mouse_right":  ButtonRight,
	"mouse_middle": ButtonMiddle,
}

var buttonNames = map[string]string{
	"mouse_left":   "Mouse Left",
	"mouse_right":  "Mouse Right",
	"mouse_middle": "Mouse Middle",
}

var modifiers = map[string]bool{
	"shift": true,
	"ctrl":  true,
	"alt":   true,
	"meta":  true,
}

// keyAliases folds names used by listeners, robotgo and humans onto the
// canonical vocabulary.
var keyAliases = map[string]string{
	"esc":         "escape",
	"return":      "enter",
	"back":        "backspace",
	"del":         "delete",
	"ins":         "insert",
	"pageup":      "page_up",
	"pgup":        "page_up",
	"prior":       "page_up",
	"pagedown":    "page_down",
	"pgdn":        "page_down",
	"next":        "page_down",
	"lshift":      "shift",
	"rshift":      "shift",
	"shift_l":     "shift",
	"shift_r":     "shift",
	"control":     "ctrl",
	"lctrl":       "ctrl",
	"rctrl":       "ctrl",
	"control_l":   "ctrl",
	"control_r":   "ctrl",
	"ctrl_l":      "ctrl",
	"ctrl_r":      "ctrl",
	"lalt":        "alt",
	"ralt":        "alt",
	"alt_l":       "alt",
	"alt_r":       "alt",
	"option":      "alt",
	"menu":        "alt",
	"cmd":         "meta",
	"command":     "meta",
	"lcmd":        "meta",
	"rcmd":        "meta",
	"super":       "meta",
	"win":         "meta",
	"capslock":    "caps_lock",
	"numlock":     "num_lock",
	"scrolllock":  "scroll_lock",
	"printscreen": "print_screen",
	"print":       "print_screen",
	"-":           "minus",
	"=":           "equal",
	"[":           "bracket_left",
	"]":           "bracket_right",
	"\\":          "backslash",
	";":           "semicolon",
	"'":           "apostrophe",
	",":           "comma",
	".":           "period",
	"/":           "slash",
	"`":           "grave",
	" ":           "space",
	"num*":        "num_multiply",
	"num+":        "num_plus",
	"num-":        "num_minus",
	"num.":        "num_decimal",
	"num/":        "num_divide",
	"kp_enter":    "num_enter",
	"numpadenter": "num_enter",
}

// NormalizeKeyName maps a backend or user supplied key name onto the
// canonical keyboard vocabulary.
func NormalizeKeyName(name string) (string, bool) {
	if name == " " {
		return "space", true
	}
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := keyTable[n]; ok {
		return n, true
	}
	if canon, ok := keyAliases[n]; ok {
		return canon, true
	}
	// robotgo style numpad digits: "num0".."num9"
	if len(n) == 4 && strings.HasPrefix(n, "num") && n[3] >= '0' && n[3] <= '9' {
		return "num_" + n[3:], true
	}
	return "", false
}

// VirtualKey returns the Windows virtual-key code for a keyboard value.
func VirtualKey(value string) (uint16, bool) {
	vk, ok := keyTable[value]
	return vk, ok
}

// ValueForVirtualKey is the inverse of VirtualKey. Sided modifier codes fold
// onto their generic value.
func ValueForVirtualKey(vk uint16) (string, bool) {
	v, ok := vkToValue[vk]
	return v, ok
}

const vkReturn = 0x0D

// ValueForHookKey resolves a virtual key as reported by a low-level keyboard
// hook. Numpad Enter arrives as VK_RETURN with the extended-key flag set.
func ValueForHookKey(vk uint16, extended bool) (string, bool) {
	if vk == vkReturn && extended {
		return "num_enter", true
	}
	return ValueForVirtualKey(vk)
}

// IsExtendedKey reports whether value must be synthesized with the
// extended-key flag to be told apart from its main-block twin.
func IsExtendedKey(value string) bool {
	return value == "num_enter"
}

// MouseButton returns the button for a mouse value.
func MouseButton(value string) (Button, bool) {
	b, ok := buttonTable[value]
	return b, ok
}

// KeyValues lists the keyboard vocabulary in sorted order.
func KeyValues() []string {
	out := make([]string, 0, len(keyTable))
	for v := range keyTable {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MouseValues lists the mouse vocabulary in sorted order.
func MouseValues() []string {
	out := make([]string, 0, len(buttonTable))
	for v := range buttonTable {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
