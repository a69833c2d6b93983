package backend

import "keyremap/internal/input"

// robotgoKeys maps vocabulary values whose robotgo name differs from the
// value itself. Letters, digits, function keys and arrows pass through.
var robotgoKeys = map[string]string{
	"page_up":       "pageup",
	"page_down":     "pagedown",
	"meta":          "cmd",
	"caps_lock":     "capslock",
	"print_screen":  "printscreen",
	"minus":         "-",
	"equal":         "=",
	"bracket_left":  "[",
	"bracket_right": "]",
	"backslash":     "\\",
	"semicolon":     ";",
	"apostrophe":    "'",
	"comma":         ",",
	"period":        ".",
	"slash":         "/",
	"grave":         "`",
	"num_0":         "num0",
	"num_1":         "num1",
	"num_2":         "num2",
	"num_3":         "num3",
	"num_4":         "num4",
	"num_5":         "num5",
	"num_6":         "num6",
	"num_7":         "num7",
	"num_8":         "num8",
	"num_9":         "num9",
	"num_multiply":  "num*",
	"num_plus":      "num+",
	"num_minus":     "num-",
	"num_decimal":   "num.",
	"num_divide":    "num/",
}

// robotgo has no synthesis for these.
var robotgoMissing = map[string]bool{
	"scroll_lock": true,
	"pause":       true,
}

var robotgoButtons = map[input.Button]string{
	input.ButtonLeft:   "left",
	input.ButtonRight:  "right",
	input.ButtonMiddle: "center",
}

// robotgoKey returns the robotgo key name for a keyboard value.
func robotgoKey(value string) (string, bool) {
	if _, ok := input.VirtualKey(value); !ok || robotgoMissing[value] {
		return "", false
	}
	if name, ok := robotgoKeys[value]; ok {
		return name, true
	}
	return value, true
}

// robotgoButton returns the robotgo button name for a mouse value.
func robotgoButton(value string) (string, bool) {
	b, ok := input.MouseButton(value)
	if !ok {
		return "", false
	}
	return robotgoButtons[b], true
}

// listenerButton maps a libuiohook button number to a mouse value.
func listenerButton(n uint16) (string, bool) {
	switch n {
	case 1:
		return input.ButtonLeft.String(), true
	case 2:
		return input.ButtonRight.String(), true
	case 3:
		return input.ButtonMiddle.String(), true
	default:
		return "", false
	}
}

// listenerKey maps a listener key name, falling back to the typed
// character, onto the vocabulary.
func listenerKey(name string, char rune) (string, bool) {
	if v, ok := input.NormalizeKeyName(name); ok {
		return v, true
	}
	if char > 0 && char < 0x7f {
		return input.NormalizeKeyName(string(char))
	}
	return "", false
}
