package desktop

import "strings"

// Key resolution order: hardware-location code first, then the name table
// for named keys, then a single-character key as a literal character.
// The canonical output names are browser KeyboardEvent.key values; platform
// injectors translate those to their own keysym space.

// codeTable maps hardware-location codes that don't follow the KeyA/Digit0/F1
// patterns to canonical key names.
var codeTable = map[string]string{
	"Enter":          "Enter",
	"NumpadEnter":    "Enter",
	"Tab":            "Tab",
	"Space":          " ",
	"Escape":         "Escape",
	"Backspace":      "Backspace",
	"Delete":         "Delete",
	"Insert":         "Insert",
	"Home":           "Home",
	"End":            "End",
	"PageUp":         "PageUp",
	"PageDown":       "PageDown",
	"CapsLock":       "CapsLock",
	"NumLock":        "NumLock",
	"ScrollLock":     "ScrollLock",
	"Pause":          "Pause",
	"PrintScreen":    "PrintScreen",
	"ContextMenu":    "ContextMenu",
	"ArrowUp":        "ArrowUp",
	"ArrowDown":      "ArrowDown",
	"ArrowLeft":      "ArrowLeft",
	"ArrowRight":     "ArrowRight",
	"ControlLeft":    "Control",
	"ControlRight":   "Control",
	"AltLeft":        "Alt",
	"AltRight":       "Alt",
	"ShiftLeft":      "Shift",
	"ShiftRight":     "Shift",
	"MetaLeft":       "Meta",
	"MetaRight":      "Meta",
	"OSLeft":         "Meta",
	"OSRight":        "Meta",
	"NumpadAdd":      "+",
	"NumpadSubtract": "-",
	"NumpadMultiply": "*",
	"NumpadDivide":   "/",
	"NumpadDecimal":  ".",
	"Minus":          "-",
	"Equal":          "=",
	"BracketLeft":    "[",
	"BracketRight":   "]",
	"Backslash":      "\\",
	"Semicolon":      ";",
	"Quote":          "'",
	"Backquote":      "`",
	"Comma":          ",",
	"Period":         ".",
	"Slash":          "/",
}

// nameTable holds named keys accepted via the key field, including numpad
// words sent by some clients.
var nameTable = map[string]string{
	"Enter":       "Enter",
	"Tab":         "Tab",
	"Escape":      "Escape",
	"Backspace":   "Backspace",
	"Delete":      "Delete",
	"Insert":      "Insert",
	"Home":        "Home",
	"End":         "End",
	"PageUp":      "PageUp",
	"PageDown":    "PageDown",
	"CapsLock":    "CapsLock",
	"NumLock":     "NumLock",
	"ScrollLock":  "ScrollLock",
	"Pause":       "Pause",
	"PrintScreen": "PrintScreen",
	"ContextMenu": "ContextMenu",
	"Control":     "Control",
	"Alt":         "Alt",
	"Shift":       "Shift",
	"Meta":        "Meta",
	"ArrowUp":     "ArrowUp",
	"ArrowDown":   "ArrowDown",
	"ArrowLeft":   "ArrowLeft",
	"ArrowRight":  "ArrowRight",
	"Add":         "+",
	"Subtract":    "-",
	"Multiply":    "*",
	"Divide":      "/",
	"Decimal":     ".",
	"Separator":   ",",
	"Spacebar":    " ",
}

// resolveKey maps a (code, key) pair from the wire to a canonical key name.
func resolveKey(code, key string) (string, bool) {
	if code != "" {
		if k, ok := resolveCode(code); ok {
			return k, true
		}
	}
	if k, ok := nameTable[key]; ok {
		return k, true
	}
	if f, ok := functionKey(key); ok {
		return f, true
	}
	if len([]rune(key)) == 1 {
		return key, true
	}
	return "", false
}

func resolveCode(code string) (string, bool) {
	if k, ok := codeTable[code]; ok {
		return k, true
	}
	// KeyA..KeyZ
	if len(code) == 4 && strings.HasPrefix(code, "Key") && code[3] >= 'A' && code[3] <= 'Z' {
		return strings.ToLower(code[3:]), true
	}
	// Digit0..Digit9, Numpad0..Numpad9
	if len(code) == 6 && strings.HasPrefix(code, "Digit") && code[5] >= '0' && code[5] <= '9' {
		return code[5:], true
	}
	if len(code) == 7 && strings.HasPrefix(code, "Numpad") && code[6] >= '0' && code[6] <= '9' {
		return code[6:], true
	}
	return functionKey(code)
}

// functionKey matches F1..F12.
func functionKey(s string) (string, bool) {
	if len(s) < 2 || len(s) > 3 || s[0] != 'F' {
		return "", false
	}
	n := 0
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return "", false
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > 12 {
		return "", false
	}
	return s, true
}

// canonicalModifier normalizes modifier names from the wire.
func canonicalModifier(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "ctrl", "control":
		return "Control", true
	case "alt":
		return "Alt", true
	case "shift":
		return "Shift", true
	case "meta", "super", "win", "cmd":
		return "Meta", true
	default:
		return "", false
	}
}
