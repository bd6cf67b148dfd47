package input

import "strings"

// Named keys produced in raw mode.
const (
	KeySpace     = "space"
	KeyEnter     = "enter"
	KeyEscape    = "escape"
	KeyBackspace = "backspace"
	KeyTab       = "tab"
	KeyUp        = "arrowup"
	KeyDown      = "arrowdown"
	KeyRight     = "arrowright"
	KeyLeft      = "arrowleft"
)

const ctrlC = 0x03

var arrowKeys = map[byte]string{
	'A': KeyUp,
	'B': KeyDown,
	'C': KeyRight,
	'D': KeyLeft,
}

// KeyName returns the token for a single ASCII input byte. Multibyte keys are
// decoded as runes by the keyboard and never reach KeyName.
func KeyName(b byte) string {
	switch b {
	case ' ':
		return KeySpace
	case '\r', '\n':
		return KeyEnter
	case 0x1b:
		return KeyEscape
	case 0x7f, 0x08:
		return KeyBackspace
	case '\t':
		return KeyTab
	}
	return string(rune(b))
}

// NormalizeToken maps config spellings of keys to the tokens the keyboard emits,
// so choices like " " or "Enter" match.
func NormalizeToken(token string) string {
	if token == " " {
		return KeySpace
	}
	switch lower := strings.ToLower(token); lower {
	case "space", "spacebar":
		return KeySpace
	case "enter", "return":
		return KeyEnter
	case "esc", "escape":
		return KeyEscape
	case "backspace", "tab", "arrowup", "arrowdown", "arrowleft", "arrowright":
		return lower
	}
	return token
}
