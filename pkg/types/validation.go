package types

import (
	"regexp"
)

var modeRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validate checks that a mode is a well-formed identifier. Unknown but
// well-formed modes are valid: the client skips them at flush time.
func (m Mode) Validate() error {
	if m == "" {
		return ErrEmptyMode
	}
	if len(m) > 32 || !modeRegex.MatchString(string(m)) {
		return ErrInvalidMode
	}
	return nil
}

// IsBuiltinMode reports whether the client ships a strategy for the mode.
func IsBuiltinMode(m Mode) bool {
	switch m {
	case ModePage, ModeCSS, ModeStart:
		return true
	default:
		return false
	}
}
