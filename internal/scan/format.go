package scan

import "regexp"

// Canonical code length bounds. Fixed policy, not configurable.
const (
	MinCodeLength = 8
	MaxCodeLength = 20
)

var codeFormat = regexp.MustCompile(`^[A-Z0-9]{8,20}$`)

// ValidFormat reports whether a canonical code has an acceptable shape.
func ValidFormat(code string) bool {
	return codeFormat.MatchString(code)
}
