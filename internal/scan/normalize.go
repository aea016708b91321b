// Package scan turns raw scanner input into canonical codes and decides
// whether an input should be processed at all.
package scan

import (
	"regexp"
	"strings"
)

var (
	// SN label with an optional ':', '=' or '-' separator, then the payload.
	labelPrefix  = regexp.MustCompile(`^SN\s*[:=\-]?\s*(.*)$`)
	nonCanonical = regexp.MustCompile(`[^A-Z0-9]`)
)

// Normalize returns the canonical form of a raw scan: trimmed, upper-case,
// SN label stripped, alphanumeric only. It never fails; the result may be
// empty.
//
// The pass is repeated until the value stops changing so that
// Normalize(Normalize(x)) == Normalize(x) also holds for inputs such as
// "SNSN1234" or "-SN1234" where stripping exposes another label.
func Normalize(raw string) string {
	s := normalizeOnce(raw)
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if m := labelPrefix.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return nonCanonical.ReplaceAllString(s, "")
}
