// Package phone normalizes contact phone numbers to the digit-only form used
// as the canonical key across the allow-list cache, the job store and the
// outbound transport.
package phone

import "strings"

// Normalize strips every non-digit character. It returns "" when nothing is
// left, which callers must treat as an invalid number.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
