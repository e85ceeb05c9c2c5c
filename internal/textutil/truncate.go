// Package textutil holds small string helpers shared by the HTTP logging
// transport and the remote invoker.
package textutil

import "unicode/utf8"

// TruncateRunes shortens s to at most limit runes, appending suffix when cut.
// A negative limit disables truncation.
func TruncateRunes(s string, limit int, suffix string) string {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + suffix
		}
		n++
	}
	return s
}
