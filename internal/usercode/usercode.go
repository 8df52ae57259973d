// Package usercode normalizes and formats RFC 8628 user codes for display.
// The upstream identity provider issues the codes; this package only makes
// sure the client shows and compares them consistently.
package usercode

import "strings"

// minDisplayLength is the shortest code worth reformatting; anything
// shorter is shown as-is.
const minDisplayLength = 8

// Normalize converts a user code to canonical comparison form: uppercase,
// no separator, no surrounding whitespace.
func Normalize(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// Format converts a normalized code to display form (XXXX-XXXX). Codes that
// already contain a separator or are too short are returned unchanged.
func Format(code string) string {
	code = strings.TrimSpace(code)
	if strings.Contains(code, "-") || len(code) < minDisplayLength {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}
