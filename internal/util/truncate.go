// Package util holds small helpers shared by the upstream clients.
package util

import (
	"strconv"
	"unicode/utf8"
)

// DefaultLogMaxLen bounds upstream bodies quoted in errors and log rows.
const DefaultLogMaxLen = 1024

// TruncateLog cuts s to at most maxLen bytes and notes the original size.
// The cut never splits a UTF-8 sequence, so the result stays storable in
// Postgres text columns.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... [truncated, " + strconv.Itoa(len(s)) + " bytes total]"
}

// TruncateBytes applies TruncateLog with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
