package schema

import (
	"strconv"
	"strings"
)

// Identifier sanitization. Cache table and column names are synthesized
// from upstream identifiers and interpolated into DDL, so they are
// restricted to a safe alphabet up front; values always travel as bound
// parameters. Sanitization is deterministic, and injective once the
// dedupe suffixing in uniqueName is applied.

// SanitizeTableName keeps [A-Za-z0-9_] and maps every other rune to '_'.
// An input that sanitizes to nothing yields the placeholder "_".
func SanitizeTableName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// SanitizeColumnName lowercases, maps anything outside [a-z0-9_] to '_',
// and prefixes "f_" when the result would start with a digit.
func SanitizeColumnName(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		s = "_"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "f_" + s
	}
	return s
}

// uniqueName returns name, or name_2, name_3, ... until it is absent from
// used, and records the winner in used.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = name + "_" + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}
