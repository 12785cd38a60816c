package crawler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFilenameBytes = 255

// reservedChars are rejected by at least one mainstream filesystem.
const reservedChars = `\/:*?"<>|`

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename makes name safe to use as a single path component on any
// platform while keeping it readable. Non-ASCII letters are preserved.
// SanitizeFilename(SanitizeFilename(s)) == SanitizeFilename(s).
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(reservedChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	out := trimName(truncateUTF8(trimName(b.String()), maxFilenameBytes))
	if isReservedName(out) {
		out = suffixReserved(out)
	}
	return out
}

// FitFilename joins prefix, stem and suffix, shortening stem on a rune
// boundary so the whole name stays within the filesystem's byte limit.
func FitFilename(prefix, stem, suffix string) string {
	room := maxFilenameBytes - len(prefix) - len(suffix)
	if room < 0 {
		room = 0
	}
	return prefix + trimName(truncateUTF8(stem, room)) + suffix
}

// suffixReserved turns "CON.txt" into "CON_.txt".
func suffixReserved(name string) string {
	stem, rest, found := strings.Cut(name, ".")
	out := stem + "_"
	if found {
		out += "." + rest
	}
	return trimName(truncateUTF8(out, maxFilenameBytes))
}

func trimName(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

func isReservedName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	_, ok := reservedNames[strings.ToUpper(strings.TrimSpace(stem))]
	return ok
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
