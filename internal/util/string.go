package util

import "strings"

// TruncateString truncates a string to maxRunes characters (rune-based, not byte-based)
// If truncated, appends "..." to the result
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Normalize performs basic string normalization (lowercase + trim)
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsBlank reports whether s is empty or whitespace-only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Contains checks if a string slice contains a specific item
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
