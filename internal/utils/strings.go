package utils

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MaxMessageLength caps provider error bodies and messages quoted in errors.
const MaxMessageLength = 500

// JSONToString renders object as compact JSON for a log attribute. A value
// that cannot be marshalled yields an error object instead.
func JSONToString(object any) string {
	encoded, err := json.Marshal(object)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(encoded)
}

// TruncateString keeps at most maxLen bytes of s, cut back to a rune boundary,
// and notes how long s was. A non-positive maxLen means MaxMessageLength.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", s[:cut], len(s))
}
