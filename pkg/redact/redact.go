// Package redact masks credential and secret values before they are persisted or returned to clients.
package redact

import (
	"regexp"
	"strings"
)

// Mask replaces every sensitive value.
const Mask = "[REDACTED]"

// containsTerms mark a key as sensitive when the normalized key contains them.
var containsTerms = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"accesskey",
	"privatekey",
	"credential",
	"authorization",
	"cookie",
}

// exactTerms mark a key as sensitive only on an exact normalized match.
var exactTerms = map[string]struct{}{
	"auth":   {},
	"key":    {},
	"pass":   {},
	"pwd":    {},
	"bearer": {},
}

var bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{8,}=*`)

// IsSensitiveKey reports whether a map key names a secret.
func IsSensitiveKey(key string) bool {
	normalized := normalize(key)
	if normalized == "" {
		return false
	}

	if _, ok := exactTerms[normalized]; ok {
		return true
	}

	for _, term := range containsTerms {
		if strings.Contains(normalized, term) {
			return true
		}
	}

	return false
}

func normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	for _, r := range strings.ToLower(key) {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// Value returns a copy of v with secrets masked.
// Strings under sensitive keys are replaced by Mask, as are strings nested in containers under
// them; numbers and booleans pass through. Bearer tokens inside other strings lose their
// credential part. Applying Value twice yields the same result.
func Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Map(val)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			if IsSensitiveKey(k) {
				out[k] = Mask

				continue
			}

			out[k] = String(s)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Value(item)
		}

		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = Map(item)
		}

		return out
	case string:
		return String(val)
	default:
		return v
	}
}

// Map is Value specialised for objects. A nil map stays nil.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			out[k] = maskStrings(v)

			continue
		}

		out[k] = Value(v)
	}

	return out
}

// maskStrings replaces every string reachable from v by Mask.
func maskStrings(v any) any {
	switch val := v.(type) {
	case string:
		return Mask
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = maskStrings(item)
		}

		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k := range val {
			out[k] = Mask
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskStrings(item)
		}

		return out
	case []string:
		out := make([]string, len(val))
		for i := range val {
			out[i] = Mask
		}

		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i], _ = maskStrings(item).(map[string]any)
		}

		return out
	default:
		return v
	}
}

// String masks bearer tokens embedded in free text.
func String(s string) string {
	if !bearerPattern.MatchString(s) {
		return s
	}

	return bearerPattern.ReplaceAllStringFunc(s, func(match string) string {
		scheme := strings.Fields(match)[0]

		return scheme + " " + Mask
	})
}
