// Package redact masks credentials and other sensitive material in text and
// structured values before they reach logs, channels, or audit streams.
package redact

import (
	"regexp"
	"strings"
)

// Mask is the fixed replacement token. It contains no characters that any
// detector pattern matches, so redaction is idempotent.
const Mask = "[REDACTED]"

type namedRegex struct {
	name string
	re   *regexp.Regexp
}

// Detectors are applied in order. Header-style credentials first so the
// generic token-run patterns never see a partial match.
var detectors = []namedRegex{
	{"bearer_token", regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`)},
	{"basic_auth", regexp.MustCompile(`Basic\s+[A-Za-z0-9+/]+=*`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`)},
	{"assignment", regexp.MustCompile(`(?i)\b(token|password|passwd|pwd|secret|api_key|apikey)\b\s*[:=]\s*\S+`)},
	{"hex_token", regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)},
	{"long_token", regexp.MustCompile(`\b[A-Za-z0-9+/_\-]{40,}={0,2}\b`)},
}

// sensitiveKeyWords mark field names whose values are always masked
// regardless of content. A key matches when it contains one of these words,
// case-insensitively, so user_password and controller_token both match.
var sensitiveKeyWords = []string{
	"token",
	"password",
	"passwd",
	"secret",
	"api_key",
	"apikey",
	"authorization",
	"auth_type",
	"username",
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, w := range sensitiveKeyWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Redact masks every detected credential pattern in text.
// Redact(Redact(s)) == Redact(s) for all s.
func Redact(text string) string {
	result := text
	for _, nr := range detectors {
		result = nr.re.ReplaceAllStringFunc(result, func(m string) string {
			// Keep the key name visible for assignment-style matches.
			if nr.name == "assignment" {
				if i := strings.IndexAny(m, ":="); i >= 0 {
					return m[:i+1] + Mask
				}
			}
			return Mask
		})
	}
	return result
}

// Value walks an arbitrary decoded JSON value and returns a redacted copy.
// Strings pass through Redact; maps additionally mask the whole value of any
// sensitive key. The input is never mutated.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return Redact(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			if sensitiveKey(k) {
				out[k] = Mask
				continue
			}
			out[k] = Value(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = Value(inner)
		}
		return out
	default:
		return v
	}
}

// Args redacts a tool-call argument map. Returns a new map; nil in, nil out.
func Args(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	return Value(args).(map[string]any)
}

// MaskSecret partially masks a secret value, showing only the first and last
// few characters. For display of credential snippets in the CLI.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
