// Package redaction is the shared secret-scrubbing layer used wherever
// text that might contain a credential crosses a boundary into logs,
// error messages, or analysis output: config display and the feedback
// trace analyzer (C15) call into this package rather than rolling their
// own pattern.
//
// Grounded on
// _examples/original_source/.claude/adapters/loa_cheval/config/redaction.py.
package redaction

import (
	"os"
	"regexp"
	"strings"
)

// Redacted is the placeholder substituted for any matched secret.
const Redacted = "***REDACTED***"

var knownSecretEnvVars = []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "MOONSHOT_API_KEY"}

var (
	sensitiveKeyPattern = regexp.MustCompile(`(?i)(auth|key|secret|token|password|credential|bearer)`)
	authHeaderPattern   = regexp.MustCompile(`(?i)(Authorization:\s*Bearer\s+)\S+`)
	xAPIKeyPattern      = regexp.MustCompile(`(?i)(x-api-key:\s*)\S+`)
	urlParamPattern     = regexp.MustCompile(`(?i)([?&])(api[_-]?key|token|secret|auth)=([^&\s]+)`)
)

// String scrubs known secret-bearing patterns out of an arbitrary string:
// the value of any known secret env var currently set, any env var
// prefixed HOUNFOUR_ whose value is long enough to be a credential,
// Authorization: Bearer / x-api-key headers, and api_key/token/secret/auth
// URL query parameters.
func String(value string) string {
	result := value

	for _, name := range knownSecretEnvVars {
		if v := os.Getenv(name); v != "" && strings.Contains(result, v) {
			result = strings.ReplaceAll(result, v, Redacted)
		}
	}
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "HOUNFOUR_") || len(val) <= 8 {
			continue
		}
		if strings.Contains(result, val) {
			result = strings.ReplaceAll(result, val, Redacted)
		}
	}

	result = authHeaderPattern.ReplaceAllString(result, "${1}"+Redacted)
	result = xAPIKeyPattern.ReplaceAllString(result, "${1}"+Redacted)
	result = urlParamPattern.ReplaceAllString(result, "${1}${2}="+Redacted)

	return result
}

// Error scrubs a secret-bearing pattern out of an error's message.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Headers returns a copy of headers with any value whose key name looks
// sensitive (auth/key/secret/token/password/credential/bearer) replaced
// by the redacted placeholder.
func Headers(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveKeyPattern.MatchString(k) {
			out[k] = Redacted
		} else {
			out[k] = v
		}
	}
	return out
}

// ConfigValue redacts a config value if its key name suggests sensitivity,
// recursing into maps and slices.
func ConfigValue(key string, value any) any {
	switch v := value.(type) {
	case string:
		if sensitiveKeyPattern.MatchString(key) {
			return Redacted
		}
		if strings.Contains(v, "{env:") || strings.Contains(v, "{file:") {
			return Redacted + " (from " + v + ")"
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = ConfigValue(k, item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ConfigValue(key, item)
		}
		return out
	default:
		return value
	}
}
