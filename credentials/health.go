package credentials

import (
	"bytes"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HealthStatus is the classified outcome of a credential health check.
type HealthStatus string

const (
	HealthOK          HealthStatus = "ok"
	HealthInvalid     HealthStatus = "invalid"
	HealthForbidden   HealthStatus = "forbidden"
	HealthMissing     HealthStatus = "missing"
	HealthUnknownWeak HealthStatus = "unknown/weak_validation"
	HealthOther       HealthStatus = "other"
)

// HealthResult is one credential's check outcome.
type HealthResult struct {
	CredentialID string
	Status       HealthStatus
	Message      string
}

// formatCheck describes a format-only (dry-run-safe) validation: a required
// prefix, a minimum length, and whether the credential id is known to be
// weakly validatable this way (in which case a pass is reported as
// unknown/weak_validation rather than ok, avoiding false confidence).
type formatCheck struct {
	prefix  string
	minLen  int
	charset *regexp.Regexp
	weak    bool
}

var formatChecks = map[string]formatCheck{
	"OPENAI_API_KEY":    {prefix: "sk-", minLen: 20, charset: regexp.MustCompile(`^[A-Za-z0-9_-]+$`)},
	"ANTHROPIC_API_KEY": {prefix: "sk-ant-", minLen: 20, charset: regexp.MustCompile(`^[A-Za-z0-9_-]+$`)},
	"MOONSHOT_API_KEY":  {prefix: "sk-", minLen: 16, charset: regexp.MustCompile(`^[A-Za-z0-9_-]+$`), weak: true},
}

// liveCheck describes a single minimally-scoped live HTTP probe that proves
// a key authenticates without performing real work.
type liveCheck struct {
	method      string
	url         string
	authHeader  func(key string) (name, value string)
	extraHeader map[string]string
	body        []byte
	okStatus    int
}

var liveChecks = map[string]liveCheck{
	"OPENAI_API_KEY": {
		method: http.MethodGet,
		url:    "https://api.openai.com/v1/models",
		authHeader: func(key string) (string, string) {
			return "Authorization", "Bearer " + key
		},
		okStatus: http.StatusOK,
	},
	"ANTHROPIC_API_KEY": {
		method: http.MethodPost,
		url:    "https://api.anthropic.com/v1/messages",
		authHeader: func(key string) (string, string) {
			return "x-api-key", key
		},
		extraHeader: map[string]string{"anthropic-version": "2023-06-01"},
		// Deliberately malformed: a 400 for schema failure proves the key
		// authenticated (an invalid key would 401 first).
		body:     []byte(`{}`),
		okStatus: http.StatusBadRequest,
	},
	"MOONSHOT_API_KEY": {
		method: http.MethodGet,
		url:    "https://api.moonshot.cn/v1/models",
		authHeader: func(key string) (string, string) {
			return "Authorization", "Bearer " + key
		},
		okStatus: http.StatusOK,
	},
}

// KnownCredentialIDs lists the credential ids CheckAll iterates.
func KnownCredentialIDs() []string {
	return []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "MOONSHOT_API_KEY"}
}

// CheckFormat validates a credential id's value against its known
// prefix/length/charset, without making any network call (spec §4.2:
// "format-only, default, dry-run-safe").
func CheckFormat(credentialID, value string) HealthResult {
	check, ok := formatChecks[credentialID]
	if !ok {
		return HealthResult{CredentialID: credentialID, Status: HealthOther, Message: "no format check registered"}
	}
	if len(value) < check.minLen || !hasPrefix(value, check.prefix) || !check.charset.MatchString(value) {
		return HealthResult{CredentialID: credentialID, Status: HealthInvalid, Message: "failed format validation"}
	}
	if check.weak {
		return HealthResult{CredentialID: credentialID, Status: HealthUnknownWeak, Message: "format valid but weakly validated"}
	}
	return HealthResult{CredentialID: credentialID, Status: HealthOK, Message: "format valid"}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// isJWTFormatted reports whether value has the three dot-separated
// segments a compact JWT requires. Some OpenAI-compatible gateways issue
// JWT-formatted service tokens instead of opaque API keys.
func isJWTFormatted(value string) bool {
	return strings.Count(value, ".") == 2
}

// checkJWTShape parses a JWT-formatted credential without verifying its
// signature (we have no issuer public key at this layer) and checks only
// that it decodes and, if it carries an exp claim, that it hasn't expired.
// This is a format-only pre-check: catching an obviously malformed or
// expired JWT here avoids spending a live HTTP round trip on a token that
// could never have authenticated.
func checkJWTShape(credentialID, value string) HealthResult {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return HealthResult{CredentialID: credentialID, Status: HealthInvalid, Message: "malformed JWT-shaped credential"}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && time.Now().After(exp.Time) {
		return HealthResult{CredentialID: credentialID, Status: HealthInvalid, Message: "JWT credential expired"}
	}
	return HealthResult{CredentialID: credentialID, Status: HealthOK, Message: "JWT shape valid, pending live check"}
}

// CheckLive issues the credential id's minimally-scoped live request and
// classifies the response. Callers must treat any error text this returns
// as already redaction-safe: the HTTP client here never logs headers or
// bodies itself.
func CheckLive(client *http.Client, credentialID, value string) HealthResult {
	check, ok := liveChecks[credentialID]
	if !ok {
		return HealthResult{CredentialID: credentialID, Status: HealthOther, Message: "no live check registered"}
	}

	if isJWTFormatted(value) {
		if pre := checkJWTShape(credentialID, value); pre.Status == HealthInvalid {
			return pre
		}
	}

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequest(check.method, check.url, bytes.NewReader(check.body))
	if err != nil {
		return HealthResult{CredentialID: credentialID, Status: HealthOther, Message: "request construction failed"}
	}
	name, val := check.authHeader(value)
	req.Header.Set(name, val)
	for k, v := range check.extraHeader {
		req.Header.Set(k, v)
	}
	if len(check.body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return HealthResult{CredentialID: credentialID, Status: HealthOther, Message: "request failed"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == check.okStatus:
		return HealthResult{CredentialID: credentialID, Status: HealthOK, Message: "live check passed"}
	case resp.StatusCode == http.StatusUnauthorized:
		return HealthResult{CredentialID: credentialID, Status: HealthInvalid, Message: "401 unauthorized"}
	case resp.StatusCode == http.StatusForbidden:
		return HealthResult{CredentialID: credentialID, Status: HealthForbidden, Message: "403 forbidden"}
	default:
		return HealthResult{CredentialID: credentialID, Status: HealthOther, Message: "unexpected status"}
	}
}

// CheckAll runs a format (or, if live is true, live) check for every known
// credential id the provider chain resolves, reporting HealthMissing for
// any id the chain has no value for at all.
func CheckAll(provider Provider, live bool, client *http.Client) []HealthResult {
	ids := KnownCredentialIDs()
	results := make([]HealthResult, 0, len(ids))
	for _, id := range ids {
		value, ok := provider.Get(id)
		if !ok {
			results = append(results, HealthResult{CredentialID: id, Status: HealthMissing, Message: "no credential found in chain"})
			continue
		}
		if live {
			results = append(results, CheckLive(client, id, value))
		} else {
			results = append(results, CheckFormat(id, value))
		}
	}
	return results
}
