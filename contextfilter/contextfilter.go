// Package contextfilter implements per-model epistemic trust-scope
// filtering of prompt content (C5, spec §4.5). Four independent
// dimensions — architecture, business_logic, security, lore — each reduce
// message content according to a per-dimension access level looked up from
// the resolved provider:model's configured trust scopes.
//
// Grounded on
// _examples/original_source/.claude/adapters/loa_cheval/routing/context_filter.py.
// These are content-reduction heuristics, not a security boundary: the
// function-body redaction regex below targets `def`/`class`-style bodies
// and will not catch every language's function syntax.
package contextfilter

import (
	"regexp"
	"strings"

	"github.com/hounfour/gateway/types"
)

// Access is a single dimension's permission level.
type Access string

const (
	AccessFull     Access = "full"
	AccessSummary  Access = "summary"
	AccessRedacted Access = "redacted"
	AccessNone     Access = "none"
)

// TrustScopes is the four-dimension access grant for one provider:model.
// Absent dimensions default to full (backward compatibility with configs
// written before trust scopes existed).
type TrustScopes struct {
	Architecture  Access `yaml:"architecture" json:"architecture"`
	BusinessLogic Access `yaml:"business_logic" json:"business_logic"`
	Security      Access `yaml:"security" json:"security"`
	Lore          Access `yaml:"lore" json:"lore"`
}

// DefaultTrustScopes grants full access on every dimension.
func DefaultTrustScopes() TrustScopes {
	return TrustScopes{
		Architecture:  AccessFull,
		BusinessLogic: AccessFull,
		Security:      AccessFull,
		Lore:          AccessFull,
	}
}

// IsAllFull reports whether every dimension is full (filtering is then a
// no-op and can be skipped entirely).
func (t TrustScopes) IsAllFull() bool {
	return t.Architecture == AccessFull &&
		t.BusinessLogic == AccessFull &&
		t.Security == AccessFull &&
		t.Lore == AccessFull
}

func normalize(t TrustScopes) TrustScopes {
	if t.Architecture == "" {
		t.Architecture = AccessFull
	}
	if t.BusinessLogic == "" {
		t.BusinessLogic = AccessFull
	}
	if t.Security == "" {
		t.Security = AccessFull
	}
	if t.Lore == "" {
		t.Lore = AccessFull
	}
	return t
}

// ArchitectureSummaryMaxChars bounds the retained portion of an
// architecture section under "summary" access.
const ArchitectureSummaryMaxChars = 500

var (
	architectureHeaderPattern = regexp.MustCompile(`(?mi)^#{1,6}\s*(architecture|design|sdd|prd)\b.*$`)
	securityHeaderPattern     = regexp.MustCompile(`(?mi)^#{1,6}\s*(security|audit|vulnerability|findings)\b.*$`)
	loreHeaderPattern         = regexp.MustCompile(`(?mi)^#{1,6}\s*(lore|vision)\b.*$`)
	anyHeaderPattern          = regexp.MustCompile(`(?m)^#{1,6}\s.*$`)

	cveOwaspPattern = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,}\b|\b(SQLi|XSS|CSRF|RCE|SSRF|OWASP)\b`)

	functionBodyPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\n(.*?)```")
	defLinePattern      = regexp.MustCompile(`^\s*(def |async def |function |class )\S.*$`)

	contextBlockPattern = regexp.MustCompile(`(?m)^[ \t]*context:\s*\n(?:[ \t]+\S.*\n?)+`)
)

// FilterMessageContent applies the configured per-dimension transforms to
// a single message's string content.
func FilterMessageContent(content string, scopes TrustScopes) string {
	scopes = normalize(scopes)

	if scopes.Architecture == AccessSummary {
		content = summarizeArchitecture(content)
	} else if scopes.Architecture == AccessNone {
		content = dropSections(content, architectureHeaderPattern)
	}

	if scopes.BusinessLogic == AccessRedacted {
		content = redactFunctionBodies(content)
	} else if scopes.BusinessLogic == AccessNone {
		content = dropCodeBlocks(content)
	}

	if scopes.Security == AccessRedacted {
		content = stripSecurityContent(content)
	} else if scopes.Security == AccessNone {
		content = dropSections(content, securityHeaderPattern)
	}

	if scopes.Lore == AccessSummary {
		content = summarizeLore(content)
	} else if scopes.Lore == AccessNone {
		content = dropSections(content, loreHeaderPattern)
	}

	return content
}

// summarizeArchitecture keeps section headers and each section's first
// paragraph, truncated to ArchitectureSummaryMaxChars, inserting a marker
// where content was cut.
func summarizeArchitecture(content string) string {
	if !architectureHeaderPattern.MatchString(content) {
		return content
	}
	sections := splitSections(content, anyHeaderPattern)
	var b strings.Builder
	for _, sec := range sections {
		if !architectureHeaderPattern.MatchString(sec.header) {
			b.WriteString(sec.header)
			b.WriteString(sec.body)
			continue
		}
		b.WriteString(sec.header)
		paragraph := firstParagraph(sec.body)
		if len(paragraph) > ArchitectureSummaryMaxChars {
			paragraph = paragraph[:ArchitectureSummaryMaxChars]
		}
		b.WriteString(paragraph)
		if len(paragraph) < len(strings.TrimSpace(sec.body)) {
			b.WriteString("\n[content summarized]\n")
		}
	}
	return b.String()
}

func firstParagraph(body string) string {
	parts := strings.SplitN(strings.TrimLeft(body, "\n"), "\n\n", 2)
	return strings.TrimSpace(parts[0])
}

type section struct {
	header string
	body   string
}

// splitSections breaks content at each header match, pairing every header
// line with the body text that follows it up to the next header (or EOF).
func splitSections(content string, headerPattern *regexp.Regexp) []section {
	matches := headerPattern.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return []section{{header: "", body: content}}
	}

	var sections []section
	if matches[0][0] > 0 {
		sections = append(sections, section{header: "", body: content[:matches[0][0]]})
	}
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, section{header: content[m[0]:m[1]] + "\n", body: content[m[1]:end]})
	}
	return sections
}

// dropSections removes any section whose header matches markerPattern.
func dropSections(content string, markerPattern *regexp.Regexp) string {
	sections := splitSections(content, anyHeaderPattern)
	var b strings.Builder
	for _, sec := range sections {
		if markerPattern.MatchString(sec.header) {
			continue
		}
		b.WriteString(sec.header)
		b.WriteString(sec.body)
	}
	return b.String()
}

// redactFunctionBodies replaces the body of each def/class-style construct
// inside a fenced code block with a placeholder, preserving the signature
// line. This explicitly does not recognize Go func, Rust fn, Java methods,
// or arrow functions — it is a best-effort reduction ported as-is from the
// Python original's Python/JS-oriented heuristic.
func redactFunctionBodies(content string) string {
	return functionBodyPattern.ReplaceAllStringFunc(content, func(block string) string {
		lines := strings.Split(block, "\n")
		var out []string
		inBody := false
		for _, line := range lines {
			if defLinePattern.MatchString(line) {
				out = append(out, line)
				inBody = true
				continue
			}
			if inBody {
				if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "```") {
					inBody = false
					out = append(out, line)
					continue
				}
				continue // swallow body line
			}
			out = append(out, line)
		}
		return strings.Join(out, "\n")
	})
}

// dropCodeBlocks replaces every fenced code block outright with a sentinel.
func dropCodeBlocks(content string) string {
	return functionBodyPattern.ReplaceAllString(content, "```\n[code block removed]\n```")
}

// stripSecurityContent rewrites CVE identifiers and OWASP-keyword inline
// hits to a placeholder, independent of the section-drop transform used by
// "none" access.
func stripSecurityContent(content string) string {
	return cveOwaspPattern.ReplaceAllString(content, "[redacted]")
}

// summarizeLore strips nested "context:" blocks from structured documents.
func summarizeLore(content string) string {
	return contextBlockPattern.ReplaceAllString(content, "context: [summarized]\n")
}

// FilterMessages deep-copies messages and applies FilterMessageContent to
// each string-valued message, returning the filtered copy. Native-runtime
// callers and all-full scopes bypass filtering entirely, returning the
// original slice unmodified (spec §4.5: "prompt filtering would be
// theater" for native runtimes that already have workspace access).
func FilterMessages(messages []types.Message, scopes TrustScopes, isNativeRuntime bool) []types.Message {
	if isNativeRuntime || normalize(scopes).IsAllFull() {
		return messages
	}

	out := make([]types.Message, len(messages))
	for i, m := range messages {
		out[i] = m
		if m.Content == "" && len(m.Images) > 0 {
			// Non-string / multimodal content passes through unfiltered;
			// this is intentionally a warning-worthy gap, not an error.
			continue
		}
		out[i].Content = FilterMessageContent(m.Content, scopes)
	}
	return out
}

// AuditResult is what AuditFilterMessages logs: which dimensions touched
// content and how many characters each message's content changed by.
type AuditResult struct {
	DimensionsTouched []string
	CharDeltas        []int
}

// AuditFilterMessages runs the filtering pipeline on a copy to measure
// impact but always returns the original, unmodified messages (spec §4.5:
// "used to observe impact before enabling enforcement", INV-012).
func AuditFilterMessages(messages []types.Message, scopes TrustScopes, isNativeRuntime bool) ([]types.Message, AuditResult) {
	filtered := FilterMessages(messages, scopes, isNativeRuntime)

	result := AuditResult{DimensionsTouched: touchedDimensions(scopes, isNativeRuntime)}
	for i := range messages {
		result.CharDeltas = append(result.CharDeltas, len(messages[i].Content)-len(filtered[i].Content))
	}
	return messages, result
}

func touchedDimensions(scopes TrustScopes, isNativeRuntime bool) []string {
	if isNativeRuntime {
		return nil
	}
	scopes = normalize(scopes)
	var touched []string
	if scopes.Architecture != AccessFull {
		touched = append(touched, "architecture")
	}
	if scopes.BusinessLogic != AccessFull {
		touched = append(touched, "business_logic")
	}
	if scopes.Security != AccessFull {
		touched = append(touched, "security")
	}
	if scopes.Lore != AccessFull {
		touched = append(touched, "lore")
	}
	return touched
}
