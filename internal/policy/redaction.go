package policy

import (
	"regexp"
	"strings"
)

type redaction struct {
	pattern *regexp.Regexp
	marker  string
}

// Cards run before phones so long digit runs are not classified as phones.
var redactions = []redaction{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:sk|sk-ant|xi)-[A-Za-z0-9_\-]{16,}\b`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII in transcripts and prompts before they
// reach the logs.
func RedactPII(input string) string {
	out := input
	for _, r := range redactions {
		out = r.pattern.ReplaceAllString(out, r.marker)
	}
	return out
}

// ContainsPII reports whether RedactPII would change input.
func ContainsPII(input string) bool {
	for _, r := range redactions {
		if r.pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// MaskSecret keeps the last four characters of a credential for display.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
