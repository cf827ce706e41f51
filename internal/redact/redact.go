// Package redact masks credentials in strings before they reach logs or
// error responses: database DSNs, passwords, bearer tokens, JWTs and
// registry auth headers that may surface in driver or Docker errors.
package redact

import "regexp"

const (
	// CredentialPlaceholder replaces user:password pairs and password values.
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	// TokenPlaceholder replaces bearer tokens, secrets and registry auth.
	TokenPlaceholder = "[REDACTED_TOKEN]"
	// JWTPlaceholder replaces three-part JWTs.
	JWTPlaceholder = "[REDACTED_JWT]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in order; JWTs go first so the token rule does not split them.
var rules = []rule{
	{
		pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		replacement: JWTPlaceholder,
	},
	{
		// scheme://user:pass@ keeps the scheme and host visible.
		pattern:     regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^/@\s]+@`),
		replacement: "${1}" + CredentialPlaceholder + "@",
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(password|passwd|pwd)(\s*[=:]\s*)['"]?[^'"&\s]+`),
		replacement: "${1}${2}" + CredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9_\-.~+/]+=*`),
		replacement: "${1} " + TokenPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(secret|token|api[_-]?key|x-registry-auth)(\s*[=:]\s*)['"]?[A-Za-z0-9_\-.~+/]{8,}=*`),
		replacement: "${1}${2}" + TokenPlaceholder,
	},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	for _, r := range rules {
		input = r.pattern.ReplaceAllString(input, r.replacement)
	}
	return input
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
