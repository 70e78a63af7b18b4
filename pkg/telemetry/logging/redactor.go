package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Masked replaces fully redacted values.
const Masked = "***"

var sensitiveKeys = []string{
	"token", "api_key", "apikey", "secret", "password", "authorization",
}

// Redactor masks credentials in log attributes: values of sensitive keys
// are masked entirely, and token-shaped substrings are masked anywhere.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the built-in token patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`sk-[A-Za-z0-9_\-]{4,}`),
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		},
	}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		if isSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
			return slog.String(a.Key, Masked)
		}
		return a
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskToken(a.Value.String()))
	}
	if s := a.Value.String(); s != "" {
		if red := r.RedactString(s); red != s {
			return slog.String(a.Key, red)
		}
	}
	return a
}

// RedactString masks token-shaped substrings.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			if strings.HasPrefix(strings.ToLower(m), "bearer") {
				return "Bearer " + Masked
			}
			return MaskToken(m)
		})
	}
	return s
}

// MaskToken keeps a short prefix of a credential for correlation.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return Masked
	}
	return token[:5] + Masked
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "_id") {
		return false
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
