package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks secrets in log attributes.
type Redactor struct {
	patterns []redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

var defaultPatterns = []redactPattern{
	// sk- style provider keys
	{regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{8,}`), "sk-***"},
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([:=]\s*)[^\s&"']+`), "$1$2***"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), "[private key]"},
}

var sensitiveKeys = []string{
	"password", "passwd", "secret", "token",
	"api_key", "apikey", "authorization", "private_key",
}

// NewRedactor creates a Redactor with the built-in patterns plus extra,
// each of which replaces its matches with "***".
func NewRedactor(extra ...*regexp.Regexp) *Redactor {
	r := &Redactor{patterns: append([]redactPattern(nil), defaultPatterns...)}
	for _, re := range extra {
		if re != nil {
			r.patterns = append(r.patterns, redactPattern{regex: re, replacement: "***"})
		}
	}
	return r
}

// RedactString masks secrets inside value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(a.Value.String()))
	}
	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" {
			return slog.String(a.Key, r.RedactString(s))
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// maskValue keeps a four character hint of longer values.
func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + "***"
}
