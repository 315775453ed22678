package logging

import (
	"io"
	"regexp"
	"strings"
)

// Backend credentials must never reach log output, including when config
// structs get dumped at debug level.
var sensitiveFields = []string{
	"publish_key",
	"subscribe_key",
	"secret",
	"token",
	"auth",
	"credential",
}

var secretPatterns = []*regexp.Regexp{
	// Realtime backend key formats
	regexp.MustCompile(`(?i)(pub-c-[a-f0-9-]{30,})`),
	regexp.MustCompile(`(?i)(sub-c-[a-f0-9-]{30,})`),
	regexp.MustCompile(`(?i)(sec-c-[a-zA-Z0-9+/=]{30,})`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`),

	// Generic key=value secrets
	regexp.MustCompile(`(?i)(key|token|secret|auth)[=:]["']?([a-zA-Z0-9+/=_-]{32,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces sensitive information in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// redactWriter runs every log line through Redact before it reaches the sink.
// Init wraps all output with it, so the guarantee holds regardless of which
// logger or format produced the line.
type redactWriter struct {
	out io.Writer
}

func (w redactWriter) Write(p []byte) (int, error) {
	if _, err := w.out.Write([]byte(Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
