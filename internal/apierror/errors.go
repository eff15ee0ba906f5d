package apierror

import (
	"regexp"
	"strings"
)

// Patterns that indicate internal/sensitive errors. The storage engine is
// embedded, so the leaks to guard against are bbolt/journal-log failures,
// filesystem paths and anything that smells like a crash.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbbolt\b|\bbolt\b|mmap|journal log|database file`),
	regexp.MustCompile(`(?i)connection|timeout|refused`),
	regexp.MustCompile(`(?i)/var/|/tmp/|/home/|/app/|/data/|\.go:\d+`),
	regexp.MustCompile(`(?i)dial tcp|network|socket`),
	regexp.MustCompile(`(?i)panic|runtime error`),
	regexp.MustCompile(`(?i)internal server|stack trace`),
	regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`), // IP addresses
}

const genericError = "An internal error occurred"

// Sanitize removes sensitive information from error messages
// Safe messages (parse errors, ledger validation errors) are passed through
func Sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(msg) {
			return genericError
		}
	}

	// Additional check for file paths
	if strings.Contains(msg, "/") && (strings.Contains(msg, "open") || strings.Contains(msg, "read") || strings.Contains(msg, "write")) {
		return genericError
	}

	return msg
}
