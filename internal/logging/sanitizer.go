package logging

import "regexp"

const (
	// MaxQueryLogLength caps how much of a statement is logged.
	MaxQueryLogLength = 100
	// RedactedText replaces sensitive data in log output.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx in keyword/value connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host inside connection URIs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnString removes credentials from a connection string before it
// is logged or embedded in an error.
func SanitizeConnString(connStr string) string {
	if connStr == "" {
		return ""
	}
	s := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError redacts credential material from an error message. Database
// drivers echo connection parameters into errors, so every engine error passes
// through here before logging or propagation.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnString(err.Error())
}

// SanitizeQuery truncates a statement for logging and strips credential-shaped
// fragments that may appear in literals.
func SanitizeQuery(query string) string {
	if len(query) > MaxQueryLogLength {
		query = query[:MaxQueryLogLength] + "..."
	}
	return passwordPattern.ReplaceAllString(query, "${1}="+RedactedText)
}
