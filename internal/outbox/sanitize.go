package outbox

import "regexp"

// maxErrorMessageLen bounds how much of a publish error we persist on a
// message row, truncation marker included; full driver/broker errors can
// run to several KB and aren't useful past this point.
const maxErrorMessageLen = 512

const truncationMarker = "...[truncated]"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// SanitizeErrorMessage redacts obvious PII (email addresses, phone numbers,
// IPv4 addresses) from a publish error before it's persisted to
// Message.LastError, and truncates it to a bounded length.
func SanitizeErrorMessage(msg string) string {
	msg = emailPattern.ReplaceAllString(msg, "[REDACTED]")
	msg = phonePattern.ReplaceAllString(msg, "[REDACTED]")
	msg = ipv4Pattern.ReplaceAllString(msg, "[REDACTED]")

	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen-len(truncationMarker)] + truncationMarker
	}

	return msg
}
