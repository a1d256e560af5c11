package outbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorMessage_RedactsEmail(t *testing.T) {
	out := SanitizeErrorMessage("publish failed: notify jane.doe@example.com of outage")
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.Contains(t, out, "[REDACTED]")
}

func TestSanitizeErrorMessage_RedactsPhone(t *testing.T) {
	out := SanitizeErrorMessage("dial-out rejected by 415-555-0132")
	assert.NotContains(t, out, "415-555-0132")
	assert.Contains(t, out, "[REDACTED]")
}

func TestSanitizeErrorMessage_RedactsIPv4(t *testing.T) {
	out := SanitizeErrorMessage("dial tcp 10.0.0.42:5672: connection refused")
	assert.NotContains(t, out, "10.0.0.42")
	assert.Contains(t, out, "[REDACTED]")
}

func TestSanitizeErrorMessage_LeavesUnrelatedTextAlone(t *testing.T) {
	out := SanitizeErrorMessage("channel closed unexpectedly")
	assert.Equal(t, "channel closed unexpectedly", out)
}

func TestSanitizeErrorMessage_TruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", maxErrorMessageLen+100)

	out := SanitizeErrorMessage(long)
	assert.True(t, strings.HasSuffix(out, "...[truncated]"))
	assert.LessOrEqual(t, len(out), maxErrorMessageLen)
}

func TestSanitizeErrorMessage_EmptyString(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
}
