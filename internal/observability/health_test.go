package observability

import (
	"testing"

	"github.com/marcusPrado02/outboxd/internal/outbox"
	"github.com/stretchr/testify/assert"
)

func TestHealth_BelowWarning_IsUp(t *testing.T) {
	counts := map[outbox.OutboxStatus]int64{outbox.StatusPending: 5, outbox.StatusFailed: 5}
	status := Health(counts, DefaultHealthThresholds())
	assert.Equal(t, HealthUp, status.State)
}

func TestHealth_PendingAtWarning_IsDegraded(t *testing.T) {
	thresholds := DefaultHealthThresholds()
	counts := map[outbox.OutboxStatus]int64{outbox.StatusPending: thresholds.WarningThreshold}
	status := Health(counts, thresholds)
	assert.Equal(t, HealthDegraded, status.State)
}

func TestHealth_FailedAtWarning_IsDegraded(t *testing.T) {
	thresholds := DefaultHealthThresholds()
	counts := map[outbox.OutboxStatus]int64{outbox.StatusFailed: thresholds.WarningThreshold}
	status := Health(counts, thresholds)
	assert.Equal(t, HealthDegraded, status.State)
}

func TestHealth_PendingAboveError_IsOutOfService(t *testing.T) {
	thresholds := DefaultHealthThresholds()
	counts := map[outbox.OutboxStatus]int64{outbox.StatusPending: thresholds.ErrorThreshold + 1}
	status := Health(counts, thresholds)
	assert.Equal(t, HealthOutOfService, status.State)
}

func TestHealth_FailedAboveError_IsDown(t *testing.T) {
	thresholds := DefaultHealthThresholds()
	counts := map[outbox.OutboxStatus]int64{outbox.StatusFailed: thresholds.ErrorThreshold + 1}
	status := Health(counts, thresholds)
	assert.Equal(t, HealthDown, status.State)
}

func TestHealth_BothAboveError_DownTakesPrecedence(t *testing.T) {
	thresholds := DefaultHealthThresholds()
	counts := map[outbox.OutboxStatus]int64{
		outbox.StatusPending: thresholds.ErrorThreshold + 1,
		outbox.StatusFailed:  thresholds.ErrorThreshold + 1,
	}
	status := Health(counts, thresholds)
	assert.Equal(t, HealthDown, status.State)
}

func TestHealth_AtExactErrorThreshold_IsDegradedNotOutage(t *testing.T) {
	// Health uses a strict ">" for the error thresholds, so sitting exactly
	// on the threshold is still only DEGRADED.
	thresholds := DefaultHealthThresholds()
	counts := map[outbox.OutboxStatus]int64{outbox.StatusPending: thresholds.ErrorThreshold}
	status := Health(counts, thresholds)
	assert.Equal(t, HealthDegraded, status.State)
}
