package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcusPrado02/outboxd/internal/observability"
	"github.com/marcusPrado02/outboxd/internal/outbox"
	"github.com/marcusPrado02/outboxd/pkg/mlog"
	"github.com/marcusPrado02/outboxd/pkg/mretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakePublisher struct {
	err error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, partitionKey *string) error {
	return f.err
}

func newTestProcessor(t *testing.T, repo outbox.Repository, pub Publisher, opts ...Option) *Processor {
	t.Helper()
	return NewProcessor(&mlog.NoneLogger{}, repo, pub, opts...)
}

func TestNewProcessor_PanicsOnNilLogger(t *testing.T) {
	assert.Panics(t, func() {
		NewProcessor(nil, nil, &fakePublisher{})
	})
}

func TestNewProcessor_PanicsOnNilRepo(t *testing.T) {
	assert.Panics(t, func() {
		NewProcessor(&mlog.NoneLogger{}, nil, &fakePublisher{})
	})
}

func TestNewProcessor_PanicsOnNilPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)

	assert.Panics(t, func() {
		NewProcessor(&mlog.NoneLogger{}, repo, nil)
	})
}

func TestCalculateBackoff_ExponentialGrowth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	p := newTestProcessor(t, repo, &fakePublisher{}, WithRetryConfig(mretry.Config{
		MaxRetries:     10,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		Multiplier:     2,
		JitterFactor:   0,
	}))

	d1 := p.calculateBackoff(1)
	d2 := p.calculateBackoff(2)
	assert.Greater(t, d2, d1)
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	p := newTestProcessor(t, repo, &fakePublisher{}, WithRetryConfig(mretry.Config{
		MaxRetries:     10,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		JitterFactor:   0,
	}))

	d := p.calculateBackoff(20)
	assert.LessOrEqual(t, d, 5*time.Second)
}

func TestCalculateBackoff_ZeroAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	cfg := mretry.Config{MaxRetries: 10, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2, JitterFactor: 0}
	p := newTestProcessor(t, repo, &fakePublisher{}, WithRetryConfig(cfg))

	assert.Equal(t, cfg.InitialBackoff, p.calculateBackoff(0))
}

func TestCalculateBackoff_MultiplierOne_IsConstantDelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	cfg := mretry.Config{MaxRetries: 10, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 1, JitterFactor: 0}
	p := newTestProcessor(t, repo, &fakePublisher{}, WithRetryConfig(cfg))

	assert.Equal(t, cfg.InitialBackoff, p.calculateBackoff(1))
	assert.Equal(t, cfg.InitialBackoff, p.calculateBackoff(5))
}

func TestHandleProcessingError_DeadRouting(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Attempts: 9, MaxAttempts: 10}

	repo.EXPECT().MarkDead(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	p := newTestProcessor(t, repo, &fakePublisher{}, WithMetrics(observability.NoopMetrics{}))
	result := p.handleProcessingError(context.Background(), msg, errors.New("broker unreachable"))
	assert.Equal(t, outcomeDead, result)
}

func TestHandleProcessingError_UsesConfiguredMaxAttemptsNotMessageField(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	// Message.MaxAttempts says 10, but the processor is configured with a
	// ceiling of 2 — the configured value must win.
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Attempts: 1, MaxAttempts: 10}

	repo.EXPECT().MarkDead(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	p := newTestProcessor(t, repo, &fakePublisher{}, WithMetrics(observability.NoopMetrics{}), WithMaxAttempts(2))
	result := p.handleProcessingError(context.Background(), msg, errors.New("broker unreachable"))
	assert.Equal(t, outcomeDead, result)
}

func TestHandleProcessingError_MarkFailedWhenAttemptsRemain(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Attempts: 1, MaxAttempts: 10}

	repo.EXPECT().MarkFailed(gomock.Any(), msg.ID, gomock.Any(), gomock.Any()).Return(nil)

	p := newTestProcessor(t, repo, &fakePublisher{}, WithMetrics(observability.NoopMetrics{}))
	result := p.handleProcessingError(context.Background(), msg, errors.New("broker unreachable"))
	assert.Equal(t, outcomeFailed, result)
}

func TestHandleProcessingError_FirstFailureSchedulesInitialBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Attempts: 0, MaxAttempts: 10}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := mretry.Config{MaxRetries: 10, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Minute, Multiplier: 2}

	var nextAttemptAt time.Time
	repo.EXPECT().MarkFailed(gomock.Any(), msg.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ string, at time.Time) error {
			nextAttemptAt = at
			return nil
		})

	p := newTestProcessor(t, repo, &fakePublisher{}, WithMetrics(observability.NoopMetrics{}), WithRetryConfig(cfg), WithClock(func() time.Time { return now }))
	result := p.handleProcessingError(context.Background(), msg, errors.New("timeout"))
	assert.Equal(t, outcomeFailed, result)
	assert.Equal(t, now.Add(100*time.Millisecond), nextAttemptAt)
}

func TestProcessOnce_PublishesLeasedMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Status: outbox.StatusPending, MaxAttempts: 10}

	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*outbox.Message{msg}, nil)
	repo.EXPECT().MarkProcessing(gomock.Any(), msg.ID, gomock.Any()).Return(true, nil)
	repo.EXPECT().MarkPublished(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	p := newTestProcessor(t, repo, &fakePublisher{}, WithClock(func() time.Time { return now }))

	summary, err := p.processOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Leased)
	assert.Equal(t, 1, summary.Published)
}

func TestProcessOnce_SkipsMessagesLostToAnotherWorker(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Status: outbox.StatusPending, MaxAttempts: 10}

	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*outbox.Message{msg}, nil)
	repo.EXPECT().MarkProcessing(gomock.Any(), msg.ID, gomock.Any()).Return(false, nil)

	p := newTestProcessor(t, repo, &fakePublisher{})

	summary, err := p.processOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Leased)
	assert.Equal(t, 1, summary.Skipped)
}

func TestProcessOnce_EmptyBatch_NoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	p := newTestProcessor(t, repo, &fakePublisher{})

	summary, err := p.processOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{}, summary)
}

func TestProcessOnce_PublishFailure_RoutesToFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Status: outbox.StatusPending, Attempts: 0, MaxAttempts: 10}

	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*outbox.Message{msg}, nil)
	repo.EXPECT().MarkProcessing(gomock.Any(), msg.ID, gomock.Any()).Return(true, nil)
	repo.EXPECT().MarkFailed(gomock.Any(), msg.ID, gomock.Any(), gomock.Any()).Return(nil)

	p := newTestProcessor(t, repo, &fakePublisher{err: errors.New("connection refused")})

	summary, err := p.processOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

type recordingMirror struct {
	records []*outbox.Message
}

func (m *recordingMirror) Record(_ context.Context, msg *outbox.Message, _ time.Time) error {
	m.records = append(m.records, msg)
	return nil
}

func TestProcessOnce_RecordsPublishedMessagesToMirror(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Status: outbox.StatusPending, MaxAttempts: 10}

	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*outbox.Message{msg}, nil)
	repo.EXPECT().MarkProcessing(gomock.Any(), msg.ID, gomock.Any()).Return(true, nil)
	repo.EXPECT().MarkPublished(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	mirror := &recordingMirror{}
	p := newTestProcessor(t, repo, &fakePublisher{}, WithMirror(mirror))

	_, err := p.processOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, mirror.records, 1)
	assert.Equal(t, outbox.StatusPublished, mirror.records[0].Status)
}

func TestHandleProcessingError_RecordsDeadMessagesToMirror(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Attempts: 9, MaxAttempts: 10}

	repo.EXPECT().MarkDead(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	mirror := &recordingMirror{}
	p := newTestProcessor(t, repo, &fakePublisher{}, WithMirror(mirror))

	result := p.handleProcessingError(context.Background(), msg, errors.New("broker unreachable"))
	assert.Equal(t, outcomeDead, result)
	require.Len(t, mirror.records, 1)
	assert.Equal(t, outbox.StatusDead, mirror.records[0].Status)
}

type recordingLeaser struct {
	held     []uuid.UUID
	released int
	err      error
}

func (l *recordingLeaser) Hold(_ context.Context, messageID uuid.UUID) (func(), error) {
	if l.err != nil {
		return func() {}, l.err
	}

	l.held = append(l.held, messageID)

	return func() { l.released++ }, nil
}

func TestProcessOnce_HoldsAndReleasesLeaseAroundPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Status: outbox.StatusPending, MaxAttempts: 10}

	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*outbox.Message{msg}, nil)
	repo.EXPECT().MarkProcessing(gomock.Any(), msg.ID, gomock.Any()).Return(true, nil)
	repo.EXPECT().MarkPublished(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	leaser := &recordingLeaser{}
	p := newTestProcessor(t, repo, &fakePublisher{}, WithLeaser(leaser))

	_, err := p.processOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{msg.ID}, leaser.held)
	assert.Equal(t, 1, leaser.released)
}

func TestProcessOnce_PublishesEvenWhenLeaseHoldFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	msg := &outbox.Message{ID: uuid.New(), Topic: "t", Status: outbox.StatusPending, MaxAttempts: 10}

	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*outbox.Message{msg}, nil)
	repo.EXPECT().MarkProcessing(gomock.Any(), msg.ID, gomock.Any()).Return(true, nil)
	repo.EXPECT().MarkPublished(gomock.Any(), msg.ID, gomock.Any()).Return(nil)

	leaser := &recordingLeaser{err: errors.New("redis unavailable")}
	p := newTestProcessor(t, repo, &fakePublisher{}, WithLeaser(leaser))

	summary, err := p.processOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published)
}

func TestStartStop_DrainsInFlightTick(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := outbox.NewMockRepository(ctrl)
	repo.EXPECT().FetchBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	p := newTestProcessor(t, repo, &fakePublisher{}, WithFixedDelay(10*time.Millisecond), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	err := p.Stop(context.Background())
	assert.NoError(t, err)
}
