// Package processor drains the transactional outbox: it leases batches of
// eligible messages, publishes each through a broker-agnostic Publisher,
// and drives every row through PENDING -> PROCESSING -> {PUBLISHED | FAILED
// -> DEAD} under an exponential backoff policy.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcusPrado02/outboxd/internal/observability"
	"github.com/marcusPrado02/outboxd/internal/outbox"
	"github.com/marcusPrado02/outboxd/pkg/mlog"
	"github.com/marcusPrado02/outboxd/pkg/mretry"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// Publisher sends one message's payload to the broker on topic, optionally
// honoring partitionKey for brokers that route by partition.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, partitionKey *string) error
}

// Clock is the source of "now" the processor leases and schedules against;
// tests substitute a fixed or stepped clock.
type Clock func() time.Time

// Mirror is notified after a message reaches a terminal state
// (PUBLISHED or DEAD). It is a best-effort side channel — the MongoDB
// audit adapter is the default implementation — and its errors are
// logged, never allowed to affect the outbox state machine.
type Mirror interface {
	Record(ctx context.Context, msg *outbox.Message, recordedAt time.Time) error
}

type noopMirror struct{}

func (noopMirror) Record(context.Context, *outbox.Message, time.Time) error { return nil }

// Leaser extends a message's database CAS lease with a time-bounded
// external lock for the duration of one publish call. If a worker crashes
// mid-publish, the external lock's TTL expires, but the database row stays
// PROCESSING: the Processor never re-leases a PROCESSING row, so recovering
// it is left to an operator. The Redis/redsync adapter is the default
// implementation; it is optional and its failures never block a publish.
type Leaser interface {
	Hold(ctx context.Context, messageID uuid.UUID) (release func(), err error)
}

type noopLeaser struct{}

func (noopLeaser) Hold(context.Context, uuid.UUID) (func(), error) { return func() {}, nil }

// BatchSummary is what processOnce returns: the tally of one tick's work.
type BatchSummary struct {
	Leased    int
	Published int
	Failed    int
	Dead      int
	Skipped   int
}

const (
	defaultMaxWorkers      = 5
	defaultBatchSize       = 100
	defaultMaxAttempts     = 10
	defaultFixedDelay      = 2 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Processor is the C4 component: the background loop that turns staged
// outbox rows into broker publishes.
type Processor struct {
	logger  mlog.Logger
	repo    outbox.Repository
	pub     Publisher
	metrics observability.Metrics
	clock   Clock
	mirror  Mirror
	leaser  Leaser

	retryConfig     mretry.Config
	maxWorkers      int
	batchSize       int
	maxAttempts     int
	fixedDelay      time.Duration
	shutdownTimeout time.Duration

	wakeup chan struct{}

	mu       sync.Mutex
	running  bool
	ticking  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Processor at construction time.
type Option func(*Processor)

func WithMetrics(m observability.Metrics) Option { return func(p *Processor) { p.metrics = m } }
func WithClock(c Clock) Option                   { return func(p *Processor) { p.clock = c } }
func WithRetryConfig(cfg mretry.Config) Option    { return func(p *Processor) { p.retryConfig = cfg } }
func WithMaxWorkers(n int) Option                 { return func(p *Processor) { p.maxWorkers = n } }
func WithBatchSize(n int) Option                  { return func(p *Processor) { p.batchSize = n } }

// WithMaxAttempts sets the attempt ceiling a FAILED row must reach before
// handleProcessingError routes it to DEAD. This is the authoritative
// threshold: it overrides whatever Message.MaxAttempts a row was enqueued
// with, since maxAttempts is an operator-tuned processor policy, not a
// per-message property the enqueuing side should control.
func WithMaxAttempts(n int) Option                { return func(p *Processor) { p.maxAttempts = n } }
func WithFixedDelay(d time.Duration) Option       { return func(p *Processor) { p.fixedDelay = d } }
func WithShutdownTimeout(d time.Duration) Option  { return func(p *Processor) { p.shutdownTimeout = d } }
func WithMirror(m Mirror) Option                  { return func(p *Processor) { p.mirror = m } }
func WithLeaser(l Leaser) Option                   { return func(p *Processor) { p.leaser = l } }

// NewProcessor constructs a Processor. It panics if logger, repo, or pub is
// nil — these are load-bearing collaborators the processor cannot run
// without, and failing fast at wiring time beats a nil-pointer panic deep
// inside the first tick.
func NewProcessor(logger mlog.Logger, repo outbox.Repository, pub Publisher, opts ...Option) *Processor {
	if logger == nil {
		panic("processor: logger must not be nil")
	}

	if repo == nil {
		panic("processor: repo must not be nil")
	}

	if pub == nil {
		panic("processor: pub must not be nil")
	}

	p := &Processor{
		logger:          logger,
		repo:            repo,
		pub:             pub,
		metrics:         observability.NoopMetrics{},
		clock:           time.Now,
		mirror:          noopMirror{},
		leaser:          noopLeaser{},
		retryConfig:     mretry.DefaultMetadataOutboxConfig(),
		maxWorkers:      defaultMaxWorkers,
		batchSize:       defaultBatchSize,
		maxAttempts:     defaultMaxAttempts,
		fixedDelay:      defaultFixedDelay,
		shutdownTimeout: defaultShutdownTimeout,
		wakeup:          make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Wake requests an out-of-cycle processOnce; used by the Postgres adapter's
// NOTIFY listener so newly-enqueued messages don't wait a full fixedDelay.
// Non-blocking: a pending wake coalesces with one already queued.
func (p *Processor) Wake() {
	select {
	case p.wakeup <- struct{}{}:
	default:
	}
}

// Start begins periodic processing on a background goroutine, ticking
// every fixedDelay and additionally on every Wake. A tick still running
// when the next one fires is skipped, not queued, so overlapping
// processOnce calls never run concurrently.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
}

func (p *Processor) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.fixedDelay)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.wakeup:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	p.mu.Lock()
	if p.ticking {
		p.mu.Unlock()
		return
	}

	p.ticking = true
	p.mu.Unlock()

	p.wg.Add(1)

	defer func() {
		p.mu.Lock()
		p.ticking = false
		p.mu.Unlock()
		p.wg.Done()
	}()

	if _, err := p.processOnce(ctx); err != nil {
		p.logger.Errorf("processor: tick failed: %v", err)
	}
}

// Stop halts the ticking loop and waits, bounded by shutdownTimeout, for
// any in-flight processOnce call to drain. Messages whose publish call has
// not completed are left PROCESSING; the Processor does not re-lease
// PROCESSING rows on a later Start.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}

	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		<-done
		p.wg.Wait()
		close(drained)
	}()

	timeout := time.NewTimer(p.shutdownTimeout)
	defer timeout.Stop()

	select {
	case <-drained:
		return nil
	case <-timeout.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processOnce runs one tick of the dispatch algorithm: fetch a candidate
// batch, lease each row with the atomic CAS primitive, publish the leased
// ones through a bounded worker pool, and route each outcome to
// MarkPublished, MarkFailed, or MarkDead.
func (p *Processor) processOnce(ctx context.Context) (BatchSummary, error) {
	start := p.clock()

	candidates, err := p.repo.FetchBatch(ctx, p.batchSize, start)
	if err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{}

	if len(candidates) == 0 {
		return summary, nil
	}

	sem := semaphore.NewWeighted(int64(p.maxWorkers))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		combined error
	)

	for _, msg := range candidates {
		leased, err := p.repo.MarkProcessing(ctx, msg.ID, p.clock())
		if err != nil {
			mu.Lock()
			combined = multierr.Append(combined, err)
			mu.Unlock()

			continue
		}

		if !leased {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()

			continue
		}

		mu.Lock()
		summary.Leased++
		mu.Unlock()

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			combined = multierr.Append(combined, err)
			mu.Unlock()

			continue
		}

		wg.Add(1)

		go func(msg *outbox.Message) {
			defer wg.Done()
			defer sem.Release(1)

			outcome := p.publishOne(ctx, msg)

			mu.Lock()
			defer mu.Unlock()

			switch outcome {
			case outcomePublished:
				summary.Published++
			case outcomeFailed:
				summary.Failed++
			case outcomeDead:
				summary.Dead++
			}
		}(msg)
	}

	wg.Wait()

	p.metrics.ObserveBatchDuration(ctx, len(candidates), p.clock().Sub(start).Seconds())

	return summary, combined
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeFailed
	outcomeDead
)

func (p *Processor) publishOne(ctx context.Context, msg *outbox.Message) outcome {
	publishStart := p.clock()

	release, err := p.leaser.Hold(ctx, msg.ID)
	if err != nil {
		p.logger.Errorf("processor: lease heartbeat(%s): %v", msg.ID, err)
	}

	err = p.pub.Publish(ctx, msg.Topic, msg.Payload, msg.Headers, msg.PartitionKey)
	release()

	p.metrics.ObservePublishLatency(ctx, msg.Topic, p.clock().Sub(publishStart).Seconds())

	if err == nil {
		now := p.clock()
		if markErr := p.repo.MarkPublished(ctx, msg.ID, now); markErr != nil {
			p.logger.Errorf("processor: markPublished(%s): %v", msg.ID, markErr)
		}

		p.metrics.IncPublished(ctx, msg.Topic)

		msg.Status = outbox.StatusPublished
		if mirrorErr := p.mirror.Record(ctx, msg, now); mirrorErr != nil {
			p.logger.Errorf("processor: audit mirror(%s): %v", msg.ID, mirrorErr)
		}

		return outcomePublished
	}

	return p.handleProcessingError(ctx, msg, err)
}

// handleProcessingError routes a failed publish to MarkDead once attempts
// are exhausted, else schedules a retry via MarkFailed with an
// exponential-backoff nextAttemptAt. The exhaustion threshold is the
// processor's own configured maxAttempts, not the row's stored
// Message.MaxAttempts — see WithMaxAttempts.
func (p *Processor) handleProcessingError(ctx context.Context, msg *outbox.Message, pubErr error) outcome {
	reason := outbox.SanitizeErrorMessage(pubErr.Error())
	nextAttempt := msg.Attempts + 1

	if nextAttempt >= p.maxAttempts {
		if err := p.repo.MarkDead(ctx, msg.ID, reason); err != nil {
			p.logger.Errorf("processor: markDead(%s): %v", msg.ID, err)
		}

		p.metrics.IncDead(ctx, msg.Topic)

		now := p.clock()
		msg.Status = outbox.StatusDead
		msg.LastError = reason

		if mirrorErr := p.mirror.Record(ctx, msg, now); mirrorErr != nil {
			p.logger.Errorf("processor: audit mirror(%s): %v", msg.ID, mirrorErr)
		}

		return outcomeDead
	}

	delay := p.calculateBackoff(msg.Attempts)
	nextAttemptAt := p.clock().Add(delay)

	if err := p.repo.MarkFailed(ctx, msg.ID, reason, nextAttemptAt); err != nil {
		p.logger.Errorf("processor: markFailed(%s): %v", msg.ID, err)
	}

	p.metrics.IncFailed(ctx, msg.Topic, reason)

	return outcomeFailed
}

// calculateBackoff delegates to the configured mretry.Config, seeding its
// jitter from outbox.SecureRandomFloat64 so concurrent processor instances
// don't retry in lockstep.
func (p *Processor) calculateBackoff(attempt int) time.Duration {
	return p.retryConfig.Backoff(attempt, outbox.SecureRandomFloat64)
}
