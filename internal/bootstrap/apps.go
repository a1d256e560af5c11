package bootstrap

import (
	"context"
	"time"

	"github.com/marcusPrado02/outboxd/internal/outbox"
	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// processorRunner wraps *processor.Processor (Start spawns its own ticking
// goroutine and returns immediately) into the blocking App shape the
// Launcher expects.
type processorRunner struct {
	start func(ctx context.Context)
	stop  func(ctx context.Context) error
}

func (r processorRunner) Run(ctx context.Context) error {
	r.start(ctx)
	<-ctx.Done()

	return r.stop(context.Background())
}

// NewProcessorApp adapts a Processor's Start/Stop pair into an App.
func NewProcessorApp(start func(ctx context.Context), stop func(ctx context.Context) error) App {
	return processorRunner{start: start, stop: stop}
}

// listenerRunner adapts the Postgres NOTIFY listener's Start/Stop pair,
// which follows the same "Start spawns a goroutine and returns" shape as
// the Processor.
type listenerRunner struct {
	start func(ctx context.Context) error
	stop  func() error
}

func (r listenerRunner) Run(ctx context.Context) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	return r.stop()
}

// NewListenerApp adapts a NotifyListener's Start/Stop pair into an App.
func NewListenerApp(start func(ctx context.Context) error, stop func() error) App {
	return listenerRunner{start: start, stop: stop}
}

// retentionApp periodically purges published messages older than maxAge.
// Retention scheduling is left to the host: disabled by default, and wired
// here only when Config.RetentionEnabled is set.
type retentionApp struct {
	logger   mlog.Logger
	repo     outbox.Repository
	interval time.Duration
	maxAge   time.Duration
	clock    func() time.Time
}

// NewRetentionApp builds the App that drives
// Repository.DeletePublishedOlderThan on a fixed interval.
func NewRetentionApp(logger mlog.Logger, repo outbox.Repository, interval, maxAge time.Duration) App {
	return &retentionApp{logger: logger, repo: repo, interval: interval, maxAge: maxAge, clock: time.Now}
}

func (a *retentionApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := a.clock().Add(-a.maxAge)

			n, err := a.repo.DeletePublishedOlderThan(ctx, cutoff)
			if err != nil {
				a.logger.Errorf("bootstrap: retention sweep failed: %v", err)
				continue
			}

			if n > 0 {
				a.logger.Infof("bootstrap: retention sweep deleted %d published message(s) older than %s", n, cutoff)
			}
		}
	}
}
