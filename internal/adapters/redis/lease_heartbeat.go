package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/google/uuid"
)

const (
	// DefaultLeaseTTL bounds how long a crashed worker's lease survives
	// before the row becomes eligible for re-leasing by another worker.
	DefaultLeaseTTL = 30 * time.Second

	// DefaultExtendInterval is how often a live worker refreshes its lease,
	// comfortably inside DefaultLeaseTTL so a missed tick or two doesn't
	// lose the lock.
	DefaultExtendInterval = 10 * time.Second
)

// LeaseHeartbeat keeps a redsync mutex alive for the duration of one
// message's publish call. If a worker dies mid-publish, this mutex's TTL
// expires; the row's PROCESSING status does not revert, and FetchBatch and
// MarkProcessing never select PROCESSING rows, so such a row stays
// PROCESSING until an operator moves it.
type LeaseHeartbeat struct {
	rs            *redsync.Redsync
	ttl           time.Duration
	extendEvery   time.Duration
}

// NewLeaseHeartbeat builds a LeaseHeartbeat over pool.
func NewLeaseHeartbeat(pool redsyncredis.Pool) *LeaseHeartbeat {
	return &LeaseHeartbeat{
		rs:          redsync.New(pool),
		ttl:         DefaultLeaseTTL,
		extendEvery: DefaultExtendInterval,
	}
}

// Hold acquires a mutex keyed by messageID and starts a background
// goroutine extending it every extendEvery until the returned release
// func is called. Acquisition failure is returned but never treated as
// fatal by callers: the database CAS lease already granted exclusivity,
// this is a best-effort crash-recovery improvement on top.
func (h *LeaseHeartbeat) Hold(ctx context.Context, messageID uuid.UUID) (release func(), err error) {
	mutex := h.rs.NewMutex(
		fmt.Sprintf("outboxd:lease:%s", messageID),
		redsync.WithExpiry(h.ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return func() {}, err
	}

	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(h.extendEvery)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = mutex.ExtendContext(ctx)
			}
		}
	}()

	return func() {
		close(stop)
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}, nil
}
