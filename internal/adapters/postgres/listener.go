package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Waker is the subset of processor.Processor that the NOTIFY listener needs;
// satisfied by *processor.Processor without importing that package here.
type Waker interface {
	Wake()
}

// NotifyListener bridges Postgres's LISTEN/NOTIFY on the outbox_enqueued
// channel (fired by the trigger in 000001_create_outbox_message.up.sql)
// to a Processor's Wake, so a freshly appended message doesn't sit idle
// for a full fixedDelay tick.
type NotifyListener struct {
	DSN    string
	Logger mlog.Logger
	Waker  Waker

	listener *pq.Listener
}

const (
	listenerMinReconnectInterval = 10 * time.Second
	listenerMaxReconnectInterval = time.Minute
)

// Start opens the LISTEN connection and runs until ctx is done.
func (n *NotifyListener) Start(ctx context.Context) error {
	eventCallback := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			n.Logger.Error("postgres: notify listener event: ", err)
		}
	}

	n.listener = pq.NewListener(n.DSN, listenerMinReconnectInterval, listenerMaxReconnectInterval, eventCallback)

	if err := n.listener.Listen("outbox_enqueued"); err != nil {
		return err
	}

	go n.run(ctx)

	return nil
}

func (n *NotifyListener) run(ctx context.Context) {
	defer n.listener.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case notification, ok := <-n.listener.Notify:
			if !ok {
				return
			}

			if notification != nil {
				n.Waker.Wake()
			}
		case <-time.After(90 * time.Second):
			// pq recommends a periodic Ping to detect a dead connection that
			// hasn't yet triggered the reconnect logic above.
			go func() { _ = n.listener.Ping() }()
		}
	}
}

// Stop closes the underlying LISTEN connection.
func (n *NotifyListener) Stop() error {
	if n.listener == nil {
		return nil
	}

	return n.listener.Close()
}
