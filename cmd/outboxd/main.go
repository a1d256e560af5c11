// Command outboxd runs the transactional outbox engine as a standalone
// process: it loads configuration from the environment, wires storage,
// broker, and observability collaborators, and drains the outbox until
// terminated.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcusPrado02/outboxd/internal/bootstrap"
	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

func main() {
	logger := mlog.NewZapLogger()
	defer logger.Sync() //nolint:errcheck

	cfg, err := bootstrap.LoadConfig(logger)
	if err != nil {
		logger.Fatalf("outboxd: config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := bootstrap.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("outboxd: wiring: %v", err)
	}

	runtime.Launcher.Run(ctx)
}
