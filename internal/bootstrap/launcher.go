package bootstrap

import (
	"context"
	"sync"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// App is anything the Launcher runs for the lifetime of the process; Run
// blocks until ctx is canceled or the component fails unrecoverably.
type App interface {
	Run(ctx context.Context) error
}

// LauncherOption configures a Launcher at construction time.
type LauncherOption func(l *Launcher)

// WithLogger attaches logger to the Launcher.
func WithLogger(logger mlog.Logger) LauncherOption {
	return func(l *Launcher) { l.logger = logger }
}

// Launcher runs a named set of Apps concurrently and waits for all of them
// to return. Unlike a fire-and-forget runner, it propagates a shared
// context so canceling ctx stops every App in one shot.
type Launcher struct {
	logger mlog.Logger
	apps   map[string]App
	wg     sync.WaitGroup
}

// NewLauncher constructs a Launcher.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		logger: &mlog.NoneLogger{},
		apps:   make(map[string]App),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Add registers an App under name; Run starts it once Run is called.
func (l *Launcher) Add(name string, app App) *Launcher {
	l.apps[name] = app
	return l
}

// Run starts every registered App in its own goroutine and blocks until all
// of them return, which happens when ctx is canceled.
func (l *Launcher) Run(ctx context.Context) {
	l.logger.Infof("bootstrap: starting %d app(s)", len(l.apps))

	l.wg.Add(len(l.apps))

	for name, app := range l.apps {
		go func(name string, app App) {
			defer l.wg.Done()

			l.logger.Infof("bootstrap: app %q starting", name)

			if err := app.Run(ctx); err != nil && ctx.Err() == nil {
				l.logger.Errorf("bootstrap: app %q failed: %v", name, err)
			}

			l.logger.Infof("bootstrap: app %q finished", name)
		}(name, app)
	}

	l.wg.Wait()

	l.logger.Info("bootstrap: all apps terminated")
}
