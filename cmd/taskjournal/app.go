package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/c360studio/taskjournal/api"
	"github.com/c360studio/taskjournal/classify"
	"github.com/c360studio/taskjournal/config"
	"github.com/c360studio/taskjournal/feed"
	"github.com/c360studio/taskjournal/journal"
	"github.com/c360studio/taskjournal/llm"
	"github.com/c360studio/taskjournal/metrics"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/taskstore"
)

// App is the server process: it wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// completer overrides the registry-backed LLM client.
	completer classify.Completer

	metrics  *metrics.Metrics
	embedded *feed.EmbeddedServer
	bus      feed.Bus
	gateway  *storage.Gateway
	store    *taskstore.Store
	storeSub feed.Subscription
	journal  *journal.Service
	handler  *api.Handler
}

// AppOption configures an App.
type AppOption func(*App)

// withCompleter replaces the LLM client, for tests.
func withCompleter(c classify.Completer) AppOption {
	return func(a *App) {
		a.completer = c
	}
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger, opts ...AppOption) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start initializes every component. On error anything already started is
// shut down.
func (a *App) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.Shutdown()
		}
	}()

	a.metrics = metrics.New()

	if err := a.startFeed(); err != nil {
		return fmt.Errorf("start change feed: %w", err)
	}

	db, err := storage.Open(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	a.gateway = storage.NewGateway(db,
		storage.WithBus(a.bus),
		storage.WithLogger(a.logger),
		storage.WithMetrics(a.metrics))
	if err := a.gateway.Migrate(ctx); err != nil {
		return err
	}

	classifier, err := a.newClassifier()
	if err != nil {
		return err
	}

	// Attach before loading so no event is missed in between.
	a.store = taskstore.New(taskstore.WithLogger(a.logger))
	if a.storeSub, err = a.store.Attach(a.gateway); err != nil {
		return fmt.Errorf("attach task store: %w", err)
	}
	if err := a.store.Load(ctx, a.gateway); err != nil {
		return err
	}

	a.journal, err = journal.NewService(classifier, a.gateway,
		journal.WithStore(a.store),
		journal.WithMetrics(a.metrics),
		journal.WithLogger(a.logger))
	if err != nil {
		return err
	}

	opts := append(a.cfg.Server.Options(),
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
		api.WithWorkingSet(a.store))
	a.handler = api.New(a.journal, a.gateway, opts...)

	a.logger.Info("Components initialized",
		"database", a.cfg.Database.Driver,
		"feed", a.cfg.Feed.Mode,
		"tasks", a.store.Len())
	return nil
}

func (a *App) startFeed() error {
	natsOpts := []feed.NATSOption{feed.WithNATSLogger(a.logger)}

	switch a.cfg.Feed.Mode {
	case config.FeedNATS:
		a.logger.Info("Connecting to NATS", "url", a.cfg.Feed.URL)
		bus, err := feed.ConnectNATS(a.cfg.Feed.URL, a.cfg.Feed.Prefix, natsOpts...)
		if err != nil {
			return err
		}
		a.bus = bus

	case config.FeedEmbedded:
		es, err := feed.StartEmbedded(a.cfg.Feed.Port)
		if err != nil {
			return err
		}
		a.embedded = es
		a.logger.Info("Embedded NATS server started", "url", es.ClientURL())

		bus, err := feed.ConnectNATS(es.ClientURL(), a.cfg.Feed.Prefix, natsOpts...)
		if err != nil {
			return err
		}
		a.bus = bus

	default:
		a.bus = feed.NewMemoryBus()
	}
	return nil
}

func (a *App) newClassifier() (journal.Classifier, error) {
	completer := a.completer
	if completer == nil {
		completer = llm.NewClient(a.cfg.Registry(), llm.WithLogger(a.logger), llm.WithRetryConfig(llm.SingleAttempt()))
	}
	svc, err := classify.NewService(completer, a.cfg.Classification, classify.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// Handler returns the instrumented HTTP handler. Start must have succeeded.
func (a *App) Handler() http.Handler {
	return a.handler.Routes()
}

// Serve runs the HTTP server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	return api.Serve(ctx, a.cfg.Server, a.Handler(), a.logger)
}

// ServeListener runs the HTTP server on ln until ctx is done.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	return api.ServeListener(ctx, ln, a.cfg.Server, a.Handler(), a.logger)
}

// Resync reloads the task store from the database every interval until ctx
// is done. A failed reload keeps the current set.
func (a *App) Resync(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.store.Load(ctx, a.gateway); err != nil {
				a.logger.Warn("Task store resync failed", "error", err)
			}
		}
	}
}

// Shutdown stops all components in reverse start order. It is safe to call
// on a partially started App.
func (a *App) Shutdown() {
	if a.storeSub != nil {
		a.storeSub.Cancel()
		a.storeSub = nil
	}
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			a.logger.Warn("Close database", "error", err)
		}
		a.gateway = nil
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("Close change feed", "error", err)
		}
		a.bus = nil
	}
	if a.embedded != nil {
		a.embedded.Shutdown()
		a.embedded = nil
	}
}
