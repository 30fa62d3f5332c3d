package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tracewire/tracewire/internal/correlate"
	"github.com/tracewire/tracewire/internal/directory"
	"github.com/tracewire/tracewire/internal/ledger"
	"github.com/tracewire/tracewire/internal/resilience"
	"github.com/tracewire/tracewire/internal/store"
	"github.com/tracewire/tracewire/internal/tracker"
	"github.com/tracewire/tracewire/pkg/chatgate"
)

// trackerEnv holds the initialized store, transport and tracker shared
// by the search/batch/serve commands.
type trackerEnv struct {
	Store   store.Store
	Ledger  *ledger.Ledger
	Tracker *tracker.Tracker

	transport  *chatgate.Client
	stopListen context.CancelFunc
}

// Close releases resources held by the tracker environment.
func (e *trackerEnv) Close() {
	if e.stopListen != nil {
		e.stopListen()
	}
	if e.transport != nil {
		if err := e.transport.Disconnect(); err != nil {
			zap.L().Warn("transport disconnect failed", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initTracker sets up the store, connects the chat gateway, starts the
// reply listener and builds the tracker. Callers should defer
// env.Close().
func initTracker(ctx context.Context, mode string) (*trackerEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	transport := chatgate.New(cfg.Gateway.URL, chatgate.WithToken(cfg.Gateway.Token))
	if err := transport.Connect(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	retry := resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger("gateway send")
	corr := correlate.New(transport, dir,
		correlate.WithPollInterval(cfg.Tracker.PollInterval()),
		correlate.WithRetryConfig(retry),
	)

	listenCtx, stopListen := context.WithCancel(context.Background())
	go corr.Listen(listenCtx)

	l := ledger.New(st)
	tr := tracker.New(st, l, corr, dir,
		tracker.WithQueryTimeout(cfg.Tracker.QueryTimeout()),
		tracker.WithQueryRate(cfg.Tracker.QueryInterval()),
		tracker.WithJitter(cfg.Tracker.Jitter()),
		tracker.WithBreakerConfig(resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout(),
		}),
	)

	zap.L().Info("tracker initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("gateway", cfg.Gateway.URL),
		zap.Int("bots", len(dir.Entries())),
	)

	return &trackerEnv{
		Store:      st,
		Ledger:     l,
		Tracker:    tr,
		transport:  transport,
		stopListen: stopListen,
	}, nil
}
