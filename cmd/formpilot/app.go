package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"formpilot/pkg/browser"
	"formpilot/pkg/config"
	"formpilot/pkg/eventlog"
	"formpilot/pkg/logx"
	"formpilot/pkg/metrics"
	"formpilot/pkg/persistence"
	"formpilot/pkg/scheduler"
	"formpilot/pkg/session"
	"formpilot/pkg/traversal"
)

// shutdownTimeout bounds how long shutdown waits for in-flight work.
const shutdownTimeout = 30 * time.Second

// storage is a backend serving both sessions and jobs.
type storage interface {
	session.Store
	scheduler.Store
}

// app holds everything both serve and fill need.
type app struct {
	cfg      *config.Config
	recorder metrics.Recorder
	registry *prometheus.Registry // nil when metrics are disabled
	opener   *browser.Opener
	sessions *session.Manager
	engine   *traversal.Engine
	bridge   *scheduler.Bridge
	jobs     *scheduler.Scheduler
	closers  []io.Closer
	logger   *logx.Logger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("formpilot"),
	}
	if cfg.Metrics.Enabled {
		p := metrics.NewPrometheusRecorder()
		a.recorder = p
		a.registry = p.Registry()
	}

	store, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	a.opener = browser.NewOpener(cfg.Browser, browser.WithObserver(a.recorder))
	a.sessions = session.NewManager(store)
	a.engine = traversal.NewEngine(a.opener, a.recorder)
	a.engine.SetMaxQuestions(cfg.Traversal.MaxQuestions)
	if dir := cfg.Traversal.AuditDir; dir != "" {
		w, err := eventlog.NewWriter(dir)
		if err != nil {
			a.closeStorage()
			return nil, err
		}
		a.closers = append(a.closers, w)
		a.engine.SetAuditLog(w)
		a.logger.Info("recording submissions in %s", dir)
	}
	a.bridge = scheduler.NewBridge(a.sessions, a.engine, a.recorder)
	a.jobs = scheduler.New(store, a.bridge)
	return a, nil
}

func (a *app) openStorage(ctx context.Context) (storage, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case config.StorageMemory:
		a.logger.Warn("using in-memory storage, sessions and jobs are lost on restart")
		return memoryStorage{session.NewMemoryStore(), scheduler.NewMemoryStore()}, nil
	case config.StorageSQLite:
		s, err := persistence.OpenSQLite(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		a.logger.Info("storing sessions and jobs in %s", sc.SQLitePath)
		return s, nil
	case config.StorageRedis:
		r, err := persistence.OpenRedis(ctx, sc.RedisURL, sc.KeyPrefix, sc.SessionTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r)
		a.logger.Info("storing sessions and jobs in redis under %q", sc.KeyPrefix)
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalidConfig, sc.Backend)
	}
}

// Close stops the scheduler, releases every open form and closes the browser and storage.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.jobs.Close()
	var errs []error
	if err := a.sessions.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to release sessions: %w", err))
	}
	if err := a.opener.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// closeStorage releases what newApp opened before it failed.
func (a *app) closeStorage() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

type (
	sessionMemory = session.MemoryStore
	jobMemory     = scheduler.MemoryStore
)

// memoryStorage pairs the in-memory session and job stores.
type memoryStorage struct {
	*sessionMemory
	*jobMemory
}
