// Package app wires the daemon together: config, logging, storage, the
// delivery pipeline, the scheduler with its built-in jobs, and the admin
// HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/jobs"
	"flowdesk/internal/mailer"
	"flowdesk/internal/queue"
	"flowdesk/internal/reminder"
	"flowdesk/internal/scheduler"
	"flowdesk/internal/server"
	"flowdesk/internal/store"
	"flowdesk/pkg/logx"
)

type App struct {
	cfgPath string
	version string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store  *store.SQLiteStore
	email  mailer.Channel
	disp   *dispatch.Dispatcher
	proc   *queue.Processor
	engine *reminder.Engine
	sched  *scheduler.Service

	httpSrv *http.Server

	cancel context.CancelFunc
	doneCh chan struct{}
}

func New(cfgPath, version string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return c.Validate()
	})

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.StoragePath(),
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	email, err := mailer.New(cfg.Mailer, log.With(logx.String("comp", "mailer")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	disp := dispatch.New(st, email, bus, log)
	proc := queue.New(st, disp, queue.Options{
		BatchSize:   cfg.QueueBatchSize(),
		MaxAttempts: cfg.MaxAttempts(),
		RetryStep:   cfg.RetryStep(),
	}, log)

	loc := time.Local
	if tz := cfg.Scheduler.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	engine := reminder.New(st, disp, reminder.Options{
		DedupWindow:         cfg.DedupWindow(),
		ComplianceThreshold: cfg.ComplianceThreshold(),
		Location:            loc,
	}, log)

	defaultTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 5*time.Minute)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		Enabled:        cfg.SchedulerEnabled(),
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defaultTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
		RetryMax:       1,
	}, bus, log)

	if err := jobs.Register(jobs.Deps{
		Scheduler:  sched,
		Queue:      proc,
		Engine:     engine,
		Dispatcher: disp,
		Log:        log.With(logx.String("comp", "jobs")),
	}, cfg); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		version: version,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		store:   st,
		email:   email,
		disp:    disp,
		proc:    proc,
		engine:  engine,
		sched:   sched,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.doneCh = make(chan struct{})

	cfg := a.cfgm.Get()

	if cfg.SchedulerEnabled() {
		a.sched.Start(runCtx)
	} else {
		a.log.Info("scheduler disabled by config")
	}

	if cfg.ServerEnabled() {
		handler := server.New(cfg.Server, server.Deps{
			Dispatcher: a.disp,
			Scheduler:  a.sched,
			Store:      a.store,
			Bus:        a.bus,
			StartedAt:  time.Now(),
			Version:    a.version,
		}, a.log.With(logx.String("comp", "http")))
		a.httpSrv = &http.Server{
			Addr:              cfg.ServerAddr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.log.Info("admin API listening", logx.String("addr", cfg.ServerAddr()))
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("admin API failed", logx.Err(err))
			}
		}()
	}

	go a.watchConfig(runCtx)
	return nil
}

// watchConfig follows the config file and applies hot-reloadable settings:
// log level and sinks, scheduler timezone, and the enabled flag. Storage
// and mailer changes need a restart.
func (a *App) watchConfig(ctx context.Context) {
	defer close(a.doneCh)

	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(ctx, cfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	defaultTimeout, _ := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 5*time.Minute)
	a.sched.Apply(scheduler.Config{
		Enabled:        cfg.SchedulerEnabled(),
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defaultTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
		RetryMax:       1,
	})
	if cfg.SchedulerEnabled() {
		a.sched.Start(ctx)
	} else {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.httpSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		_ = a.httpSrv.Shutdown(shutCtx)
		cancel()
	}
	a.sched.Stop(ctx)
	if a.doneCh != nil {
		select {
		case <-a.doneCh:
		case <-ctx.Done():
		}
	}
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
