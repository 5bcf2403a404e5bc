package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fluxorio/symphony/pkg/admin"
	"github.com/fluxorio/symphony/pkg/config"
	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/db"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
	"github.com/fluxorio/symphony/pkg/observability/tracing"
	"github.com/fluxorio/symphony/pkg/page"
	"github.com/fluxorio/symphony/pkg/sink"
	"github.com/fluxorio/symphony/pkg/tcp"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

const adminShutdownTimeout = 5 * time.Second

// app is the wired process: listener -> thread pool -> sinks, plus admin.
type app struct {
	cfg    *config.Config
	logger core.Logger

	pool     *threadpool.ThreadPool
	listener *tcp.Listener
	admin    *admin.Server

	// closers release sinks and exporters after the pool has drained,
	// in reverse order of creation.
	closers []func(context.Context) error
}

// newApp wires every component. On error, whatever was already built is
// released before returning.
func newApp(ctx context.Context, cfg *config.Config, logger core.Logger, out io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if a.pool != nil {
				a.pool.Close()
			}
			a.close(context.Background())
		}
	}()

	tp, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Global:      true,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	metrics := prometheus.GetMetrics()

	var handlers []threadpool.ResultHandler
	if cfg.Log.Results {
		handlers = append(handlers, sink.NewLog(out))
	}

	results, err := a.openAudit(ctx)
	if err != nil {
		return nil, err
	}
	if results != nil {
		handlers = append(handlers, results)
	}

	if cfg.NATS.URL != "" {
		nc, err := sink.ConnectNATS(cfg.NATS.URL, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		publisher, err := sink.NewNATS(nc, cfg.NATS.Subject)
		if err != nil {
			nc.Close()
			return nil, err
		}
		a.closers = append(a.closers, func(ctx context.Context) error {
			defer nc.Close()
			return publisher.Flush(ctx)
		})
		handlers = append(handlers, publisher)
		logger.Infof("publishing results to nats subject %s", cfg.NATS.Subject)
	}

	var tail *admin.Tail
	if cfg.Admin.Enabled {
		tail = admin.NewTail(admin.DefaultTailBuffer, logger)
		handlers = append(handlers, tail)
	}

	policy, err := threadpool.ParseQueuePolicy(cfg.Pool.QueuePolicy)
	if err != nil {
		return nil, err
	}
	a.pool, err = threadpool.New(cfg.Pool.Workers,
		threadpool.WithContext(context.WithoutCancel(ctx)),
		threadpool.WithLogger(logger),
		threadpool.WithMetrics(metrics),
		threadpool.WithTracerProvider(tp),
		threadpool.WithResultHandlers(handlers...),
		threadpool.WithWatchDelay(cfg.Pool.WatchDelayDuration()),
		threadpool.WithQueueCapacity(cfg.Pool.QueueCapacity),
		threadpool.WithResultQueueCapacity(cfg.Pool.ResultQueueCapacity),
		threadpool.WithQueuePolicy(policy),
		threadpool.WithShutdownTimeout(cfg.Pool.ShutdownTimeoutDuration()),
	)
	if err != nil {
		return nil, err
	}

	pages, err := page.LoadPages(cfg.Page.TemplateDir)
	if err != nil {
		return nil, err
	}
	a.listener = tcp.NewListener(tcp.Config{
		Addr:       cfg.Listener.Addr,
		MaxConns:   cfg.Listener.MaxConns,
		ServeLimit: cfg.Listener.ServeLimit,
		Logger:     logger,
		Metrics:    metrics,
	}, a.pool, page.Factory(pages, page.Options{
		SleepDelay:   cfg.Page.SleepDelayDuration(),
		ReadTimeout:  cfg.Listener.ReadTimeoutDuration(),
		WriteTimeout: cfg.Listener.WriteTimeoutDuration(),
	}))

	if cfg.Admin.Enabled {
		a.admin = admin.NewServer(admin.Config{
			Addr:     cfg.Admin.Addr,
			Pool:     a.pool,
			Listener: a.listener,
			Results:  results,
			Tail:     tail,
			Gatherer: prometheus.DefaultRegistry,
			Auth:     admin.NewAuth(cfg.Admin.JWTSecret, cfg.Admin.APIKeyHash, logger),
			Logger:   logger,
		})
	}
	return a, nil
}

// auditSink is a result handler whose rows can be read back.
type auditSink interface {
	threadpool.ResultHandler
	admin.ResultLookup
}

// openAudit connects the configured audit store and creates its table.
func (a *app) openAudit(ctx context.Context) (auditSink, error) {
	cfg := a.cfg.Audit
	switch cfg.Driver {
	case "":
		return nil, nil
	case "pgx":
		pool, err := sink.ConnectPgx(ctx, cfg.DSN, int32(cfg.MaxOpenConns))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		s, err := sink.NewPgx(pool, cfg.Table)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Infof("auditing results to %s via pgx", cfg.Table)
		return s, nil
	default:
		poolCfg := db.DefaultPoolConfig(cfg.DSN, cfg.Driver)
		if cfg.Driver != db.DriverSQLite && cfg.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = cfg.MaxOpenConns
			poolCfg.MaxIdleConns = min(poolCfg.MaxIdleConns, cfg.MaxOpenConns)
		}
		pool, err := db.NewPool(poolCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error {
			return pool.Close()
		})
		s, err := sink.NewSQL(pool, cfg.Table)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Infof("auditing results to %s via %s", cfg.Table, cfg.Driver)
		return s, nil
	}
}

// run serves until ctx is cancelled or the listener stops on its own, then
// drains the pool and releases everything.
func (a *app) run(ctx context.Context) error {
	listenErrCh := make(chan error, 1)
	go func() { listenErrCh <- a.listener.Start() }()

	adminErrCh := make(chan error, 1)
	if a.admin != nil {
		go func() { adminErrCh <- a.admin.Start() }()
	}

	var errs []error
	listenerDone := false
	select {
	case <-ctx.Done():
		a.logger.Info("received signal, no longer accepting connections")
	case err := <-listenErrCh:
		listenerDone = true
		if err != nil {
			errs = append(errs, err)
		}
	case err := <-adminErrCh:
		errs = append(errs, err)
	}
	if !listenerDone {
		if err := a.listener.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop listener: %w", err))
		}
	}

	// Closing the pool also releases a hand-off waiting on a full queue, so
	// the listener is only awaited afterwards.
	a.logger.Info("shutting down")
	if err := a.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if !listenerDone {
		if err := <-listenErrCh; err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.close(context.Background()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close stops the admin server and runs the closers in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.admin != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, adminShutdownTimeout)
		if err := a.admin.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		closeCtx, cancel := context.WithTimeout(ctx, adminShutdownTimeout)
		if err := a.closers[i](closeCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	a.closers = nil
	return errors.Join(errs...)
}
