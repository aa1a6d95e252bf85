package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/app"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/clock"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/config"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/events"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/policy"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/storage/memory"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/storage/postgres"
	transporthttp "github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/transport/http"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/migrations"
)

const (
	startupTimeout = 5 * time.Second
	eventStream    = "booking:events"
	streamMaxLen   = 100000
)

func main() {
	v, cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	snap, err := policy.Load(v)
	if err != nil {
		logger.Error("invalid policy", "error", err)
		os.Exit(2)
	}
	holder := policy.NewHolder(snap)
	if cfg.File != "" {
		policy.Watch(v, holder, logger)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		ledger    app.Ledger
		resources app.ResourceRepository
		ping      func(context.Context) error
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, reservations are lost on restart")
		m := memory.New(memory.WithLockTimeout(cfg.LockTimeout))
		ledger, resources = m, m
	default:
		pool, err := openPool(stopCtx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		ledger = postgres.NewReservationRepository(pool, postgres.WithLockWait(cfg.LockTimeout))
		resources = postgres.NewResourceRepository(pool)
		ping = pool.Ping
	}

	dispatcher, closeEvents, err := newDispatcher(cfg, logger)
	if err != nil {
		logger.Error("event pipeline unavailable", "error", err)
		os.Exit(1)
	}
	defer closeEvents()

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	var dispatchWG sync.WaitGroup
	dispatchWG.Add(1)
	go func() {
		defer dispatchWG.Done()
		dispatcher.Run(dispatchCtx)
	}()

	scheduler := cron.New()
	if _, err := events.ScheduleRedelivery(scheduler, dispatcher, cfg.RedeliverySchedule, logger); err != nil {
		logger.Error("invalid redelivery schedule", "schedule", cfg.RedeliverySchedule, "error", err)
		os.Exit(2)
	}
	scheduler.Start()

	clk := clock.NewSystem()
	bookings := app.NewBookingService(ledger, clk, holder,
		app.WithEventSink(dispatcher),
		app.WithLogger(logger),
		app.WithRetry(cfg.RetryAttempts, cfg.RetryBackoff),
	)
	queries := app.NewQueryService(ledger)

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: transporthttp.NewRouter(transporthttp.RouterConfig{
			Bookings:     bookings,
			Reservations: queries,
			Occupancy:    queries,
			Resources:    app.NewResourceService(resources, clk),
			JWTSecret:    []byte(cfg.JWTSecret),
			CORSOrigins:  cfg.CORSOrigins,
			Logger:       logger,
			Ping:         ping,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "addr", cfg.Addr, "store", cfg.Store, "policy", holder.Load().Config())

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "error", err)
	}

	<-scheduler.Stop().Done()
	stopDispatch()
	dispatchWG.Wait()
	if n := dispatcher.Pending(); n > 0 {
		logger.Warn("undelivered events dropped at shutdown", "pending", n)
	}
	logger.Info("server stopped")
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, nil
}

// newDispatcher builds the event pipeline. Without Redis, events are only
// logged and sequence numbers are local to the process.
func newDispatcher(cfg config.Config, logger *slog.Logger) (*events.Dispatcher, func(), error) {
	if cfg.RedisURL == "" {
		d := events.NewDispatcher(nil, logger)
		d.Subscribe(events.NewLogSubscriber(logger))
		return d, func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	tasks := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opt.Addr,
		Username: opt.Username,
		Password: opt.Password,
		DB:       opt.DB,
	})

	d := events.NewDispatcher(events.NewRedisSequencer(rdb, ""), logger)
	d.Subscribe(events.NewLogSubscriber(logger))
	d.Subscribe(events.NewRedisStreamSubscriber(rdb, eventStream, streamMaxLen))
	d.Subscribe(events.NewTaskSubscriber(tasks, cfg.EventQueue))

	closeFn := func() {
		_ = tasks.Close()
		_ = rdb.Close()
	}
	return d, closeFn, nil
}
