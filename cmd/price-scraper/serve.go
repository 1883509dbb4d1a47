package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaidolaptops/price-scraper/internal/api"
	"github.com/kaidolaptops/price-scraper/internal/events"
	"github.com/kaidolaptops/price-scraper/internal/jobs"
	"github.com/kaidolaptops/price-scraper/internal/pricing"
	"github.com/kaidolaptops/price-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the price HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides SERVER_PORT)")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		recorders pricing.Recorders
		history   api.HistoryStore
	)

	// Database connection
	if a.cfg.Database.Enabled() {
		db, err := storage.New(ctx, storage.Config{
			Host:     a.cfg.Database.Host,
			Port:     a.cfg.Database.Port,
			User:     a.cfg.Database.User,
			Password: a.cfg.Database.Password,
			Database: a.cfg.Database.Name,
			MaxConns: a.cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		store := storage.NewPriceStore(db)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		recorders = append(recorders, store)
		history = store
		a.logger.Info("price history enabled", "host", a.cfg.Database.Host, "database", a.cfg.Database.Name)
	}

	// Redis stream for price events
	if a.cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		recorders = append(recorders, events.NewPublisher(redisClient, a.cfg.Redis.Stream, a.logger))
		a.logger.Info("price events enabled", "addr", a.cfg.Redis.Addr, "stream", a.cfg.Redis.Stream)
	}

	fetcher, stop, err := a.newFetcher()
	if err != nil {
		return err
	}
	defer stop()

	var recorder pricing.Recorder
	if len(recorders) > 0 {
		recorder = recorders
	}

	// Handlers and the worker run on workCtx; it is cancelled only once
	// draining is over.
	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	jobManager := jobs.NewManager(fetcher, recorder, a.logger)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		jobManager.StartWorker(workCtx)
	}()

	requestTimeout := api.BatchTimeout(2*a.cfg.Browser.Timeout + a.cfg.Fetch.SettleDelay)

	handlers := api.NewHandlers(fetcher, jobManager, history, recorder, a.logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RequestTimeout: requestTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return workCtx },
	}

	// Graceful shutdown
	drained := make(chan error, 1)
	go func() {
		sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stopSignals()
		<-sigCtx.Done()

		a.logger.Info("shutting down server...")
		drained <- drain(server, jobManager, workerDone, cancelWork, a.cfg.Server.ShutdownTimeout, a.logger)
	}()

	a.logger.Info("server starting", "port", a.cfg.Server.Port, "request_timeout", requestTimeout)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	// ListenAndServe returns as soon as Shutdown starts; the browser, Redis
	// and the pool must outlive the drain.
	if err := <-drained; err != nil {
		a.logger.Error("server shutdown failed", "error", err)
	}

	a.logger.Info("server stopped")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain stops the job queue and the server, then waits for in-flight
// requests and the job worker. Work still running after timeout is
// cancelled through cancelWork.
func drain(srv shutdowner, queue io.Closer, workerDone <-chan struct{}, cancelWork context.CancelFunc, timeout time.Duration, logger *slog.Logger) error {
	defer cancelWork()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := queue.Close(); err != nil {
		logger.Warn("failed to close job queue", "error", err)
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		cancelWork()
	}

	select {
	case <-workerDone:
	case <-ctx.Done():
		logger.Warn("job worker still busy at shutdown timeout, cancelling")
		cancelWork()
		<-workerDone
	}

	return err
}
