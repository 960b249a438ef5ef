package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/on-the-ground/cliser/connection/kvcache"
	"github.com/on-the-ground/cliser/connection/memdb"
	"github.com/on-the-ground/cliser/connection/redisrelay"
	"github.com/on-the-ground/cliser/connection/remote"
	"github.com/on-the-ground/cliser/connection/sqlite"
	"github.com/on-the-ground/cliser/effects/collection"
	effectlog "github.com/on-the-ground/cliser/effects/log"
	"github.com/on-the-ground/cliser/effects/store"
	"github.com/on-the-ground/cliser/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured backend over HTTP",
		Example: `  cliserd serve --listen :8080
  CLISER_STORAGE_KIND=sqlite CLISER_STORAGE_PATH=/var/lib/cliser.db cliserd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if rootOpts.Verbose {
				cfg.LogLevel = "debug"
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) (err error) {
	logger, err := effectlog.NewProduction(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer effectlog.Sync(logger)

	backend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}

	// the store closes the backend and relays notifications into its emitter
	st := store.New(
		store.WithDefaultConnection(backend),
		store.WithLogger(logger),
		store.WithWorkers(cfg.Workers.BufferSize, cfg.Workers.NumWorkers),
	)
	defer func() {
		err = multierr.Append(err, st.Close())
	}()
	st.Subscribe(func(_ context.Context, payload any) {
		if change, ok := payload.(collection.Change); ok {
			logger.Debug("collection changed",
				zap.String("collection", change.Collection.Name()),
				zap.String("action", change.Action),
			)
		}
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           remote.NewHandler(&notifying{conn: backend, sink: st}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("listen", cfg.Listen), zap.String("storage", cfg.Storage.Kind))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBackend builds the served connection: the storage, the optional cache
// for its storage id, and the optional redis relay around both.
func openBackend(cfg config.Config, logger *zap.Logger) (collection.Connection, error) {
	var (
		backend collection.Connection
		err     error
	)
	switch cfg.Storage.Kind {
	case config.StorageSQLite:
		backend, err = sqlite.Open(cfg.Storage.Path)
	default:
		backend, err = memdb.New()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Kind, err)
	}

	if cfg.Cache.Size > 0 {
		cache, err := kvcache.New(cfg.Cache.Size)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("open cache: %w", err), closeConnection(backend))
		}
		backend = &router{
			routes:   map[string]collection.Connection{cfg.Cache.ID: cache},
			fallback: backend,
		}
	}

	if cfg.Redis.Addr != "" {
		backend = redisrelay.New(backend,
			redisrelay.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
			redisrelay.WithChannel(cfg.Redis.Channel),
			redisrelay.WithLogger(logger),
		)
	}
	return backend, nil
}
