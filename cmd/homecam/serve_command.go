package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/homecam/internal/api"
	"github.com/kdimtricp/homecam/internal/home"
	"github.com/kdimtricp/homecam/internal/logging"
	"github.com/kdimtricp/homecam/internal/notify"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.API.Bind = bind
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			lock := flock.New(filepath.Join(cfg.Storage.DataDir, "homecam.lock"))
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another homecam instance is already running")
			}
			defer lock.Unlock()

			store, closer, err := home.OpenStore(cfg.Storage)
			if err != nil {
				return fmt.Errorf("open %s storage: %w", cfg.Storage.Type, err)
			}
			defer closer.Close()

			notifier := notify.NewAsync(notify.New(notify.Config{
				NtfyTopic:      cfg.Notifications.NtfyTopic,
				RequestTimeout: cfg.NotifyTimeout(),
				Logger:         logger,
			}), cfg.Notifications.QueueSize, logger)
			defer notifier.Close()

			svc, err := home.New(home.Deps{
				Config:   cfg,
				Store:    store,
				Notifier: notifier,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := svc.Load(runCtx); err != nil {
				return err
			}

			server := &http.Server{
				Addr:              cfg.API.Bind,
				Handler:           api.NewRouter(&api.App{Home: svc, Logger: logger}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				return svc.Run(gctx)
			})
			g.Go(func() error {
				logger.Info("api listening", "addr", cfg.API.Bind)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			logger.Info("homecam stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override the API listen address")
	return cmd
}
