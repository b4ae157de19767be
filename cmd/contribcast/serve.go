package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/config"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/server"
)

func newServeCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configViper)
		},
	}
}

func runServer(ctx context.Context, configViper *viper.Viper) error {
	appConfig, err := config.Load(configViper)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(signalCtx, appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	if appConfig.SeedEnabled {
		if _, err := app.store.Seed(signalCtx); err != nil {
			return err
		}
	}

	dispatcher := server.NewRealtimeDispatcher()
	if app.files != nil {
		err := app.files.Watch(signalCtx, appConfig.StorageKey, func() {
			dispatcher.Publish(server.RealtimeMessage{EventType: server.RealtimeEventCollectionChanged})
		})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:          app.store,
		Logger:         logger,
		Realtime:       dispatcher,
		Metrics:        app.collector,
		MetricsPath:    appConfig.MetricsPath,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
		// Event streams end with the process context instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("storage_driver", appConfig.StorageDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
