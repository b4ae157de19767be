package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/config"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/database"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/storage/dynamo"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/storage/filestore"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/storage/memory"
)

const metricsNamespace = "contribcast"

// application bundles the store with the resources backing it.
type application struct {
	store     *contributions.Store
	files     *filestore.Storage
	collector *metrics.Collector
	closers   []func() error
}

func (a *application) Close() error {
	var errs []error
	for index := len(a.closers) - 1; index >= 0; index-- {
		if err := a.closers[index](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newApplication(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*application, error) {
	app := &application{}

	storage, err := app.openStorage(ctx, cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	idProvider, err := contributions.NewIDProvider(cfg.IDGenerator)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var recorder contributions.Recorder
	if cfg.MetricsEnabled {
		app.collector = metrics.NewCollector(metricsNamespace)
		recorder = app.collector
	}

	store, err := contributions.NewStore(contributions.StoreConfig{
		Storage:    storage,
		Key:        cfg.StorageKey,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
		Recorder:   recorder,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.store = store
	return app, nil
}

func (a *application) openStorage(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (contributions.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		return memory.New(), nil
	case config.StorageDriverFile:
		files, err := filestore.New(cfg.FileDir, logger)
		if err != nil {
			return nil, err
		}
		a.files = files
		return files, nil
	case config.StorageDriverSQLite:
		db, closeDB, err := database.OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeDB)
		return database.NewSlotStorage(db, time.Now)
	case config.StorageDriverDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.Config{
			Table:    cfg.DynamoTable,
			Region:   cfg.DynamoRegion,
			Endpoint: cfg.DynamoEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return dynamo.New(client, cfg.DynamoTable, time.Now)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
