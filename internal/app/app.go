// Package app assembles the tracker, its backing services and transports from
// configuration. Both the API server and the enhance CLI start from here.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/saedlagr/foodio-beta-sub000/internal/config"
	"github.com/saedlagr/foodio-beta-sub000/internal/feed"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/repository"
	"github.com/saedlagr/foodio-beta-sub000/internal/service"
	"github.com/saedlagr/foodio-beta-sub000/internal/storage"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
	"github.com/saedlagr/foodio-beta-sub000/internal/workflow"
)

// App holds the wired components.
type App struct {
	Registry    *tracker.Registry
	Enhancement *service.EnhancementService
	Profiles    *repository.ProfileRepository
	Records     *repository.RecordRepository

	feed      *feed.Feed
	log       *logger.Logger
	closeOnce sync.Once
}

// New connects the database, object storage, change feed and workflow client,
// and returns a registry whose sessions live under ctx.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Feed.Type == "postgres" {
		if err := repository.InstallChangeNotify(ctx, db, cfg.Feed.Channel); err != nil {
			return nil, fmt.Errorf("install change trigger: %w", err)
		}
	}

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if ensurer, ok := objectStorage.(storage.BucketEnsurer); ok {
		if err := ensurer.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
	}

	changes, err := feed.New(ctx, cfg.Feed, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init change feed: %w", err)
	}

	records := repository.NewRecordRepository(db)
	profiles := repository.NewProfileRepository(db)
	enhancement := service.NewEnhancementService(records, objectStorage, changes.Publisher, log)

	deps := tracker.Dependencies{
		Records:   records,
		Balances:  profiles,
		Registrar: enhancement,
		Artifacts: enhancement,
	}
	if changes.Source != nil {
		deps.Feed = changes.Source
	}
	if cfg.Workflow.WebhookURL != "" {
		client, err := workflow.NewClient(workflow.Config{
			WebhookURL: cfg.Workflow.WebhookURL,
			Secret:     cfg.Workflow.Secret,
			Timeout:    cfg.Workflow.Timeout,
			RetryCount: cfg.Workflow.RetryCount,
		})
		if err != nil {
			_ = changes.Close()
			return nil, fmt.Errorf("init workflow client: %w", err)
		}
		deps.Workflow = client
	} else {
		log.Warn("No workflow webhook configured; jobs wait for an external trigger")
	}

	registry := tracker.NewRegistry(ctx, deps, tracker.Options{
		Policy: cfg.Tracker.Policy(),
		Limits: cfg.Submission.Limits(),
		Logger: log,
	})

	log.WithFields(logger.Fields{
		"database": cfg.Database.Driver,
		"storage":  cfg.Storage.Type,
		"feed":     cfg.Feed.Type,
	}).Info("Application wired")

	return &App{
		Registry:    registry,
		Enhancement: enhancement,
		Profiles:    profiles,
		Records:     records,
		feed:        changes,
		log:         log,
	}, nil
}

// Close ends every session, then releases the change feed. Later calls are no-ops.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Registry.CloseAll()
		if err := a.feed.Close(); err != nil {
			a.log.WithError(err).Warn("Closing change feed failed")
		}
	})
}
