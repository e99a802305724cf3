package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/config"
	"github.com/noah-analytics/noah-server/internal/logging"
	"github.com/noah-analytics/noah-server/internal/notes"
	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/prefs"
	"github.com/noah-analytics/noah-server/internal/query"
	"github.com/noah-analytics/noah-server/internal/table"
)

// app holds the long-lived services shared by serve and mcp
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	client *api.Client
	prefs  *prefs.BoltStore
	cache  *query.Cache
	toasts *notify.Center
	pages  *pages.Service
	notes  *notes.Searcher
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	baseURL, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(baseURL, api.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	store, err := prefs.OpenBoltStore(cfg.PrefsPath())
	if err != nil {
		return nil, err
	}

	retry := query.DefaultRetryPolicy
	retry.Retryable = api.Retryable
	cache, err := query.New(cfg.QueryCacheSize,
		query.WithStaleTime(cfg.StaleTime),
		query.WithRetryPolicy(retry),
		query.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	toasts := notify.NewCenter(notify.WithTTL(cfg.ToastTTL), notify.WithLogger(logger))
	svc, err := pages.NewService(pages.Config{
		Backend:  client,
		Cache:    cache,
		Notifier: toasts,
		Prefs:    store,
		Variant:  table.Variant(cfg.Variant),
		Logger:   logger,
	})
	if err != nil {
		cache.Close()
		store.Close()
		return nil, err
	}

	searcher := notes.NewSearcher(cfg.NotesIndexDir(), logger)
	if err := searcher.Load(); err != nil {
		logger.Warn("progress note search unavailable until the index is built",
			zap.String("dir", cfg.NotesIndexDir()), zap.Error(err))
	}

	logger.Info("services ready",
		zap.String("environment", cfg.Environment),
		zap.String("api", baseURL),
		zap.String("data_dir", cfg.DataDir))

	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		prefs:  store,
		cache:  cache,
		toasts: toasts,
		pages:  svc,
		notes:  searcher,
	}, nil
}

func (a *app) Close() error {
	a.cache.Close()
	err := errors.Join(a.notes.Close(), a.prefs.Close())
	_ = a.logger.Sync()
	return err
}
