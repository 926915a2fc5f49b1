package main

import (
	"context"

	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/publish"
	"github.com/andresuchdata/radx-zenodo-upload/internal/repository/postgres"
	"github.com/andresuchdata/radx-zenodo-upload/internal/storage"
	"github.com/andresuchdata/radx-zenodo-upload/internal/zenodo"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/google/uuid"
)

// runLedger is the audit store for a publish run.
type runLedger interface {
	publish.Recorder
	StartRun(ctx context.Context, runID uuid.UUID, mode domain.Mode, inputFile string) error
	FinishRun(ctx context.Context, result *domain.RunResult) error
}

type runDeps struct {
	client  publish.DepositClient
	ledger  runLedger
	storage storage.ObjectStorage
}

func newZenodoClient(cfg *config.Config) *zenodo.Client {
	return zenodo.NewClient(zenodo.Config{
		BaseURL:     cfg.Zenodo.BaseURL,
		AccessToken: cfg.Zenodo.AccessToken,
		Timeout:     cfg.Zenodo.HTTPTimeout,
	})
}

// openLedger connects the run ledger when DATABASE_URL is set. Connection
// problems are logged and the run continues without one.
func openLedger(ctx context.Context, cfg config.DatabaseConfig) (runLedger, func()) {
	if !cfg.Enabled() {
		return nil, func() {}
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("run ledger disabled")
		return nil, func() {}
	}

	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("run ledger disabled")
		_ = db.Close()
		return nil, func() {}
	}

	logger.Log.Info().Msg("run ledger enabled")
	return repo, func() { _ = db.Close() }
}

// openStorage returns nil when object storage is not configured.
func openStorage(cfg config.StorageConfig) storage.ObjectStorage {
	if !cfg.Enabled() {
		return nil
	}

	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("object storage disabled")
		return nil
	}
	return client
}
