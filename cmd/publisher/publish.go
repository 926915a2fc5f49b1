package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/drive"
	"github.com/andresuchdata/radx-zenodo-upload/internal/publish"
	"github.com/andresuchdata/radx-zenodo-upload/internal/report"
	"github.com/andresuchdata/radx-zenodo-upload/internal/sheet"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var errInterrupted = errors.New("run interrupted")

type publishOptions struct {
	Input         string
	FileDir       string
	OutDir        string
	Mode          domain.Mode
	Community     string
	StartRow      int
	Limit         int
	Clean         bool
	StoragePrefix string
}

func publishCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Create, upload, annotate and publish one deposit per input row",
		Flags: []cli.Flag{
			newInputFlag(false),
			&cli.StringFlag{
				Name:    "file-dir",
				Usage:   "Directory relative Filename cells are resolved against",
				EnvVars: []string{"PUBLISH_FILE_DIR"},
			},
			&cli.StringFlag{
				Name:    "out-dir",
				Usage:   "Directory for the outcome reports",
				Value:   cfg.App.OutputDir,
				EnvVars: []string{"APP_OUTPUT_DIR"},
			},
			&cli.StringFlag{
				Name:    "mode",
				Usage:   "publish, community-submit or dry-run",
				Value:   string(domain.ModePublish),
				EnvVars: []string{"PUBLISH_MODE"},
			},
			&cli.StringFlag{
				Name:    "community",
				Usage:   "Community identifier attached to every deposit",
				Value:   cfg.Zenodo.CommunityID,
				EnvVars: []string{"ZENODO_COMMUNITY_ID"},
			},
			&cli.IntFlag{
				Name:  "start-row",
				Usage: "Skip data rows with a lower 0-based index",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Process at most this many rows (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "Collapse line breaks in Title and Description before publishing",
			},
			&cli.StringFlag{
				Name:  "drive-file-id",
				Usage: "Download the input spreadsheet from Google Drive first",
			},
			&cli.StringFlag{
				Name:  "input-object",
				Usage: "Download the input spreadsheet from object storage first",
			},
		},
		Action: func(c *cli.Context) error {
			mode, err := domain.ParseMode(c.String("mode"))
			if err != nil {
				return err
			}

			ctx := c.Context
			store := openStorage(cfg.Storage)

			input, err := resolveInput(ctx, cfg, store, c.String("input"), c.String("drive-file-id"), c.String("input-object"))
			if err != nil {
				return err
			}

			ledger, closeLedger := openLedger(ctx, cfg.Database)
			defer closeLedger()

			opts := publishOptions{
				Input:         input,
				FileDir:       c.String("file-dir"),
				OutDir:        c.String("out-dir"),
				Mode:          mode,
				Community:     c.String("community"),
				StartRow:      c.Int("start-row"),
				Limit:         c.Int("limit"),
				Clean:         c.Bool("clean"),
				StoragePrefix: cfg.Storage.Prefix,
			}
			deps := runDeps{
				client:  newZenodoClient(cfg),
				ledger:  ledger,
				storage: store,
			}

			_, err = executePublish(ctx, cfg.Zenodo.AccessToken, opts, deps)
			return err
		},
	}
}

func resolveInput(ctx context.Context, cfg *config.Config, store storageDownloader, input, driveFileID, objectKey string) (string, error) {
	switch {
	case driveFileID != "":
		svc, err := drive.NewService(ctx, cfg.Drive.CredentialsJSON)
		if err != nil {
			return "", err
		}
		return svc.FetchSpreadsheet(ctx, driveFileID, cfg.App.InputDir)
	case objectKey != "":
		if store == nil {
			return "", errors.New("--input-object needs STORAGE_ENDPOINT and STORAGE_BUCKET")
		}
		dest := filepath.Join(cfg.App.InputDir, path.Base(objectKey))
		if err := store.DownloadObject(ctx, objectKey, dest); err != nil {
			return "", err
		}
		return dest, nil
	case input == "":
		return "", errors.New("one of --input, --drive-file-id or --input-object is required")
	default:
		return input, nil
	}
}

type storageDownloader interface {
	DownloadObject(ctx context.Context, key, destPath string) error
}

// executePublish validates the run, processes every selected row and always
// writes the outcome reports once validation has passed.
func executePublish(ctx context.Context, accessToken string, opts publishOptions, deps runDeps) (result *domain.RunResult, err error) {
	pcfg := publish.Config{
		Mode:        opts.Mode,
		AccessToken: accessToken,
		CommunityID: opts.Community,
		FileDir:     opts.FileDir,
		StartRow:    opts.StartRow,
		Limit:       opts.Limit,
	}

	if err := publish.NewPublisher(deps.client, pcfg).Preflight(ctx, opts.Input); err != nil {
		return nil, err
	}

	s, err := sheet.Open(opts.Input)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(domain.RequiredColumns); err != nil {
		return nil, fmt.Errorf("invalid input %s: %w", opts.Input, err)
	}
	if opts.Clean {
		s.Clean(sheet.DefaultCleanColumns)
	}

	runID := uuid.New()
	log := logger.Log.With().Str("run_id", runID.String()).Str("mode", string(opts.Mode)).Logger()

	var popts []publish.Option
	if deps.ledger != nil {
		if err := deps.ledger.StartRun(ctx, runID, opts.Mode, opts.Input); err != nil {
			log.Warn().Err(err).Msg("run ledger disabled")
			deps.ledger = nil
		} else {
			popts = append(popts, publish.WithRecorder(deps.ledger))
		}
	}

	var wopts []report.Option
	if deps.storage != nil {
		wopts = append(wopts, report.WithStorage(deps.storage, opts.StoragePrefix))
	}
	writer := report.NewWriter(opts.OutDir, wopts...)

	result = &domain.RunResult{RunID: runID, Mode: opts.Mode, InputFile: opts.Input}
	defer func() {
		// detached so an interrupt cannot cut the reports short
		finishCtx := context.WithoutCancel(ctx)
		if _, werr := writer.Write(finishCtx, result); werr != nil && err == nil {
			err = werr
		}
		if deps.ledger != nil {
			if ferr := deps.ledger.FinishRun(finishCtx, result); ferr != nil {
				log.Error().Err(ferr).Msg("failed to finish run in ledger")
			}
		}
	}()

	log.Info().Str("input", opts.Input).Int("rows", len(s.Rows)).Msg("Starting publish run")

	result = publish.NewPublisher(deps.client, pcfg, popts...).Run(ctx, runID, s.Rows)
	result.InputFile = opts.Input

	if result.Interrupted {
		return result, fmt.Errorf("%w after %d row(s)", errInterrupted, result.Total())
	}
	return result, nil
}
