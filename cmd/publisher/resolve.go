package main

import (
	"path/filepath"
	"strings"

	"github.com/andresuchdata/radx-zenodo-upload/internal/cache"
	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/sheet"
	"github.com/andresuchdata/radx-zenodo-upload/internal/staging"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/urfave/cli/v2"
)

func resolveCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "resolve-filenames",
		Usage: "Fill the Filename column from each row's Staging Location page",
		Flags: []cli.Flag{
			newInputFlag(true),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output CSV (default <input>_w_filenames.csv)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Pages fetched in parallel",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Re-resolve rows that already have a filename",
			},
			&cli.BoolFlag{
				Name:  "purge-cache",
				Usage: "Drop cached filenames before resolving",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			input := c.String("input")

			output := c.String("output")
			if output == "" {
				output = strings.TrimSuffix(input, filepath.Ext(input)) + "_w_filenames.csv"
			}

			s, err := sheet.Open(input)
			if err != nil {
				return err
			}
			if err := s.Validate([]string{domain.ColumnStagingLocation}); err != nil {
				return err
			}
			s.EnsureColumn(domain.ColumnFilename)

			fc := cache.NewFilenameCache(ctx, cfg.Cache)
			defer fc.Close()

			if c.Bool("purge-cache") {
				n, err := fc.Purge(ctx)
				if err != nil {
					return err
				}
				logger.Log.Info().Int("keys", n).Msg("filename cache purged")
			}

			resolver := staging.NewResolver(staging.WithCache(fc))
			summary := resolver.ResolveAll(ctx, s.Rows, staging.BatchOptions{
				Concurrency: c.Int("concurrency"),
				Overwrite:   c.Bool("overwrite"),
			})

			if err := sheet.WriteCSV(output, s); err != nil {
				return err
			}

			logger.Log.Info().
				Str("output", output).
				Int("resolved", summary.Resolved).
				Int("not_found", summary.NotFound).
				Int("unnamed", summary.Unnamed).
				Int("failed", summary.Failed).
				Int("skipped", summary.Skipped).
				Msg("Filename resolution finished")
			return ctx.Err()
		},
	}
}
