package main

import (
	"strings"

	"github.com/andresuchdata/radx-zenodo-upload/internal/sheet"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/urfave/cli/v2"
)

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Collapse line breaks inside free-text columns",
		Flags: []cli.Flag{
			newInputFlag(true),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output CSV (default <input>_cleaned.csv)",
			},
			&cli.StringSliceFlag{
				Name:  "columns",
				Usage: "Columns to clean",
				Value: cli.NewStringSlice(sheet.DefaultCleanColumns...),
			},
		},
		Action: func(c *cli.Context) error {
			input := c.String("input")
			output := c.String("output")
			if output == "" {
				output = sheet.CleanedPath(input)
			}

			s, err := sheet.Open(input)
			if err != nil {
				return err
			}

			var columns []string
			for _, col := range c.StringSlice("columns") {
				if col = strings.TrimSpace(col); col != "" {
					columns = append(columns, col)
				}
			}

			changed := s.Clean(columns)
			if err := sheet.WriteCSV(output, s); err != nil {
				return err
			}

			logger.Log.Info().
				Str("output", output).
				Int("rows", len(s.Rows)).
				Int("cells_changed", changed).
				Msg("Cleaned input written")
			return nil
		},
	}
}
