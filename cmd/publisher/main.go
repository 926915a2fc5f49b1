package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, os.Args)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code. The log file stays
// open until the final error line has been written.
func run(ctx context.Context, cfg *config.Config, args []string) int {
	defer logger.Close()

	if err := newApp(cfg).RunContext(ctx, args); err != nil {
		logger.Log.Error().Err(err).Msg("publisher failed")
		return 1
	}
	return 0
}

func newApp(cfg *config.Config) *cli.App {
	return &cli.App{
		Name:  "publisher",
		Usage: "Publish spreadsheet rows as deposits on a Zenodo-compatible repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   cfg.Log.Level,
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write logs to this file; empty disables",
				Value:   cfg.Log.File,
				EnvVars: []string{"LOG_FILE"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return logger.SetOutputFile(c.String("log-file"))
		},
		Commands: []*cli.Command{
			publishCommand(cfg),
			resolveCommand(cfg),
			cleanCommand(),
			probeCommand(cfg),
		},
	}
}

func newInputFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "Input spreadsheet (.csv or .xlsx)",
		Required: required,
		EnvVars:  []string{"PUBLISH_INPUT"},
	}
}
