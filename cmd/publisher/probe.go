package main

import (
	"github.com/andresuchdata/radx-zenodo-upload/internal/config"
	"github.com/andresuchdata/radx-zenodo-upload/internal/publish"
	"github.com/urfave/cli/v2"
)

func probeCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Check that the access token and base URL reach the service",
		Action: func(c *cli.Context) error {
			if cfg.Zenodo.AccessToken == "" {
				return publish.ErrMissingToken
			}
			p := publish.NewPublisher(newZenodoClient(cfg), publish.Config{AccessToken: cfg.Zenodo.AccessToken})
			return p.Probe(c.Context)
		},
	}
}
