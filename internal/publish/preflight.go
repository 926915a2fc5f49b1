package publish

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
)

var (
	ErrInputMissing     = errors.New("input file not found")
	ErrMissingToken     = errors.New("access token not found in environment")
	ErrMissingCommunity = errors.New("community-submit mode requires a community identifier")
	ErrProbeFailed      = errors.New("access token or deposition url failed")
)

// Preflight validates everything a run depends on before row 0 is touched.
// Any error it returns is fatal for the whole run.
func (p *Publisher) Preflight(ctx context.Context, inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil || info.IsDir() {
		logger.Log.Error().Str("input", inputPath).Msg("Not able to find input file")
		return fmt.Errorf("%w: %s", ErrInputMissing, inputPath)
	}

	if p.cfg.AccessToken == "" {
		logger.Log.Error().Msg("Access token not found in environmental variables.")
		return ErrMissingToken
	}

	if p.cfg.Mode == domain.ModeCommunitySubmit && p.cfg.CommunityID == "" {
		return ErrMissingCommunity
	}

	return p.Probe(ctx)
}

// Probe checks that the access token and base URL reach the service.
func (p *Publisher) Probe(ctx context.Context) error {
	if _, err := p.client.ListDepositions(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("connectivity probe failed")
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	logger.Log.Info().Msg("Successful connection to API")
	return nil
}
