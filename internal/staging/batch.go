package staging

import (
	"context"
	"errors"
	"sync"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Summary counts the results of a ResolveAll pass.
type Summary struct {
	Resolved int
	NotFound int
	// Unnamed rows pointed at pages whose items all lack a name; their
	// Filename cell is left as it was.
	Unnamed int
	Failed  int
	Skipped int
}

// BatchOptions tunes ResolveAll.
type BatchOptions struct {
	Concurrency int
	// Overwrite re-resolves rows that already carry a filename.
	Overwrite bool
}

// ResolveAll fills the Filename column of rows from their staging pages.
// Rows are updated in place so output order matches input order. Per-row
// failures are logged and counted, and never abort the batch.
func (r *Resolver) ResolveAll(ctx context.Context, rows []domain.Row, opts BatchOptions) Summary {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	count := func(f func(*Summary)) {
		mu.Lock()
		f(&summary)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range rows {
		row := &rows[i]
		stagingURL := row.Get(domain.ColumnStagingLocation)
		current := row.Get(domain.ColumnFilename)

		if stagingURL == "" || (current != "" && current != NotFoundMarker && !opts.Overwrite) {
			count(func(s *Summary) { s.Skipped++ })
			continue
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			log := logger.Log.With().Int("row", row.Index).Str("url", stagingURL).Logger()

			name, err := r.Resolve(gctx, stagingURL)
			switch {
			case errors.Is(err, ErrNotFound):
				log.Error().Str("title", row.Get(domain.ColumnTitle)).Msg("Failed to get filename")
				row.Set(domain.ColumnFilename, NotFoundMarker)
				count(func(s *Summary) { s.NotFound++ })
			case errors.Is(err, ErrUnnamedItems):
				log.Warn().Str("title", row.Get(domain.ColumnTitle)).Msg("Staging page lists no named item")
				count(func(s *Summary) { s.Unnamed++ })
			case err != nil:
				log.Error().Err(err).Str("title", row.Get(domain.ColumnTitle)).Msg("Failed to resolve filename")
				count(func(s *Summary) { s.Failed++ })
			default:
				log.Info().Str("filename", name).Msg("Resolved filename")
				row.Set(domain.ColumnFilename, name)
				count(func(s *Summary) { s.Resolved++ })
			}
			return nil
		})
	}

	_ = g.Wait()
	return summary
}
