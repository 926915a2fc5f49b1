package publish

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/zenodo"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/google/uuid"
)

// DepositClient is the slice of the deposition API the pipeline drives.
type DepositClient interface {
	ListDepositions(ctx context.Context) ([]zenodo.Deposition, error)
	CreateDeposition(ctx context.Context) (*zenodo.Deposition, error)
	UploadFile(ctx context.Context, bucketURL, filename string, content io.Reader) (*zenodo.FileInfo, error)
	UpdateMetadata(ctx context.Context, depositionID int64, md domain.Metadata) (*zenodo.Deposition, error)
	Publish(ctx context.Context, depositionID int64) (*zenodo.Deposition, error)
	SubmitToCommunity(ctx context.Context, depositionID int64, community string) error
}

// Recorder receives every outcome as soon as its row reaches a terminal state.
type Recorder interface {
	RecordOutcome(ctx context.Context, runID uuid.UUID, outcome domain.Outcome) error
}

// Config controls a publish run.
type Config struct {
	Mode        domain.Mode
	AccessToken string
	CommunityID string
	// FileDir is joined with relative Filename cells.
	FileDir string
	// StartRow skips data rows whose index is lower.
	StartRow int
	// Limit caps the number of processed rows; zero means no cap.
	Limit int
}

// Publisher drives rows through the create, upload, annotate and finalize
// stages, one row at a time.
type Publisher struct {
	client   DepositClient
	cfg      Config
	recorder Recorder
}

type Option func(*Publisher)

// WithRecorder attaches an outcome recorder (e.g. the run ledger).
func WithRecorder(r Recorder) Option {
	return func(p *Publisher) {
		p.recorder = r
	}
}

// NewPublisher creates a new Publisher.
func NewPublisher(client DepositClient, cfg Config, opts ...Option) *Publisher {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePublish
	}
	p := &Publisher{
		client: client,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildRequest turns a sheet row into the immutable request used by every stage.
func (p *Publisher) BuildRequest(row domain.Row) domain.UploadRequest {
	path := row.Get(domain.ColumnFilename)
	if path != "" && !filepath.IsAbs(path) && p.cfg.FileDir != "" {
		path = filepath.Join(p.cfg.FileDir, path)
	}

	return domain.UploadRequest{
		RowIndex:      row.Index,
		LocalFilePath: path,
		Metadata:      domain.MetadataFromRow(row, p.cfg.CommunityID),
	}
}

// Run processes rows sequentially in source order. A cancelled context stops
// the loop before the next row and never aborts the row in flight; the
// outcomes gathered so far are returned with Interrupted set.
func (p *Publisher) Run(ctx context.Context, runID uuid.UUID, rows []domain.Row) *domain.RunResult {
	result := &domain.RunResult{RunID: runID, Mode: p.cfg.Mode}

	selected := p.window(rows)
	for i, row := range selected {
		if err := ctx.Err(); err != nil {
			result.Interrupted = true
			logger.Log.Warn().Err(err).Int("remaining", len(selected)-i).Msg("run interrupted, stopping before next row")
			break
		}

		logger.Log.Info().Msg("##########################################################")
		logger.Log.Info().Msgf("Beginning upload for file %d / %d", i+1, len(selected))
		logger.Log.Info().Msg("##########################################################")

		// A started row runs to its real terminal state; cancellation is only
		// observed between rows.
		outcome := p.ProcessRow(context.WithoutCancel(ctx), row)
		p.record(ctx, runID, outcome)
		result.Add(outcome)
	}

	logger.Log.Info().
		Str("run_id", runID.String()).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Bool("interrupted", result.Interrupted).
		Msg("run finished")

	return result
}

func (p *Publisher) window(rows []domain.Row) []domain.Row {
	selected := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if row.Index < p.cfg.StartRow {
			continue
		}
		if p.cfg.Limit > 0 && len(selected) >= p.cfg.Limit {
			break
		}
		selected = append(selected, row)
	}
	return selected
}

func (p *Publisher) record(ctx context.Context, runID uuid.UUID, outcome domain.Outcome) {
	if p.recorder == nil {
		return
	}
	// The ledger is an audit trail; it never changes a row's outcome.
	if err := p.recorder.RecordOutcome(context.WithoutCancel(ctx), runID, outcome); err != nil {
		logger.Log.Error().Err(err).Int("row", outcome.RowIndex).Msg("failed to record outcome")
	}
}

// ProcessRow runs one row to a terminal state and always returns exactly one
// outcome. Panics raised by a stage are converted into an UnexpectedError.
func (p *Publisher) ProcessRow(ctx context.Context, row domain.Row) (outcome domain.Outcome) {
	req := p.BuildRequest(row)
	run := newRowRun(req, row)

	defer func() {
		if r := recover(); r != nil {
			outcome = run.fail(domain.UnexpectedError(run.stage, fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := p.runStages(ctx, req, run); err != nil {
		return run.fail(err)
	}
	return run.succeed(p.cfg.Mode)
}
