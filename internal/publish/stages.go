package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/zenodo"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
	"github.com/rs/zerolog"
)

// rowRun tracks the state machine and partial results of one row.
type rowRun struct {
	outcome domain.Outcome
	state   domain.RowState
	stage   domain.Stage
	log     zerolog.Logger
}

func newRowRun(req domain.UploadRequest, row domain.Row) *rowRun {
	return &rowRun{
		outcome: domain.Outcome{
			RowIndex:   req.RowIndex,
			SourceFile: req.LocalFilePath,
			Title:      req.Metadata.Title,
			Keywords:   req.Metadata.Keywords,
		},
		state: domain.StatePending,
		log: logger.Log.With().
			Int("row", row.Index).
			Str("file", req.LocalFilePath).
			Logger(),
	}
}

func (r *rowRun) enter(stage domain.Stage) {
	r.stage = stage
}

func (r *rowRun) advance(next domain.RowState) error {
	state, err := r.state.Advance(next)
	if err != nil {
		return domain.UnexpectedError(r.stage, err)
	}
	r.state = state
	return nil
}

func (r *rowRun) fail(err error) domain.Outcome {
	se, ok := domain.AsStageError(err)
	if !ok {
		se = domain.UnexpectedError(r.stage, err)
	}

	r.state, _ = r.state.Advance(domain.StateFailed)
	r.outcome.State = domain.StateFailed
	r.outcome.Stage = se.Stage
	r.outcome.Reason = se.Reason()
	r.outcome.ErrorMessage = se.Error()

	event := r.log.Error().Str("stage", string(se.Stage)).Str("kind", string(se.Kind))
	if se.StatusCode != 0 {
		event = event.Int("status", se.StatusCode)
	}
	if r.outcome.DepositionID != nil {
		event = event.Int64("deposition_id", *r.outcome.DepositionID)
	}
	event.Msg(se.Error())

	return r.outcome
}

func (r *rowRun) succeed(mode domain.Mode) domain.Outcome {
	if !r.state.EndsRun(mode) {
		return r.fail(domain.UnexpectedError(r.stage, fmt.Errorf("row stopped in non-terminal state %s", r.state)))
	}
	r.outcome.State = r.state
	r.outcome.Stage = r.stage
	r.log.Info().Int64("deposition_id", *r.outcome.DepositionID).Str("state", string(r.state)).Msg("Upload successful")
	return r.outcome
}

func (p *Publisher) runStages(ctx context.Context, req domain.UploadRequest, run *rowRun) error {
	// The file is opened before anything remote happens so a missing file
	// never leaves an orphan deposition behind.
	run.enter(domain.StageUpload)
	f, err := openLocalFile(req.LocalFilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	run.enter(domain.StageCreate)
	deposit, err := p.createEmptyDeposit(ctx)
	if err != nil {
		return err
	}
	id := deposit.DepositionID
	run.outcome.DepositionID = &id
	if err := run.advance(domain.StateCreated); err != nil {
		return err
	}
	run.log.Info().Int64("deposition_id", id).Msg("Empty deposition creation successful")

	run.enter(domain.StageUpload)
	if err := p.uploadBinary(ctx, deposit.BucketURL, req.LocalFilePath, f); err != nil {
		return err
	}
	if err := run.advance(domain.StateUploaded); err != nil {
		return err
	}
	run.log.Info().Int64("deposition_id", id).Msg("File upload successful")

	run.enter(domain.StageAnnotate)
	if err := p.attachMetadata(ctx, id, req.Metadata); err != nil {
		return err
	}
	if err := run.advance(domain.StateAnnotated); err != nil {
		return err
	}
	run.log.Info().Int64("deposition_id", id).Msg("Metadata update successful")

	if !p.cfg.Mode.Finalizes() {
		run.log.Info().Int64("deposition_id", id).Msg("dry-run: leaving deposition as draft")
		return nil
	}

	run.enter(domain.StagePublish)
	if err := p.finalize(ctx, id); err != nil {
		return err
	}
	if err := run.advance(domain.StateFinalized); err != nil {
		return err
	}
	return nil
}

// createEmptyDeposit is stage 1.
func (p *Publisher) createEmptyDeposit(ctx context.Context) (domain.RemoteDeposit, error) {
	dep, err := p.client.CreateDeposition(ctx)
	if err != nil {
		return domain.RemoteDeposit{}, classify(domain.StageCreate, err)
	}
	return domain.RemoteDeposit{DepositionID: dep.ID, BucketURL: dep.Links.Bucket}, nil
}

// uploadBinary is stage 2. The bucket target is named after the file's base name.
func (p *Publisher) uploadBinary(ctx context.Context, bucketURL, localPath string, f *os.File) error {
	if _, err := p.client.UploadFile(ctx, bucketURL, filepath.Base(localPath), f); err != nil {
		return classify(domain.StageUpload, err)
	}
	return nil
}

// attachMetadata is stage 3.
func (p *Publisher) attachMetadata(ctx context.Context, depositionID int64, md domain.Metadata) error {
	if _, err := p.client.UpdateMetadata(ctx, depositionID, md); err != nil {
		return classify(domain.StageAnnotate, err)
	}
	return nil
}

// finalize is stage 4: publish, or community submission in that mode.
func (p *Publisher) finalize(ctx context.Context, depositionID int64) error {
	if p.cfg.Mode == domain.ModeCommunitySubmit {
		if err := p.client.SubmitToCommunity(ctx, depositionID, p.cfg.CommunityID); err != nil {
			return classify(domain.StagePublish, err)
		}
		return nil
	}

	if _, err := p.client.Publish(ctx, depositionID); err != nil {
		return classify(domain.StagePublish, err)
	}
	return nil
}

func openLocalFile(path string) (*os.File, error) {
	if path == "" {
		return nil, domain.LocalIOError(domain.StageUpload, errors.New("row has no Filename"))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.LocalIOError(domain.StageUpload, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, domain.LocalIOError(domain.StageUpload, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, domain.LocalIOError(domain.StageUpload, fmt.Errorf("%s is a directory", path))
	}
	return f, nil
}

// classify maps client errors onto the stage error taxonomy.
func classify(stage domain.Stage, err error) error {
	var remote *zenodo.RemoteError
	if errors.As(err, &remote) {
		return domain.RemoteRejected(stage, remote.StatusCode, remote.Body)
	}
	var transport *zenodo.TransportError
	if errors.As(err, &transport) {
		return domain.TransportError(stage, transport)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.TransportError(stage, err)
	}
	return domain.UnexpectedError(stage, err)
}
