package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/storage"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
)

var (
	successHeader = []string{"files", "deposition_ids", "titles"}
	failureHeader = []string{"files", "deposition_ids", "titles", "error_message"}
)

// Paths are the local files produced by Write.
type Paths struct {
	Succeeded string
	Failed    string
}

// Writer writes the success and failure tables of a run.
type Writer struct {
	outputDir     string
	storage       storage.ObjectStorage
	storagePrefix string
}

// Option configures a Writer.
type Option func(*Writer)

// WithStorage mirrors every report to object storage under prefix/<run-id>/.
func WithStorage(s storage.ObjectStorage, prefix string) Option {
	return func(w *Writer) {
		w.storage = s
		w.storagePrefix = prefix
	}
}

func NewWriter(outputDir string, opts ...Option) *Writer {
	w := &Writer{outputDir: outputDir}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders both tables for result. Local files are always written;
// a storage failure is logged and does not fail the call.
func (w *Writer) Write(ctx context.Context, result *domain.RunResult) (Paths, error) {
	prefix := result.Mode.ReportPrefix()
	paths := Paths{
		Succeeded: filepath.Join(w.outputDir, prefix+"_successful_files.csv"),
		Failed:    filepath.Join(w.outputDir, prefix+"_failed_files.csv"),
	}

	succeeded, err := render(successHeader, result.Succeeded, false)
	if err != nil {
		return paths, err
	}
	failed, err := render(failureHeader, result.Failed, true)
	if err != nil {
		return paths, err
	}

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return paths, fmt.Errorf("failed to create output directory %s: %w", w.outputDir, err)
	}
	for file, data := range map[string][]byte{paths.Succeeded: succeeded, paths.Failed: failed} {
		if err := os.WriteFile(file, data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", file, err)
		}
	}

	logger.Log.Info().
		Str("successes", paths.Succeeded).
		Str("failures", paths.Failed).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Msg("Outcome reports written")

	if w.storage != nil {
		w.mirror(ctx, result, map[string][]byte{
			filepath.Base(paths.Succeeded): succeeded,
			filepath.Base(paths.Failed):    failed,
		})
	}
	return paths, nil
}

func (w *Writer) mirror(ctx context.Context, result *domain.RunResult, files map[string][]byte) {
	for name, data := range files {
		key := path.Join(w.storagePrefix, result.RunID.String(), name)
		if err := w.storage.UploadObject(ctx, key, data); err != nil {
			logger.Log.Error().Err(err).Str("key", key).Msg("Failed to mirror report to storage")
			continue
		}
		logger.Log.Info().Str("key", key).Msg("Report mirrored to storage")
	}
}

func render(header []string, outcomes []domain.Outcome, withError bool) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}

	for _, o := range outcomes {
		record := []string{o.SourceFile, formatID(o.DepositionID), o.Title}
		if withError {
			record = append(record, o.ErrorMessage)
		}
		if err := cw.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write report row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush report: %w", err)
	}
	return buf.Bytes(), nil
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
