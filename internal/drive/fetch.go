package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
)

// FetchSpreadsheet downloads the input sheet fileID into destDir and returns
// the local path. Native Google Sheets are exported as XLSX.
func (s *Service) FetchSpreadsheet(ctx context.Context, fileID, destDir string) (string, error) {
	meta, err := s.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	name := filepath.Base(strings.TrimSpace(meta.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fileID
	}
	export := meta.MimeType == GoogleSheetMimeType
	if export && !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		name += ".xlsx"
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", destDir, err)
	}

	tmp, err := os.CreateTemp(destDir, ".drive-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", destDir, err)
	}
	defer os.Remove(tmp.Name())

	if export {
		err = s.ExportFile(ctx, fileID, XLSXMimeType, tmp)
	} else {
		err = s.DownloadFile(ctx, fileID, tmp)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s from drive: %w", fileID, err)
	}

	dest := filepath.Join(destDir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move download to %s: %w", dest, err)
	}

	logger.Log.Info().
		Str("file_id", fileID).
		Str("name", meta.Name).
		Bool("exported", export).
		Str("path", dest).
		Msg("Input spreadsheet fetched from drive")
	return dest, nil
}
