package sheet

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
)

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// DefaultCleanColumns are the free-text columns exported with embedded newlines.
var DefaultCleanColumns = []string{domain.ColumnTitle, domain.ColumnDescription}

// Clean replaces runs of CR/LF in the given columns with a single space and
// returns how many cells changed.
func (s *Sheet) Clean(columns []string) int {
	changed := 0
	for i := range s.Rows {
		for _, col := range columns {
			value, ok := s.Rows[i].Fields[col]
			if !ok {
				continue
			}
			cleaned := lineBreaks.ReplaceAllString(value, " ")
			if cleaned != value {
				s.Rows[i].Fields[col] = cleaned
				changed++
			}
		}
	}
	return changed
}

// CleanedPath derives "<name>_cleaned.csv" next to path.
func CleanedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_cleaned.csv"
}

// WriteCSV writes the sheet, header first, to path.
func WriteCSV(path string, s *Sheet) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file %s: %w", path, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(s.Header); err != nil {
		return fmt.Errorf("failed to write csv header to %s: %w", path, err)
	}

	record := make([]string, len(s.Header))
	for _, row := range s.Rows {
		for i, col := range s.Header {
			record[i] = row.Fields[col]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row to %s: %w", path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return out.Close()
}
