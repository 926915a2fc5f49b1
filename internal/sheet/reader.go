package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
)

const utf8BOM = "\ufeff"

// Sheet is a fully loaded input table.
type Sheet struct {
	Header []string
	Rows   []domain.Row
}

// MissingColumnsError lists required columns absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required column(s): %s", strings.Join(e.Columns, ", "))
}

// Open loads a CSV or XLSX file, chosen by extension.
func Open(path string) (*Sheet, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSX(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	s, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s, nil
}

// ReadCSV reads a header row followed by data rows.
func ReadCSV(r io.Reader) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("input has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		records = append(records, record)
	}

	return build(header, records), nil
}

func build(header []string, records [][]string) *Sheet {
	s := &Sheet{Header: make([]string, len(header))}
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, utf8BOM)
		}
		s.Header[i] = strings.TrimSpace(col)
	}

	for _, record := range records {
		if blank(record) {
			continue
		}
		row := domain.Row{Index: len(s.Rows), Fields: make(map[string]string, len(s.Header))}
		for i, col := range s.Header {
			if i < len(record) {
				row.Fields[col] = record[i]
			} else {
				row.Fields[col] = ""
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Validate checks that every required column is present in the header.
func (s *Sheet) Validate(required []string) error {
	present := make(map[string]bool, len(s.Header))
	for _, col := range s.Header {
		present[col] = true
	}

	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// EnsureColumn appends column to the header when it is not there yet.
func (s *Sheet) EnsureColumn(column string) {
	for _, col := range s.Header {
		if col == column {
			return
		}
	}
	s.Header = append(s.Header, column)
	for i := range s.Rows {
		if _, ok := s.Rows[i].Fields[column]; !ok {
			s.Rows[i].Set(column, "")
		}
	}
}
