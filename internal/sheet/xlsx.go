package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSX loads the first sheet of an XLSX workbook. The first row is the header.
func readXLSX(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx file %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx file %s has no sheets", path)
	}
	name := sheets[0]

	rows, err := f.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", name, err)
	}
	defer rows.Close()

	var header []string
	var records [][]string
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from %s: %w", path, err)
		}
		if header == nil {
			header = record
			continue
		}
		records = append(records, record)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("error iterating rows in %s: %w", path, err)
	}
	if header == nil {
		return nil, fmt.Errorf("xlsx file %s has no header row", path)
	}

	return build(header, records), nil
}
