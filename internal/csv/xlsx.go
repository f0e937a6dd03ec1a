package csv

import (
	"errors"
	"fmt"
	"io"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/logging"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX tokenizes one worksheet of a workbook: opts.Sheet when set,
// otherwise the first one. Leading empty rows are skipped before the header.
func ParseXLSX(r io.Reader, source string, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, pipelineerrors.NewParseError(source, 0, fmt.Errorf("not a readable workbook: %w", err))
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, pipelineerrors.NewParseError(source, 0, fmt.Errorf("sheet %q not found", sheet))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, pipelineerrors.NewParseError(source, 0, fmt.Errorf("failed to read sheet %q: %w", sheet, err))
	}

	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, pipelineerrors.NewParseError(source, 0, errors.New("sheet is empty"))
	}

	table := &Table{Source: source, Headers: CleanHeaders(rows[start])}
	if len(table.Headers) == 0 {
		return nil, pipelineerrors.NewParseError(source, start+1, errors.New("header row is empty"))
	}

	data := rows[start+1:]
	// GetRows keeps trailing rows that only carry formatting.
	for len(data) > 0 && blank(data[len(data)-1]) {
		data = data[:len(data)-1]
	}
	for _, cells := range data {
		table.Rows = append(table.Rows, table.row(len(table.Rows), cells))
	}

	logging.Default().Info().Str("source", source).Str("sheet", sheet).Int("columns", len(table.Headers)).Int("rows", len(table.Rows)).Msg("workbook parsed")
	return table, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
