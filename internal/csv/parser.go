package csv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/logging"
	"crmimport/internal/models"
)

const bom = "\ufeff"

// sniffCandidates are tried in order; the first wins a tie.
var sniffCandidates = []rune{',', ';', '\t', '|'}

// Options tune tokenizing. The zero value sniffs the delimiter and reads
// the first sheet of a workbook.
type Options struct {
	Delimiter rune
	Sheet     string
}

// Table is a tokenized upload: headers in file order and one SourceRow per
// data line.
type Table struct {
	Source  string
	Headers []string
	Rows    []models.SourceRow
}

type Parser struct {
	filename string
	opts     Options
}

func NewParser(filename string, opts Options) *Parser {
	return &Parser{filename: filename, opts: opts}
}

// Parse reads the file, choosing the workbook reader for .xlsx/.xlsm.
func (p *Parser) Parse() (*Table, error) {
	file, err := os.Open(p.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p.filename, err)
	}
	defer file.Close()

	source := filepath.Base(p.filename)
	switch strings.ToLower(filepath.Ext(p.filename)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(file, source, p.opts)
	default:
		return ParseCSV(file, source, p.opts)
	}
}

// ParseCSV tokenizes delimited text.
func ParseCSV(r io.Reader, source string, opts Options) (*Table, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(len(bom)); string(b) == bom {
		_, _ = br.Discard(len(bom))
	}
	delim := opts.Delimiter
	if delim == 0 {
		head, _ := br.Peek(64 * 1024)
		delim = SniffDelimiter(head)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = delim != '\t'

	rawHeaders, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, pipelineerrors.NewParseError(source, 0, errors.New("file is empty"))
	}
	if err != nil {
		return nil, csvError(source, err)
	}

	table := &Table{Source: source, Headers: CleanHeaders(rawHeaders)}
	if len(table.Headers) == 0 {
		return nil, pipelineerrors.NewParseError(source, 1, errors.New("header row is empty"))
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(source, err)
		}
		table.Rows = append(table.Rows, table.row(len(table.Rows), record))
	}

	logging.Default().Info().Str("source", source).Str("delimiter", string(delim)).Int("columns", len(table.Headers)).Int("rows", len(table.Rows)).Msg("file parsed")
	return table, nil
}

func (t *Table) row(index int, cells []string) models.SourceRow {
	values := make(map[string]string, len(t.Headers))
	for i, h := range t.Headers {
		if i < len(cells) {
			values[h] = cells[i]
		} else {
			values[h] = ""
		}
	}
	return models.NewSourceRow(index, values)
}

func csvError(source string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pipelineerrors.NewParseError(source, pe.Line, pe.Err)
	}
	return pipelineerrors.NewParseError(source, 0, err)
}

// SniffDelimiter picks the candidate that occurs most often outside quotes
// on the first line of head, defaulting to a comma.
func SniffDelimiter(head []byte) rune {
	head = bytes.TrimPrefix(head, []byte(bom))
	if i := bytes.IndexAny(head, "\r\n"); i >= 0 {
		head = head[:i]
	}

	counts := make(map[rune]int, len(sniffCandidates))
	quoted := false
	for _, c := range string(head) {
		if c == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[c]++
		}
	}

	best, bestCount := ',', 0
	for _, c := range sniffCandidates {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// CleanHeaders strips a leading byte-order mark, trims every header, names
// blank headers by position and suffixes repeated ones so every column
// keeps a distinct key. Trailing blank headers are dropped.
func CleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		headers[i] = strings.TrimSpace(h)
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}

	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		headers[i] = h
	}
	return headers
}
