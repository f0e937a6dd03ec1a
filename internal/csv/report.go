package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"crmimport/internal/models"

	"github.com/jszwec/csvutil"
)

// Outcome labels in the report.
const (
	OutcomeReady   = "ready"
	OutcomeSkipped = "skipped"
)

// ReportLine is one uploaded row in the final report.
type ReportLine struct {
	Row           int           `csv:"row"`
	Name          string        `csv:"name"`
	Status        models.Status `csv:"status"`
	Outcome       string        `csv:"outcome"`
	Action        models.Action `csv:"action,omitempty"`
	MatchStrategy string        `csv:"match_strategy,omitempty"`
	Reasons       string        `csv:"reasons,omitempty"`
	Messages      string        `csv:"messages,omitempty"`
	Warnings      string        `csv:"warnings,omitempty"`
	Errors        string        `csv:"errors,omitempty"`
}

// BuildReport lists every row of outcome in upload order. result may be nil
// when nothing was imported.
func BuildReport(outcome models.DedupOutcome, result *models.ImportBatchResult) []ReportLine {
	byIndex := map[int]models.RowOutcome{}
	if result != nil {
		for _, r := range result.Rows {
			byIndex[r.OriginalIndex] = r
		}
	}

	lines := make([]ReportLine, 0, len(outcome.Ready)+len(outcome.Skipped))
	for _, rec := range outcome.Ready {
		line := newLine(rec, OutcomeReady)
		if r, ok := byIndex[rec.OriginalIndex]; ok {
			line.Action = r.Action
			line.MatchStrategy = r.MatchStrategy
			line.Warnings = strings.Join(r.Warnings, "; ")
			line.Errors = strings.Join(r.Errors, "; ")
		}
		lines = append(lines, line)
	}
	for _, s := range outcome.Skipped {
		line := newLine(s.Record, OutcomeSkipped)
		reasons := make([]string, len(s.Reasons))
		for i, r := range s.Reasons {
			reasons[i] = r.Code + ": " + r.Text
		}
		line.Reasons = strings.Join(reasons, "; ")
		lines = append(lines, line)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Row < lines[j].Row })
	return lines
}

func newLine(rec models.NormalizedRecord, outcome string) ReportLine {
	msgs := make([]string, len(rec.Messages))
	for i, m := range rec.Messages {
		msgs[i] = m.Text
	}
	return ReportLine{
		Row:      rec.OriginalIndex + 1,
		Name:     rec.Value(models.FieldName),
		Status:   rec.Status,
		Outcome:  outcome,
		Messages: strings.Join(msgs, "; "),
	}
}

// WriteReport encodes lines as CSV with a header row.
func WriteReport(w io.Writer, lines []ReportLine) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(lines) == 0 {
		if err := enc.EncodeHeader(ReportLine{}); err != nil {
			return fmt.Errorf("failed to write report header: %w", err)
		}
	} else if err := enc.Encode(lines); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// WriteReportFile writes lines to path.
func WriteReportFile(path string, lines []ReportLine) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteReport(file, lines); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
