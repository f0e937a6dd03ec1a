// Package pipeline drives one import through its stages: upload, mapping
// and validation, summary, importing and report. A Session owns the
// uploaded rows and everything computed from them; every computed value is
// rebuilt from scratch whenever an input changes.
package pipeline

import (
	"context"
	"fmt"

	"crmimport/internal/csv"
	"crmimport/internal/dedup"
	"crmimport/internal/edits"
	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/importer"
	"crmimport/internal/logging"
	"crmimport/internal/mapping"
	"crmimport/internal/models"
	"crmimport/internal/normalize"
)

type Session struct {
	stage Stage
	table *csv.Table

	mapping  mapping.FieldMapping
	workflow *edits.Workflow
	dedup    *dedup.Deduplicator

	records []models.NormalizedRecord
	outcome models.DedupOutcome

	acceptCritical bool

	result    *models.ImportBatchResult
	importErr error
}

func NewSession() *Session {
	s := &Session{dedup: dedup.New(), mapping: mapping.New()}
	s.resetEdits()
	return s
}

func (s *Session) resetEdits() {
	s.workflow = edits.NewWorkflow(nil)
	s.workflow.OnConfirm = func(models.CellKey) { s.recompute() }
}

// SetTieRule changes how equally complete duplicates are settled. It only
// takes effect up to the mapping stage.
func (s *Session) SetTieRule(rule dedup.TieRule) error {
	if s.stage > StageMapping {
		return &pipelineerrors.TransitionError{Machine: "pipeline", From: s.stage.String(), Event: "set tie rule"}
	}
	s.dedup.Tie = rule
	s.recompute()
	return nil
}

// Stage is the current stage.
func (s *Session) Stage() Stage { return s.stage }

// Table is the uploaded data, nil before Load.
func (s *Session) Table() *csv.Table { return s.table }

// Load replaces the uploaded data and suggests a mapping. Only allowed at
// upload.
func (s *Session) Load(table *csv.Table) error {
	if s.stage != StageUpload {
		return &pipelineerrors.TransitionError{Machine: "pipeline", From: s.stage.String(), Event: "load"}
	}
	if table == nil {
		return fmt.Errorf("no table: %w", pipelineerrors.ErrInvalidInput)
	}
	s.table = table
	s.discardFrom(StageUpload)
	s.mapping = mapping.Suggest(table.Headers)
	return nil
}

// Mapping returns a copy of the current mapping.
func (s *Session) Mapping() mapping.FieldMapping { return s.mapping.Clone() }

// UpdateMapping applies fn to the mapping and recomputes every record.
// It fails with ErrMappingFrozen outside the mapping stage.
func (s *Session) UpdateMapping(fn func(m *mapping.FieldMapping) error) error {
	if s.stage != StageMapping || s.mapping.Frozen() {
		return pipelineerrors.ErrMappingFrozen
	}
	next := s.mapping.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.mapping = next
	s.recompute()
	return nil
}

// ApplyProfile replaces the mapping with a saved one, dropping columns the
// upload does not have. Fields the profile leaves unbound, or binds to a
// dropped column, keep the suggested mapping. It returns the dropped
// column names.
func (s *Session) ApplyProfile(m mapping.FieldMapping) ([]string, error) {
	var dropped []string
	err := s.UpdateMapping(func(cur *mapping.FieldMapping) error {
		saved := m.Clone()
		var err error
		if dropped, err = saved.Restrict(s.table.Headers); err != nil {
			return err
		}
		for _, f := range models.Fields {
			if !saved.IsMapped(f) {
				delete(saved.Overridden, f)
			}
		}
		*cur = mapping.Reconcile(s.table.Headers, saved)
		return nil
	})
	return dropped, err
}

// Records are the normalized rows, one per uploaded row, in upload order.
func (s *Session) Records() []models.NormalizedRecord { return s.records }

// Outcome is the ready/skipped partition of Records.
func (s *Session) Outcome() models.DedupOutcome { return s.outcome }

// Workflow is the manual correction state machine.
func (s *Session) Workflow() *edits.Workflow { return s.workflow }

// Result is the import result once importing has started.
func (s *Session) Result() (*models.ImportBatchResult, error) { return s.result, s.importErr }

func (s *Session) recompute() {
	if s.table == nil {
		return
	}
	s.records = normalize.NormalizeAll(s.table.Rows, s.mapping, s.workflow.Ledger())
	s.outcome = s.dedup.Partition(s.records)
}

// BeginEdit opens cell for editing with its current derived value.
func (s *Session) BeginEdit(cell models.CellKey) error {
	if s.stage != StageMapping {
		return &pipelineerrors.TransitionError{Machine: "pipeline", From: s.stage.String(), Event: "edit"}
	}
	if cell.OriginalIndex < 0 || cell.OriginalIndex >= len(s.records) {
		return fmt.Errorf("row %d out of range: %w", cell.OriginalIndex+1, pipelineerrors.ErrInvalidInput)
	}
	rec := s.records[cell.OriginalIndex]
	if !rec.Editable[cell.Field] {
		return fmt.Errorf("%s on row %d is not editable: %w", cell.Field.Label(), cell.OriginalIndex+1, pipelineerrors.ErrInvalidInput)
	}
	return s.workflow.Activate(cell, rec.Value(cell.Field))
}

// CriticalCount is the number of rows that can never be imported because
// a required value is missing.
func (s *Session) CriticalCount() int {
	n := 0
	for _, r := range s.records {
		if r.Status == models.StatusErrorCritical {
			n++
		}
	}
	return n
}

// AcceptCritical records that rows with critical errors may be left out of
// the import.
func (s *Session) AcceptCritical() { s.acceptCritical = true }

// Blockers lists why the session cannot advance from its current stage.
func (s *Session) Blockers() []string {
	var reasons []string
	switch s.stage {
	case StageUpload:
		if s.table == nil {
			reasons = append(reasons, "no file uploaded")
		} else if len(s.table.Rows) == 0 {
			reasons = append(reasons, "the uploaded file has no data rows")
		}
	case StageMapping:
		if err := s.workflow.Blocking(); err != nil {
			cell := s.workflow.Cell()
			reasons = append(reasons, fmt.Sprintf("the edit to %s on row %d is awaiting confirmation", cell.Field.Label(), cell.OriginalIndex+1))
		}
		for _, f := range s.mapping.Missing() {
			reasons = append(reasons, fmt.Sprintf("required field %s is not mapped", f.Label()))
		}
	case StageSummary:
		if n := s.CriticalCount(); n > 0 && !s.acceptCritical {
			reasons = append(reasons, fmt.Sprintf("%d row(s) have critical errors; fix them or accept that they are skipped", n))
		}
		if len(s.outcome.Ready) == 0 {
			reasons = append(reasons, "no rows are ready to import")
		}
	case StageImporting:
		reasons = append(reasons, "import in progress")
	case StageReport:
		reasons = append(reasons, "import finished")
	}
	return reasons
}

// Advance moves to the next stage. A pending edit blocks with a
// ConfirmationRequiredError; any other blocker with a StageBlockedError.
func (s *Session) Advance() error {
	if err := s.workflow.Blocking(); err != nil {
		return err
	}
	if reasons := s.Blockers(); len(reasons) > 0 {
		return &pipelineerrors.StageBlockedError{Stage: s.stage.String(), Reasons: reasons}
	}
	if s.workflow.State() != edits.Viewing {
		s.workflow.Abort()
	}

	to, err := s.fire(eventAdvance)
	if err != nil {
		return err
	}
	switch to {
	case StageMapping:
		s.recompute()
	case StageSummary:
		s.mapping.Freeze()
		s.recompute()
	}
	logging.Default().Info().Str("stage", to.String()).Int("ready", len(s.outcome.Ready)).Int("skipped", len(s.outcome.Skipped)).Msg("stage entered")
	return nil
}

// Back returns to the previous stage and discards everything computed
// after it. The uploaded rows always survive.
func (s *Session) Back() error {
	to, err := s.fire(eventBack)
	if err != nil {
		return err
	}
	s.discardFrom(to)
	if to == StageMapping {
		s.mapping = s.mapping.Clone()
		s.recompute()
	}
	return nil
}

func (s *Session) fire(ev event) (Stage, error) {
	to, ok := transitions[s.stage][ev]
	if !ok {
		return s.stage, &pipelineerrors.TransitionError{Machine: "pipeline", From: s.stage.String(), Event: string(ev)}
	}
	s.stage = to
	return to, nil
}

// discardFrom drops state computed at or after stage.
func (s *Session) discardFrom(stage Stage) {
	s.workflow.Abort()
	s.workflow.Ledger().DiscardPending()
	s.result, s.importErr = nil, nil
	s.acceptCritical = false
	if stage <= StageUpload {
		s.mapping = mapping.New()
		if s.table != nil {
			s.mapping = mapping.Suggest(s.table.Headers)
		}
		s.resetEdits()
		s.records = nil
		s.outcome = models.DedupOutcome{}
	}
}

// StartImport enters the importing stage and returns the ready set.
func (s *Session) StartImport() ([]models.NormalizedRecord, error) {
	if s.stage != StageSummary {
		return nil, &pipelineerrors.TransitionError{Machine: "pipeline", From: s.stage.String(), Event: "import"}
	}
	if err := s.Advance(); err != nil {
		return nil, err
	}
	ready := make([]models.NormalizedRecord, len(s.outcome.Ready))
	copy(ready, s.outcome.Ready)
	return ready, nil
}

// FinishImport stores the import outcome and moves to the report.
func (s *Session) FinishImport(result *models.ImportBatchResult, err error) error {
	if _, ferr := s.fire(eventFinish); ferr != nil {
		return ferr
	}
	s.result, s.importErr = result, err
	return nil
}

// Import runs the whole importing stage with orch.
func (s *Session) Import(ctx context.Context, orch *importer.Orchestrator) (*models.ImportBatchResult, error) {
	ready, err := s.StartImport()
	if err != nil {
		return nil, err
	}
	result, runErr := orch.Run(ctx, ready)
	if err := s.FinishImport(result, runErr); err != nil {
		return result, err
	}
	return result, runErr
}

// Report lists every uploaded row with its final outcome.
func (s *Session) Report() []csv.ReportLine {
	return csv.BuildReport(s.outcome, s.result)
}
