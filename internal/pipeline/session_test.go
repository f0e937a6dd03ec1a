package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crmimport/internal/csv"
	"crmimport/internal/dedup"
	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/importer"
	"crmimport/internal/mapping"
	"crmimport/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contacts = `Nominativo,Email,Partita IVA,Telefono
Acme SRL,info@acme.it,IT12345678901,+39 02 1234567
ACME S.r.l.,,12345678901,
,lone@example.com,,
,,,
Beta Capital,beta@example.com,,
`

func loaded(t *testing.T, data string) *Session {
	t.Helper()
	table, err := csv.ParseCSV(strings.NewReader(data), "contacts.csv", csv.Options{})
	require.NoError(t, err)

	s := NewSession()
	require.NoError(t, s.Load(table))
	require.NoError(t, s.Advance())
	require.Equal(t, StageMapping, s.Stage())
	return s
}

func insertAll() importer.Submitter {
	return importer.SubmitterFunc(func(_ context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
		resp := &models.ChunkResponse{}
		for i := range req.Rows {
			resp.Inserted++
			resp.Results = append(resp.Results, models.ChunkResult{Index: i, Action: models.ActionInserted, MatchStrategy: "new"})
		}
		return resp, nil
	})
}

func readyIndexes(o models.DedupOutcome) []int {
	var out []int
	for _, r := range o.Ready {
		out = append(out, r.OriginalIndex)
	}
	return out
}

func TestSessionFullFlow(t *testing.T) {
	s := loaded(t, contacts)

	m := s.Mapping()
	assert.Equal(t, "Nominativo", m.Column(models.FieldName))
	assert.Equal(t, "Partita IVA", m.Column(models.FieldVATNumber))

	assert.Equal(t, []int{0, 4}, readyIndexes(s.Outcome()))
	assert.Len(t, s.Outcome().Skipped, 3)
	assert.Equal(t, 1, s.CriticalCount())

	require.NoError(t, s.Advance())
	require.Equal(t, StageSummary, s.Stage())

	_, err := s.Import(context.Background(), &importer.Orchestrator{ChunkSize: 1, Submitter: insertAll()})
	require.ErrorIs(t, err, pipelineerrors.ErrStageBlocked)
	assert.Equal(t, StageSummary, s.Stage())

	s.AcceptCritical()
	result, err := s.Import(context.Background(), &importer.Orchestrator{ChunkSize: 1, Submitter: insertAll()})
	require.NoError(t, err)
	assert.Equal(t, StageReport, s.Stage())
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 2, result.ChunksTotal)

	lines := s.Report()
	require.Len(t, lines, 5)
	assert.Equal(t, models.ActionInserted, lines[0].Action)
	assert.Equal(t, csv.OutcomeSkipped, lines[1].Outcome)
	assert.Contains(t, lines[1].Reasons, "duplicate")
	assert.Contains(t, lines[2].Reasons, models.CodeMissingName)
}

func TestUnmappedNameBlocksMapping(t *testing.T) {
	s := loaded(t, "Contatto,Email\nMario Rossi,mario@example.com\n")

	err := s.Advance()
	var blocked *pipelineerrors.StageBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, StageMapping.String(), blocked.Stage)
	require.Len(t, blocked.Reasons, 1)
	assert.Contains(t, blocked.Reasons[0], "Name")

	require.NoError(t, s.UpdateMapping(func(m *mapping.FieldMapping) error {
		return m.Set(models.FieldName, "Contatto")
	}))
	assert.Equal(t, "Mario Rossi", s.Records()[0].Value(models.FieldName))
	require.NoError(t, s.Advance())
}

func TestPendingEditBlocksUntilConfirmed(t *testing.T) {
	s := loaded(t, contacts)
	cell := models.CellKey{OriginalIndex: 2, Field: models.FieldName}

	require.NoError(t, s.BeginEdit(cell))
	require.NoError(t, s.Workflow().Commit("Gamma Partners"))

	err := s.Advance()
	require.ErrorIs(t, err, pipelineerrors.ErrConfirmationRequired)
	assert.Equal(t, StageMapping, s.Stage())
	assert.Contains(t, s.Blockers(), "the edit to Name on row 3 is awaiting confirmation")
	assert.Equal(t, models.StatusErrorCritical, s.Records()[2].Status, "pending edit must not leak into records")

	require.NoError(t, s.Workflow().Confirm())
	assert.Empty(t, s.Blockers())
	rec := s.Records()[2]
	assert.Equal(t, "Gamma Partners", rec.Value(models.FieldName))
	assert.True(t, rec.HasCode(models.CodeManualEdit))
	assert.Zero(t, s.CriticalCount())
	assert.Equal(t, []int{0, 2, 4}, readyIndexes(s.Outcome()))

	require.NoError(t, s.Advance())
}

func TestEditRejectsNonEditableCells(t *testing.T) {
	s := loaded(t, contacts)

	err := s.BeginEdit(models.CellKey{OriginalIndex: 0, Field: models.FieldCity})
	assert.ErrorIs(t, err, pipelineerrors.ErrInvalidInput)

	err = s.BeginEdit(models.CellKey{OriginalIndex: 3, Field: models.FieldName})
	assert.ErrorIs(t, err, pipelineerrors.ErrInvalidInput, "empty rows are not editable")

	err = s.BeginEdit(models.CellKey{OriginalIndex: 99, Field: models.FieldName})
	assert.ErrorIs(t, err, pipelineerrors.ErrInvalidInput)
}

func TestMappingFrozenOutsideMappingStage(t *testing.T) {
	s := loaded(t, contacts)
	require.NoError(t, s.Advance())

	err := s.UpdateMapping(func(m *mapping.FieldMapping) error { return m.Set(models.FieldCity, "Telefono") })
	assert.ErrorIs(t, err, pipelineerrors.ErrMappingFrozen)

	require.NoError(t, s.Back())
	assert.Equal(t, StageMapping, s.Stage())
	assert.NoError(t, s.UpdateMapping(func(m *mapping.FieldMapping) error { return m.Set(models.FieldCity, "Telefono") }))
}

func TestBackDiscardsDownstreamState(t *testing.T) {
	s := loaded(t, contacts)
	require.NoError(t, s.BeginEdit(models.CellKey{OriginalIndex: 2, Field: models.FieldName}))
	require.NoError(t, s.Workflow().Commit("Gamma Partners"))
	require.NoError(t, s.Workflow().Confirm())
	require.Equal(t, 1, s.Workflow().Ledger().ConfirmedCount())

	require.NoError(t, s.Back())
	assert.Equal(t, StageUpload, s.Stage())
	require.NotNil(t, s.Table())
	assert.Len(t, s.Table().Rows, 5)
	assert.Zero(t, s.Workflow().Ledger().ConfirmedCount())
	assert.Nil(t, s.Records())

	require.NoError(t, s.Advance())
	assert.Equal(t, models.StatusErrorCritical, s.Records()[2].Status)
}

func TestTransportFailureEndsInReport(t *testing.T) {
	s := loaded(t, contacts)
	require.NoError(t, s.Advance())
	s.AcceptCritical()

	calls := 0
	failing := importer.SubmitterFunc(func(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("connection refused")
		}
		return insertAll().Submit(ctx, req)
	})

	result, err := s.Import(context.Background(), &importer.Orchestrator{ChunkSize: 1, Submitter: failing})
	require.ErrorIs(t, err, pipelineerrors.ErrTransport)
	assert.Equal(t, StageReport, s.Stage())
	assert.Equal(t, 1, result.ChunksCompleted)

	stored, storedErr := s.Result()
	assert.Same(t, result, stored)
	assert.Equal(t, err, storedErr)

	require.NoError(t, s.Back())
	assert.Equal(t, StageUpload, s.Stage())
	stored, storedErr = s.Result()
	assert.Nil(t, stored)
	assert.NoError(t, storedErr)
}

func TestInvalidTransitions(t *testing.T) {
	s := NewSession()
	assert.ErrorIs(t, s.Back(), pipelineerrors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Advance(), pipelineerrors.ErrStageBlocked)
	assert.ErrorIs(t, s.FinishImport(nil, nil), pipelineerrors.ErrInvalidTransition)

	s = loaded(t, contacts)
	_, err := s.StartImport()
	assert.ErrorIs(t, err, pipelineerrors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Load(s.Table()), pipelineerrors.ErrInvalidTransition)
}

func TestBackDropsPendingDrafts(t *testing.T) {
	s := loaded(t, contacts)
	ledger := s.Workflow().Ledger()
	require.NoError(t, s.BeginEdit(models.CellKey{OriginalIndex: 2, Field: models.FieldName}))
	require.NoError(t, s.Workflow().Commit("Gamma Partners"))
	require.True(t, ledger.HasPending())

	require.NoError(t, s.Back())
	assert.False(t, ledger.HasPending())
	assert.Zero(t, ledger.ConfirmedCount())
}

func TestProfileKeepsSuggestionsForUnboundFields(t *testing.T) {
	s := loaded(t, "Ragione sociale,Email,Note,Commenti\nAcme,info@acme.it,vip,call back\n")

	saved := mapping.New()
	require.NoError(t, saved.Set(models.FieldName, "Ragione sociale"))
	require.NoError(t, saved.Set(models.FieldPhone, "Cellulare"))

	dropped, err := s.ApplyProfile(saved)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cellulare"}, dropped)

	m := s.Mapping()
	assert.Equal(t, "Ragione sociale", m.Column(models.FieldName))
	assert.True(t, m.Overridden[models.FieldName])
	assert.Equal(t, "Email", m.Column(models.FieldEmail), "unbound in the profile, still suggested")
	assert.Equal(t, []string{"Note", "Commenti"}, m.Notes)
	assert.False(t, m.IsMapped(models.FieldPhone))
	assert.False(t, m.Overridden[models.FieldPhone])
	assert.Equal(t, "Acme", s.Records()[0].Value(models.FieldName))
}

func TestTieRuleChangesRepresentative(t *testing.T) {
	s := loaded(t, "Name,Email\nAlpha,a@x.io\nBeta,a@x.io\n")
	assert.Equal(t, []int{0}, readyIndexes(s.Outcome()))

	require.NoError(t, s.SetTieRule(dedup.ChallengerWinsTie))
	assert.Equal(t, []int{1}, readyIndexes(s.Outcome()))

	require.NoError(t, s.Advance())
	assert.ErrorIs(t, s.SetTieRule(dedup.IncumbentWinsTie), pipelineerrors.ErrInvalidTransition)
}
