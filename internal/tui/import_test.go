package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crmimport/internal/csv"
	"crmimport/internal/edits"
	"crmimport/internal/importer"
	"crmimport/internal/logging"
	"crmimport/internal/models"
	"crmimport/internal/pipeline"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { logging.Discard() }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loadedModel(t *testing.T) *ImportModel {
	t.Helper()
	table, err := csv.ParseCSV(strings.NewReader("Name,Email\nAcme,info@acme.it\n,orphan@example.com\nAcme,info@acme.it\n"), "contacts.csv", csv.Options{})
	require.NoError(t, err)

	m := NewImportModel(Options{Submitter: importer.DryRunSubmitter{}, ChunkSize: 1})
	m.Update(fileLoadedMsg{table: table})
	require.Equal(t, pipeline.StageMapping, m.session.Stage())
	return m
}

// drain runs cmd and feeds its messages back until the import finishes.
func drain(t *testing.T, m *ImportModel, cmd tea.Cmd) {
	t.Helper()
	for i := 0; cmd != nil && i < 100; i++ {
		msg := cmd()
		if msg == nil {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func TestWizardRunsImport(t *testing.T) {
	m := loadedModel(t)
	assert.Contains(t, m.View(), "Name")

	m.Update(key("n"))
	require.Equal(t, pipeline.StageSummary, m.session.Stage())
	assert.Contains(t, m.View(), "Ready to import:")

	_, cmd := m.Update(key("enter"))
	assert.Nil(t, cmd, "critical rows must be accepted first")
	require.NotNil(t, m.err)

	m.Update(key("a"))
	_, cmd = m.Update(key("enter"))
	require.Equal(t, pipeline.StageImporting, m.session.Stage())
	assert.True(t, m.Busy())

	drain(t, m, cmd)
	require.Equal(t, pipeline.StageReport, m.session.Stage())
	result, err := m.session.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Contains(t, m.View(), "Import completed")
}

func TestWizardEditRequiresConfirmation(t *testing.T) {
	m := loadedModel(t)

	m.Update(key("tab"))
	m.rows.SetCursor(1)
	m.Update(key("e"))
	require.Equal(t, edits.Editing, m.session.Workflow().State())
	assert.True(t, m.Busy())

	m.Update(key("Orphan Ltd"))
	m.Update(key("enter"))
	require.Equal(t, edits.PendingConfirmation, m.session.Workflow().State())
	assert.Contains(t, m.View(), `"Orphan Ltd"`)

	m.Update(key("n"))
	assert.Equal(t, edits.Viewing, m.session.Workflow().State())
	assert.Equal(t, models.StatusErrorCritical, m.session.Records()[1].Status)

	m.Update(key("e"))
	m.Update(key("Orphan Ltd"))
	m.Update(key("enter"))
	m.Update(key("y"))
	assert.Equal(t, "Orphan Ltd", m.session.Records()[1].Value(models.FieldName))
	assert.Zero(t, m.session.CriticalCount())

	m.Update(key("n"))
	require.Equal(t, pipeline.StageSummary, m.session.Stage())
	_, cmd := m.Update(key("enter"))
	drain(t, m, cmd)
	require.Equal(t, pipeline.StageReport, m.session.Stage())
	assert.Contains(t, m.View(), "Manual corrections:")
	assert.Contains(t, m.View(), `row 2 Name: "Orphan Ltd"`)
}

func TestWizardShowsPendingEditBlocker(t *testing.T) {
	m := loadedModel(t)
	m.Update(key("tab"))
	m.rows.SetCursor(1)
	m.Update(key("e"))
	m.Update(key("Orphan Ltd"))
	m.Update(key("enter"))
	require.Equal(t, edits.PendingConfirmation, m.session.Workflow().State())

	assert.Contains(t, m.View(), "the edit to Name on row 2 is awaiting confirmation")
}

func TestWizardReportsInterruptedImport(t *testing.T) {
	table, err := csv.ParseCSV(strings.NewReader("Name,Email\nAcme,info@acme.it\nBeta,beta@example.com\n"), "contacts.csv", csv.Options{})
	require.NoError(t, err)

	failing := importer.SubmitterFunc(func(context.Context, models.ChunkRequest) (*models.ChunkResponse, error) {
		return nil, errors.New("connection refused")
	})
	m := NewImportModel(Options{Submitter: failing, ChunkSize: 1})
	m.Update(fileLoadedMsg{table: table})
	m.Update(key("n"))
	_, cmd := m.Update(key("enter"))
	drain(t, m, cmd)

	require.Equal(t, pipeline.StageReport, m.session.Stage())
	_, runErr := m.session.Result()
	require.Error(t, runErr)
	assert.Contains(t, m.View(), "Import interrupted")
}

func TestWizardMappingChangesRecompute(t *testing.T) {
	m := loadedModel(t)

	// Name is the first field line; stepping right moves it to Email.
	m.Update(key("right"))
	assert.Equal(t, "Email", m.session.Mapping().Column(models.FieldName))
	assert.Equal(t, "info@acme.it", m.session.Records()[0].Value(models.FieldName))

	m.Update(key("x"))
	assert.False(t, m.session.Mapping().IsMapped(models.FieldName))
	m.Update(key("n"))
	assert.Equal(t, pipeline.StageMapping, m.session.Stage())
	assert.Contains(t, m.View(), "required field Name is not mapped")
}

func TestWizardNotesKeepAggregatingAfterManualChange(t *testing.T) {
	table, err := csv.ParseCSV(strings.NewReader("Name,Notes,Comments,Extra\nAcme,met at fair,call back,vip\n"), "contacts.csv", csv.Options{})
	require.NoError(t, err)
	m := NewImportModel(Options{Submitter: importer.DryRunSubmitter{}})
	m.Update(fileLoadedMsg{table: table})
	require.Equal(t, []string{"Notes", "Comments"}, m.session.Mapping().Notes)

	lines := fieldLines(m.session.Mapping())
	m.fieldRow = len(lines) - 1
	require.Equal(t, models.FieldNotes, lines[m.fieldRow].field)

	m.Update(key("left"))
	assert.Equal(t, "Extra", m.notePick)
	assert.Equal(t, []string{"Notes", "Comments"}, m.session.Mapping().Notes, "moving the cursor does not change the mapping")

	m.Update(key("space"))
	assert.Equal(t, []string{"Notes", "Comments", "Extra"}, m.session.Mapping().Notes)
	assert.Equal(t, "Notes: met at fair\n\nComments: call back\n\nExtra: vip", m.session.Records()[0].Value(models.FieldNotes))

	m.Update(key("left"))
	m.Update(key("space"))
	assert.Equal(t, []string{"Notes", "Extra"}, m.session.Mapping().Notes)
	assert.Equal(t, "Notes: met at fair\n\nExtra: vip", m.session.Records()[0].Value(models.FieldNotes))
	assert.True(t, m.session.Mapping().Overridden[models.FieldNotes])

	m.Update(key("x"))
	assert.Empty(t, m.session.Mapping().Notes)
}
