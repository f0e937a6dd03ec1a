package mapping

import (
	"errors"
	"path/filepath"
	"testing"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestExactSynonyms(t *testing.T) {
	headers := []string{"Nome e Cognome", " E-mail ", "Telefono", "Ragione Sociale", "Partita IVA", "LinkedIn URL", "Città", "Note"}

	m := Suggest(headers)

	assert.Equal(t, NameModeFull, m.NameMode)
	assert.Equal(t, "Nome e Cognome", m.Column(models.FieldName))
	assert.Equal(t, " E-mail ", m.Column(models.FieldEmail))
	assert.Equal(t, "Telefono", m.Column(models.FieldPhone))
	assert.Equal(t, "Ragione Sociale", m.Column(models.FieldCompany))
	assert.Equal(t, "Partita IVA", m.Column(models.FieldVATNumber))
	assert.Equal(t, "LinkedIn URL", m.Column(models.FieldLinkedIn))
	assert.Equal(t, "Città", m.Column(models.FieldCity))
	assert.Equal(t, []string{"Note"}, m.Notes)
	assert.Empty(t, m.Missing())
}

func TestSuggestSplitName(t *testing.T) {
	m := Suggest([]string{"First Name", "Last Name", "Account Name", "Email"})

	assert.Equal(t, NameModeSplit, m.NameMode)
	assert.Equal(t, "First Name", m.FirstName)
	assert.Equal(t, "Last Name", m.LastName)
	assert.Equal(t, "", m.Column(models.FieldName), "split mode must not also bind a full column")
	assert.True(t, m.IsMapped(models.FieldName))
}

func TestSuggestPrefersFullName(t *testing.T) {
	m := Suggest([]string{"First Name", "Full Name", "Last Name"})

	assert.Equal(t, NameModeFull, m.NameMode)
	assert.Equal(t, "Full Name", m.Column(models.FieldName))
	assert.Empty(t, m.FirstName)
	assert.Empty(t, m.LastName)
}

func TestSuggestTieBreakIsDeclarationOrder(t *testing.T) {
	// "Company Name" contains the name synonym "name" and is an exact
	// company synonym; the exact pass runs first, so company wins it and
	// the name field stays unmapped rather than stealing it.
	m := Suggest([]string{"Company Name"})
	assert.Equal(t, "Company Name", m.Column(models.FieldCompany))
	assert.False(t, m.IsMapped(models.FieldName))
	assert.Equal(t, []models.Field{models.FieldName}, m.Missing())

	// A header matching two targets only by containment goes to the one
	// declared first.
	m = Suggest([]string{"Company Phone Line"})
	assert.Equal(t, "Company Phone Line", m.Column(models.FieldPhone))
	assert.Empty(t, m.Column(models.FieldCompany))
}

func TestSuggestNeverFails(t *testing.T) {
	m := Suggest(nil)
	assert.Empty(t, m.Columns)
	assert.Equal(t, []models.Field{models.FieldName}, m.Missing())

	m = Suggest([]string{"", "???", "foo"})
	assert.Empty(t, m.UsedColumns())
}

func TestSuggestIsDeterministic(t *testing.T) {
	headers := []string{"Name", "Mail", "Email", "Phone", "Mobile", "Comments", "Notes"}
	first := Suggest(headers)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Suggest(headers))
	}
	assert.Equal(t, "Email", first.Column(models.FieldEmail), "earlier synonym wins over earlier header")
	assert.Equal(t, []string{"Comments", "Notes"}, first.Notes)
}

func TestModesAreExclusive(t *testing.T) {
	m := Suggest([]string{"Name", "First", "Last"})
	require.Equal(t, "Name", m.Column(models.FieldName))

	require.NoError(t, m.SetSplitName("First", "Last"))
	assert.Equal(t, NameModeSplit, m.NameMode)
	assert.NotContains(t, m.Columns, models.FieldName)

	require.NoError(t, m.Set(models.FieldName, "Name"))
	assert.Equal(t, NameModeFull, m.NameMode)
	assert.Empty(t, m.FirstName)
	assert.Empty(t, m.LastName)

	require.NoError(t, m.SetNameMode(NameModeSplit))
	assert.False(t, m.IsMapped(models.FieldName))
}

func TestOverrideSurvivesReconcile(t *testing.T) {
	headers := []string{"Name", "Email", "Work Email"}
	m := Suggest(headers)
	require.NoError(t, m.Set(models.FieldEmail, "Work Email"))
	require.NoError(t, m.Set(models.FieldPhone, ""))

	next := Reconcile(headers, m)
	assert.Equal(t, "Work Email", next.Column(models.FieldEmail))
	assert.True(t, next.Overridden[models.FieldEmail])
	assert.Equal(t, "Name", next.Column(models.FieldName))
}

func TestSetAddsNotesColumn(t *testing.T) {
	m := Suggest([]string{"Name", "Notes", "Comments", "Extra"})
	require.Equal(t, []string{"Notes", "Comments"}, m.Notes)

	require.NoError(t, m.Set(models.FieldNotes, "Extra"))
	require.NoError(t, m.Set(models.FieldNotes, "Extra"))
	assert.Equal(t, []string{"Notes", "Comments", "Extra"}, m.Notes)

	require.NoError(t, m.SetNotes([]string{"Extra"}))
	assert.Equal(t, []string{"Extra"}, m.Notes)

	require.NoError(t, m.Set(models.FieldNotes, ""))
	assert.Empty(t, m.Notes)
}

func TestFrozenMapping(t *testing.T) {
	m := Suggest([]string{"Name"})
	m.Freeze()

	err := m.Set(models.FieldEmail, "Email")
	assert.True(t, errors.Is(err, pipelineerrors.ErrMappingFrozen))
	assert.False(t, m.Clone().Frozen())
}

func TestSetUnknownField(t *testing.T) {
	m := New()
	err := m.Set(models.Field("shoe_size"), "Shoes")
	assert.True(t, errors.Is(err, pipelineerrors.ErrInvalidInput))
}

func TestRestrict(t *testing.T) {
	m := New()
	require.NoError(t, m.SetSplitName("First", "Gone"))
	require.NoError(t, m.Set(models.FieldEmail, "Email"))
	require.NoError(t, m.SetNotes([]string{"Memo", "Old"}))

	dropped, err := m.Restrict([]string{"First", "Email", "Memo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gone", "Old"}, dropped)
	assert.Equal(t, []string{"Memo"}, m.Notes)
	assert.Equal(t, "First", m.FirstName)
}

func TestProfileRoundTrip(t *testing.T) {
	m := Suggest([]string{"Nome", "Cognome", "Email", "Note", "Descrizione"})
	path := filepath.Join(t.TempDir(), "profile.yaml")

	require.NoError(t, SaveProfile(path, Profile{Name: "fiera", Mapping: m}))
	loaded, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "fiera", loaded.Name)
	assert.Equal(t, NameModeSplit, loaded.Mapping.NameMode)
	assert.Equal(t, "Nome", loaded.Mapping.FirstName)
	assert.Equal(t, "Email", loaded.Mapping.Column(models.FieldEmail))
	assert.Equal(t, []string{"Note", "Descrizione"}, loaded.Mapping.Notes)
	assert.True(t, loaded.Mapping.Overridden[models.FieldName])
	assert.True(t, loaded.Mapping.Overridden[models.FieldNotes])
}

func TestParseProfileRejectsUnknownField(t *testing.T) {
	_, err := ParseProfile([]byte("mapping:\n  columns:\n    shoe_size: Shoes\n"))
	assert.True(t, errors.Is(err, pipelineerrors.ErrInvalidInput))

	_, err = ParseProfile([]byte("mapping:\n  name_mode: both\n"))
	assert.True(t, errors.Is(err, pipelineerrors.ErrInvalidInput))
}
