package edits

import (
	"errors"
	"testing"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nameCell = models.CellKey{OriginalIndex: 4, Field: models.FieldName}

func TestConfirmFlow(t *testing.T) {
	w := NewWorkflow(nil)
	var recomputed []models.CellKey
	w.OnConfirm = func(k models.CellKey) { recomputed = append(recomputed, k) }

	require.NoError(t, w.Activate(nameCell, "Mario Rosi"))
	assert.Equal(t, Editing, w.State())

	require.NoError(t, w.Commit(" Mario Rossi "))
	assert.Equal(t, PendingConfirmation, w.State())
	preview, ok := w.Preview()
	assert.True(t, ok)
	assert.Equal(t, "Mario Rossi", preview)
	assert.True(t, w.Ledger().HasPending())
	_, confirmed := w.Ledger().Confirmed(nameCell)
	assert.False(t, confirmed, "pending edits are invisible to normalization")

	require.NoError(t, w.Confirm())
	assert.Equal(t, Viewing, w.State())
	v, ok := w.Ledger().Confirmed(nameCell)
	assert.True(t, ok)
	assert.Equal(t, "Mario Rossi", v)
	assert.False(t, w.Ledger().HasPending())
	assert.Equal(t, []models.CellKey{nameCell}, recomputed)
}

func TestCommitUnchangedReturnsToViewing(t *testing.T) {
	w := NewWorkflow(nil)
	require.NoError(t, w.Activate(nameCell, "Anna"))
	require.NoError(t, w.Commit("Anna "))

	assert.Equal(t, Viewing, w.State())
	assert.False(t, w.Ledger().HasPending())
	assert.Zero(t, w.Ledger().ConfirmedCount())
}

func TestCommitEmptyDiscards(t *testing.T) {
	w := NewWorkflow(nil)
	require.NoError(t, w.Activate(nameCell, "Anna"))
	require.NoError(t, w.Commit("   "))
	assert.Equal(t, Viewing, w.State())
	assert.False(t, w.Ledger().HasPending())
}

func TestCancelFromEitherState(t *testing.T) {
	w := NewWorkflow(nil)

	require.NoError(t, w.Activate(nameCell, "A"))
	require.NoError(t, w.Cancel())
	assert.Equal(t, Viewing, w.State())

	require.NoError(t, w.Activate(nameCell, "A"))
	require.NoError(t, w.Commit("B"))
	require.NoError(t, w.Cancel())
	assert.Equal(t, Viewing, w.State())
	assert.False(t, w.Ledger().HasPending())
	_, ok := w.Ledger().Confirmed(nameCell)
	assert.False(t, ok)
}

func TestOnlyOneActiveCell(t *testing.T) {
	w := NewWorkflow(nil)
	require.NoError(t, w.Activate(nameCell, "A"))

	other := models.CellKey{OriginalIndex: 5, Field: models.FieldEmail}
	err := w.Activate(other, "x@y.z")
	assert.True(t, errors.Is(err, pipelineerrors.ErrInvalidTransition))
	assert.Equal(t, nameCell, w.Cell())

	require.NoError(t, w.Commit("B"))
	assert.Error(t, w.Activate(other, "x@y.z"))
}

func TestInvalidEvents(t *testing.T) {
	w := NewWorkflow(nil)
	assert.Error(t, w.Confirm())
	assert.Error(t, w.Commit("x"))
	assert.Error(t, w.Cancel())

	require.NoError(t, w.Activate(nameCell, "A"))
	assert.Error(t, w.Confirm(), "confirm needs a pending value")
}

func TestBlocking(t *testing.T) {
	w := NewWorkflow(nil)
	assert.NoError(t, w.Blocking())

	require.NoError(t, w.Activate(nameCell, "A"))
	assert.NoError(t, w.Blocking(), "typing alone does not block")

	require.NoError(t, w.Commit("B"))
	err := w.Blocking()
	assert.True(t, pipelineerrors.IsConfirmationRequired(err))

	w.Abort()
	assert.NoError(t, w.Blocking())
	assert.Equal(t, Viewing, w.State())
}

func TestConfirmedKeysOrder(t *testing.T) {
	w := NewWorkflow(nil)
	for _, k := range []models.CellKey{
		{OriginalIndex: 9, Field: models.FieldName},
		{OriginalIndex: 1, Field: models.FieldPhone},
		{OriginalIndex: 1, Field: models.FieldEmail},
	} {
		require.NoError(t, w.Activate(k, ""))
		w.SetDraft("v")
		require.NoError(t, w.Commit(w.Draft()))
		require.NoError(t, w.Confirm())
	}
	assert.Equal(t, []models.CellKey{
		{OriginalIndex: 1, Field: models.FieldEmail},
		{OriginalIndex: 1, Field: models.FieldPhone},
		{OriginalIndex: 9, Field: models.FieldName},
	}, w.Ledger().ConfirmedKeys())
}
