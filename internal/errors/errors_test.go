package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pipelineerrors "crmimport/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	t.Run("with line", func(t *testing.T) {
		err := pipelineerrors.NewParseError("contacts.csv", 4, errors.New("wrong number of fields"))
		assert.Equal(t, "failed to parse contacts.csv at line 4: wrong number of fields", err.Error())
		assert.True(t, errors.Is(err, pipelineerrors.ErrParse))
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("upload: %w", pipelineerrors.NewParseError("x.xlsx", 0, errors.New("no sheets")))
		assert.True(t, pipelineerrors.IsParseError(err))
		assert.Equal(t, "upload: failed to parse x.xlsx: no sheets", err.Error())
	})
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("import: %w", &pipelineerrors.TransportError{Chunk: 2, ChunksCompleted: 2, StatusCode: 502, Err: cause})

	assert.True(t, errors.Is(err, pipelineerrors.ErrTransport))
	assert.True(t, errors.Is(err, cause))

	te, ok := pipelineerrors.AsTransportError(err)
	if assert.True(t, ok) {
		assert.Equal(t, 2, te.ChunksCompleted)
		assert.Equal(t, "chunk 3 failed after 2 completed chunk(s) (status 502): connection reset", te.Error())
	}
}

func TestConfirmationRequiredError(t *testing.T) {
	err := &pipelineerrors.ConfirmationRequiredError{OriginalIndex: 0, Field: "name"}
	assert.True(t, errors.Is(err, pipelineerrors.ErrConfirmationRequired))
	assert.True(t, errors.Is(err, pipelineerrors.ErrStageBlocked))
	assert.True(t, pipelineerrors.IsConfirmationRequired(err))
	assert.Contains(t, err.Error(), "row 1")
}

func TestStageBlockedError(t *testing.T) {
	err := &pipelineerrors.StageBlockedError{Stage: "mapping", Reasons: []string{"Name is not mapped", "2 rows have critical errors"}}
	assert.Equal(t, "cannot leave mapping: Name is not mapped; 2 rows have critical errors", err.Error())
	assert.True(t, errors.Is(err, pipelineerrors.ErrStageBlocked))
	assert.False(t, errors.Is(err, pipelineerrors.ErrConfirmationRequired))
}
