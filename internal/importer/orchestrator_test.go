package importer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readySet(n int) []models.NormalizedRecord {
	out := make([]models.NormalizedRecord, n)
	for i := range out {
		out[i] = models.NormalizedRecord{
			// Original indexes are sparse as skipped rows leave gaps.
			OriginalIndex: i * 2,
			Fields:        map[models.Field]string{models.FieldName: "Contact " + strconv.Itoa(i)},
			Status:        models.StatusOK,
		}
	}
	return out
}

// recorder inserts every row and remembers chunk sizes.
type recorder struct {
	sizes []int
	fail  int // 1-based chunk to fail, 0 for none
}

func (r *recorder) Submit(_ context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
	r.sizes = append(r.sizes, len(req.Rows))
	if len(r.sizes) == r.fail {
		return nil, errors.New("connection reset")
	}
	resp := &models.ChunkResponse{}
	for i := range req.Rows {
		action := models.ActionInserted
		if i%5 == 0 {
			action = models.ActionUpdated
			resp.Updated++
		} else {
			resp.Inserted++
		}
		resp.Results = append(resp.Results, models.ChunkResult{Index: i, Action: action, MatchStrategy: "name"})
	}
	return resp, nil
}

func TestRunChunksSequentially(t *testing.T) {
	rec := &recorder{}
	var progress []Progress
	o := &Orchestrator{ChunkSize: 50, Submitter: rec, Progress: func(p Progress) { progress = append(progress, p) }}

	result, err := o.Run(context.Background(), readySet(120))
	require.NoError(t, err)

	assert.Equal(t, []int{50, 50, 20}, rec.sizes)
	assert.Equal(t, 120, result.Accounted())
	assert.Equal(t, 120, result.Processed)
	assert.Equal(t, 120, result.Total)
	assert.Equal(t, 3, result.ChunksCompleted)
	assert.NotEmpty(t, result.JobID)

	require.Len(t, progress, 3)
	assert.Equal(t, []int{50, 100, 120}, []int{progress[0].Processed, progress[1].Processed, progress[2].Processed})
	assert.Equal(t, Progress{JobID: result.JobID, Chunk: 3, ChunksTotal: 3, Processed: 120, Total: 120}, progress[2])

	require.Len(t, result.Rows, 120)
	assert.Equal(t, 55, result.Rows[55].ReadyIndex)
	assert.Equal(t, 110, result.Rows[55].OriginalIndex)
	assert.Equal(t, models.ActionUpdated, result.Rows[55].Action, "index is chunk relative")
	assert.Equal(t, models.ActionInserted, result.Rows[56].Action)
}

func TestRunAggregatesAcrossChunkSizes(t *testing.T) {
	for _, tc := range []struct{ n, size, chunks int }{
		{0, 50, 0},
		{1, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{7, 3, 3},
	} {
		rec := &recorder{}
		result, err := (&Orchestrator{ChunkSize: tc.size, Submitter: rec}).Run(context.Background(), readySet(tc.n))
		require.NoError(t, err)
		assert.Len(t, rec.sizes, tc.chunks, "n=%d size=%d", tc.n, tc.size)
		assert.Equal(t, tc.n, result.Accounted())
		assert.Equal(t, tc.n, result.Processed)
	}
}

func TestTransportFailureAborts(t *testing.T) {
	rec := &recorder{fail: 2}
	result, err := (&Orchestrator{ChunkSize: 50, Submitter: rec}).Run(context.Background(), readySet(120))

	require.Error(t, err)
	assert.True(t, errors.Is(err, pipelineerrors.ErrTransport))
	te, ok := pipelineerrors.AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, 1, te.Chunk)
	assert.Equal(t, 1, te.ChunksCompleted)
	assert.Contains(t, err.Error(), "chunk 2 failed after 1 completed chunk(s)")

	assert.Equal(t, []int{50, 50}, rec.sizes, "no chunk after the failure")
	assert.Equal(t, 50, result.Processed)
	assert.Equal(t, 50, result.Accounted())
	assert.Equal(t, 1, result.ChunksCompleted)
}

func TestCancelBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	o := &Orchestrator{ChunkSize: 50, Submitter: rec}
	o.Progress = func(p Progress) {
		if p.Chunk == 1 {
			cancel()
		}
	}

	result, err := o.Run(ctx, readySet(120))
	assert.ErrorIs(t, err, pipelineerrors.ErrCanceled)
	assert.Equal(t, []int{50}, rec.sizes)
	assert.Equal(t, 1, result.ChunksCompleted)
}

func TestStartedChunkIgnoresCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := SubmitterFunc(func(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
		cancel()
		assert.NoError(t, ctx.Err(), "a submitted chunk runs to completion")
		return &models.ChunkResponse{Inserted: len(req.Rows)}, nil
	})

	result, err := (&Orchestrator{ChunkSize: 10, Submitter: sub}).Run(ctx, readySet(10))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Inserted)
}

func TestIssuesMapToOriginalIndex(t *testing.T) {
	sub := SubmitterFunc(func(_ context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
		return &models.ChunkResponse{
			Inserted: len(req.Rows) - 1,
			Skipped:  1,
			Warnings: []models.ChunkIssue{{Index: 0, Reason: "phone looks short"}},
			Errors:   []models.ChunkIssue{{Index: 1, Reason: "name is required"}},
			Details:  []models.ChunkDetail{{Index: 0, Action: models.ActionInserted}, {Index: 1, Action: models.ActionSkipped}},
		}, nil
	})

	result, err := (&Orchestrator{ChunkSize: 2, Submitter: sub}).Run(context.Background(), readySet(4))
	require.NoError(t, err)

	require.Len(t, result.Errors, 2)
	assert.Equal(t, models.RowIssue{OriginalIndex: 6, ReadyIndex: 3, Reason: "name is required"}, result.Errors[1])
	assert.Equal(t, models.ActionSkipped, result.Rows[3].Action, "details are used without results")
	assert.Equal(t, []string{"name is required"}, result.Rows[3].Errors)
	assert.Equal(t, []string{"phone looks short"}, result.Rows[2].Warnings)
}

func TestMissingOutcomeIsUnknown(t *testing.T) {
	sub := SubmitterFunc(func(_ context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
		return &models.ChunkResponse{Inserted: len(req.Rows)}, nil
	})
	result, err := (&Orchestrator{Submitter: sub}).Run(context.Background(), readySet(3))
	require.NoError(t, err)
	for _, r := range result.Rows {
		assert.Equal(t, models.ActionUnknown, r.Action)
	}
}

func TestBuildRowDowngradesErrors(t *testing.T) {
	row := BuildRow(models.NormalizedRecord{
		Fields: map[models.Field]string{models.FieldName: "Zeta", models.FieldEmail: "not-an-email", models.FieldVATNumber: ""},
		Status: models.StatusError,
	})
	assert.Equal(t, models.StatusWarning, row.Status)
	assert.True(t, row.Flagged)
	assert.Equal(t, "not-an-email", row.Email)
	assert.Empty(t, row.VATNumber)

	ok := BuildRow(models.NormalizedRecord{Fields: map[models.Field]string{models.FieldName: "Eta"}, Status: models.StatusOK})
	assert.False(t, ok.Flagged)
	assert.Equal(t, models.StatusOK, ok.Status)
}

func TestHTTPSubmitter(t *testing.T) {
	var got models.ChunkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "job-1", r.Header.Get("X-Import-Job"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(models.ChunkResponse{Inserted: len(got.Rows)})
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL, time.Second)
	s.JobID = "job-1"
	resp, err := s.Submit(context.Background(), BuildRequest(readySet(2)))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Inserted)
	assert.Equal(t, "Contact 1", got.Rows[1].Name)
}

func TestHTTPSubmitterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := (&Orchestrator{Submitter: NewHTTPSubmitter(srv.URL, time.Second)}).Run(context.Background(), readySet(3))
	te, ok := pipelineerrors.AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Zero(t, te.ChunksCompleted)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestDryRunSubmitter(t *testing.T) {
	result, err := (&Orchestrator{ChunkSize: 2, Submitter: DryRunSubmitter{}}).Run(context.Background(), readySet(3))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, models.ActionSkipped, result.Rows[2].Action)
}
