// Package importer submits the ready set to an insert-or-update endpoint in
// strictly ordered fixed-size chunks and aggregates what the endpoint did.
package importer

import (
	"context"
	"fmt"

	"crmimport/internal/config"
	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/logging"
	"crmimport/internal/models"

	"github.com/google/uuid"
)

// Submitter sends one chunk and waits for its result. Implementations must
// not return before the chunk is applied.
type Submitter interface {
	Submit(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error)

func (f SubmitterFunc) Submit(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
	return f(ctx, req)
}

// Progress is reported after every completed chunk.
type Progress struct {
	JobID       string
	Chunk       int
	ChunksTotal int
	Processed   int
	Total       int
}

// Orchestrator runs one import job.
type Orchestrator struct {
	ChunkSize int
	Submitter Submitter
	Progress  func(Progress)
	// JobID is generated when empty.
	JobID string
}

// Chunks splits ready into contiguous slices of at most size records.
func Chunks(ready []models.NormalizedRecord, size int) [][]models.NormalizedRecord {
	if size <= 0 {
		size = config.DefaultChunkSize
	}
	var chunks [][]models.NormalizedRecord
	for start := 0; start < len(ready); start += size {
		end := min(start+size, len(ready))
		chunks = append(chunks, ready[start:end])
	}
	return chunks
}

// Run submits ready chunk by chunk. The returned result is never nil and
// reflects every chunk that completed, also when err is set.
//
// A submitted chunk always runs to completion; ctx is only checked before
// each chunk starts. Any submission failure stops the run with a
// TransportError, leaving earlier chunks applied.
func (o *Orchestrator) Run(ctx context.Context, ready []models.NormalizedRecord) (*models.ImportBatchResult, error) {
	if o.JobID == "" {
		o.JobID = uuid.NewString()
	}
	ctx = logging.WithJob(ctx, o.JobID)
	log := logging.FromContext(ctx)

	chunks := Chunks(ready, o.ChunkSize)
	result := &models.ImportBatchResult{
		JobID:       o.JobID,
		ChunksTotal: len(chunks),
		Total:       len(ready),
	}

	log.Info().Int("rows", len(ready)).Int("chunks", len(chunks)).Msg("import started")

	start := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("chunks_completed", result.ChunksCompleted).Msg("import canceled")
			return result, fmt.Errorf("%w after %d of %d chunk(s)", pipelineerrors.ErrCanceled, result.ChunksCompleted, result.ChunksTotal)
		}

		resp, err := o.Submitter.Submit(context.WithoutCancel(ctx), BuildRequest(chunk))
		if err == nil && resp == nil {
			err = pipelineerrors.New("empty response")
		}
		if err != nil {
			te, ok := pipelineerrors.AsTransportError(err)
			if !ok {
				te = &pipelineerrors.TransportError{Err: err}
			}
			te.Chunk = i
			te.ChunksCompleted = result.ChunksCompleted
			log.Error().Err(err).Int("chunk", i+1).Int("chunks_completed", result.ChunksCompleted).Msg("chunk failed")
			return result, te
		}

		accumulate(result, resp, chunk, start)
		if got := resp.Inserted + resp.Updated + resp.Skipped; got != len(chunk) {
			log.Warn().Int("chunk", i+1).Int("rows", len(chunk)).Int("accounted", got).Msg("endpoint counts do not match chunk size")
		}

		start += len(chunk)
		result.ChunksCompleted++
		result.Processed = start

		log.Debug().Int("chunk", i+1).Int("inserted", resp.Inserted).Int("updated", resp.Updated).Int("skipped", resp.Skipped).Msg("chunk completed")
		if o.Progress != nil {
			o.Progress(Progress{
				JobID:       o.JobID,
				Chunk:       i + 1,
				ChunksTotal: len(chunks),
				Processed:   result.Processed,
				Total:       result.Total,
			})
		}
	}

	log.Info().
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("warnings", len(result.Warnings)).
		Int("errors", len(result.Errors)).
		Msg("import completed")
	return result, nil
}

// accumulate folds one chunk response into result. start is the ready
// index of the chunk's first record.
func accumulate(result *models.ImportBatchResult, resp *models.ChunkResponse, chunk []models.NormalizedRecord, start int) {
	result.Inserted += resp.Inserted
	result.Updated += resp.Updated
	result.Skipped += resp.Skipped

	originalIndex := func(i int) int {
		if i < 0 || i >= len(chunk) {
			return -1
		}
		return chunk[i].OriginalIndex
	}
	issue := func(ci models.ChunkIssue) models.RowIssue {
		return models.RowIssue{OriginalIndex: originalIndex(ci.Index), ReadyIndex: start + ci.Index, Reason: ci.Reason}
	}

	rows := make([]models.RowOutcome, len(chunk))
	for i, rec := range chunk {
		rows[i] = models.RowOutcome{OriginalIndex: rec.OriginalIndex, ReadyIndex: start + i, Action: models.ActionUnknown}
	}

	for _, w := range resp.Warnings {
		result.Warnings = append(result.Warnings, issue(w))
	}
	for _, e := range resp.Errors {
		result.Errors = append(result.Errors, issue(e))
	}

	switch {
	case len(resp.Results) > 0:
		for _, r := range resp.Results {
			if r.Index < 0 || r.Index >= len(chunk) {
				continue
			}
			row := &rows[r.Index]
			row.Action = r.Action
			row.MatchStrategy = r.MatchStrategy
			row.Warnings = append(row.Warnings, r.Warnings...)
			row.Errors = append(row.Errors, r.Errors...)
		}
	case len(resp.Details) > 0:
		for _, d := range resp.Details {
			if d.Index >= 0 && d.Index < len(chunk) {
				rows[d.Index].Action = d.Action
			}
		}
		fallthrough
	default:
		for _, w := range resp.Warnings {
			if w.Index >= 0 && w.Index < len(chunk) {
				rows[w.Index].Warnings = append(rows[w.Index].Warnings, w.Reason)
			}
		}
		for _, e := range resp.Errors {
			if e.Index >= 0 && e.Index < len(chunk) {
				rows[e.Index].Errors = append(rows[e.Index].Errors, e.Reason)
			}
		}
	}

	result.Rows = append(result.Rows, rows...)
}
