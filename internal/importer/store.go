package importer

import (
	"context"

	"crmimport/internal/models"
)

// ChunkStore applies a chunk of rows with insert-or-update semantics.
// database.MongoDB implements it.
type ChunkStore interface {
	ApplyChunk(ctx context.Context, rows []models.ImportRow) (*models.ChunkResponse, error)
}

// StoreSubmitter submits chunks straight to a ChunkStore, skipping HTTP.
type StoreSubmitter struct {
	Store ChunkStore
}

func (s StoreSubmitter) Submit(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
	return s.Store.ApplyChunk(ctx, req.Rows)
}

// DryRunSubmitter reports every row as skipped without writing anything.
type DryRunSubmitter struct{}

func (DryRunSubmitter) Submit(_ context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
	resp := &models.ChunkResponse{Skipped: len(req.Rows)}
	for i := range req.Rows {
		resp.Results = append(resp.Results, models.ChunkResult{Index: i, Action: models.ActionSkipped, MatchStrategy: "dry_run"})
	}
	return resp, nil
}
