package importer

import (
	"crmimport/internal/models"
)

// BuildRow converts a ready record into its wire form. Error rows are
// importable but travel as warnings with Flagged set, so the store keeps a
// marker for follow-up.
func BuildRow(rec models.NormalizedRecord) models.ImportRow {
	var row models.ImportRow
	for _, f := range models.Fields {
		if v := rec.Value(f); v != "" {
			row.Set(f, v)
		}
	}

	row.Status = rec.Status
	row.Flagged = rec.Flagged
	if rec.Status == models.StatusError {
		row.Status = models.StatusWarning
		row.Flagged = true
	}
	return row
}

// BuildRequest converts a chunk of ready records.
func BuildRequest(chunk []models.NormalizedRecord) models.ChunkRequest {
	rows := make([]models.ImportRow, len(chunk))
	for i, rec := range chunk {
		rows[i] = BuildRow(rec)
	}
	return models.ChunkRequest{Rows: rows}
}
