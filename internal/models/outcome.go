package models

// MatchType names the dedup key that detected a duplicate.
type MatchType string

const (
	MatchVAT          MatchType = "vat_number"
	MatchEmail        MatchType = "email"
	MatchNamePhone    MatchType = "name_phone"
	MatchNameLinkedIn MatchType = "name_linkedin"
	MatchName         MatchType = "name"
)

// Tier returns the confidence tier of the match type, 1 being the highest.
func (m MatchType) Tier() int {
	switch m {
	case MatchVAT, MatchEmail:
		return 1
	case MatchNamePhone, MatchNameLinkedIn:
		return 2
	case MatchName:
		return 3
	}
	return 0
}

// Reason explains why a record ended up in the skipped set.
type Reason struct {
	Code      string    `json:"code" csv:"code"`
	Text      string    `json:"text" csv:"text"`
	MatchType MatchType `json:"match_type,omitempty" csv:"match_type,omitempty"`
	// WinnerIndex is the OriginalIndex of the retained record for duplicate
	// reasons, -1 otherwise.
	WinnerIndex int `json:"winner_index" csv:"winner_index"`
}

// SkippedRecord is a record excluded from import together with why.
type SkippedRecord struct {
	Record  NormalizedRecord
	Reasons []Reason
}

// DedupOutcome is the ready/skipped partition of a normalized record set.
type DedupOutcome struct {
	// Ready holds one representative per cluster in first-seen order.
	Ready []NormalizedRecord
	// Skipped is ordered by OriginalIndex.
	Skipped []SkippedRecord
}

// Action is what the backing store did with an imported row.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionSkipped  Action = "skipped"
	ActionUnknown  Action = "unknown"
)

// RowIssue is a warning or error reported by the store for one row.
type RowIssue struct {
	OriginalIndex int    `json:"original_index"`
	ReadyIndex    int    `json:"ready_index"`
	Reason        string `json:"reason"`
}

// RowOutcome is the per-record result of an import.
type RowOutcome struct {
	OriginalIndex int      `json:"original_index"`
	ReadyIndex    int      `json:"ready_index"`
	Action        Action   `json:"action"`
	MatchStrategy string   `json:"match_strategy,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// ImportBatchResult aggregates every submitted chunk of one import run.
type ImportBatchResult struct {
	JobID           string
	Inserted        int
	Updated         int
	Skipped         int
	Warnings        []RowIssue
	Errors          []RowIssue
	Rows            []RowOutcome
	ChunksCompleted int
	ChunksTotal     int
	Processed       int
	Total           int
}

// Accounted is the number of rows the store reported an action for.
func (r *ImportBatchResult) Accounted() int {
	return r.Inserted + r.Updated + r.Skipped
}
