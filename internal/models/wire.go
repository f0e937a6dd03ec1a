package models

// ImportRow is one record as sent to the insert-or-update endpoint and as
// stored in MongoDB. Empty fields are omitted so an update never blanks a
// value the collection already holds.
type ImportRow struct {
	Name         string `json:"name" bson:"name"`
	Email        string `json:"email,omitempty" bson:"email,omitempty"`
	Phone        string `json:"phone,omitempty" bson:"phone,omitempty"`
	Company      string `json:"company,omitempty" bson:"company,omitempty"`
	VATNumber    string `json:"vat_number,omitempty" bson:"vat_number,omitempty"`
	LinkedIn     string `json:"linkedin,omitempty" bson:"linkedin,omitempty"`
	Website      string `json:"website,omitempty" bson:"website,omitempty"`
	Role         string `json:"role,omitempty" bson:"role,omitempty"`
	City         string `json:"city,omitempty" bson:"city,omitempty"`
	Country      string `json:"country,omitempty" bson:"country,omitempty"`
	InvestorType string `json:"investor_type,omitempty" bson:"investor_type,omitempty"`
	Notes        string `json:"notes,omitempty" bson:"notes,omitempty"`

	// Status is ok or warning; error rows arrive downgraded with Flagged set.
	Status  Status `json:"status,omitempty" bson:"import_status,omitempty"`
	Flagged bool   `json:"flagged,omitempty" bson:"import_flagged,omitempty"`
}

// Set assigns the canonical field f.
func (r *ImportRow) Set(f Field, v string) {
	switch f {
	case FieldName:
		r.Name = v
	case FieldEmail:
		r.Email = v
	case FieldPhone:
		r.Phone = v
	case FieldCompany:
		r.Company = v
	case FieldVATNumber:
		r.VATNumber = v
	case FieldLinkedIn:
		r.LinkedIn = v
	case FieldWebsite:
		r.Website = v
	case FieldRole:
		r.Role = v
	case FieldCity:
		r.City = v
	case FieldCountry:
		r.Country = v
	case FieldInvestorType:
		r.InvestorType = v
	case FieldNotes:
		r.Notes = v
	}
}

// ChunkRequest is the body of one chunk submission.
type ChunkRequest struct {
	Rows []ImportRow `json:"rows"`
}

// ChunkIssue is a warning or error for the row at Index within the chunk.
type ChunkIssue struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ChunkResult is the authoritative per-row outcome, when the endpoint
// provides one.
type ChunkResult struct {
	Index         int      `json:"index"`
	Action        Action   `json:"action"`
	MatchStrategy string   `json:"match_strategy,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// ChunkDetail is the older per-row outcome shape, read only when Results
// is absent.
type ChunkDetail struct {
	Index  int    `json:"index"`
	Action Action `json:"action"`
}

// ChunkResponse is the endpoint's answer for one chunk.
type ChunkResponse struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Warnings []ChunkIssue  `json:"warnings"`
	Errors   []ChunkIssue  `json:"errors"`
	Results  []ChunkResult `json:"results,omitempty"`
	Details  []ChunkDetail `json:"details,omitempty"`
	JobID    string        `json:"job_id,omitempty"`
}
