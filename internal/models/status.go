package models

// Status is the terminal classification of a normalized record.
type Status string

const (
	StatusOK            Status = "ok"
	StatusWarning       Status = "warning"
	StatusError         Status = "error"
	StatusErrorCritical Status = "error_critical"
	StatusSkip          Status = "skip"
)

// severity orders statuses from least to most severe. skip sits above
// error_critical because an empty row is excluded before anything else.
func (s Status) severity() int {
	switch s {
	case StatusOK:
		return 0
	case StatusWarning:
		return 1
	case StatusError:
		return 2
	case StatusErrorCritical:
		return 3
	case StatusSkip:
		return 4
	}
	return -1
}

// Worse returns the more severe of s and other.
func (s Status) Worse(other Status) Status {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// AtLeast raises s to floor when floor is more severe.
func (s Status) AtLeast(floor Status) Status { return s.Worse(floor) }

// Importable reports whether a record with this status may reach
// deduplication and import.
func (s Status) Importable() bool {
	switch s {
	case StatusOK, StatusWarning, StatusError:
		return true
	}
	return false
}

// Message codes attached to records. Codes are stable and used in reports;
// the text is for people.
const (
	CodeMissingName        = "missing_name"
	CodeEmptyRow           = "empty_row"
	CodeMissingEmail       = "missing_email"
	CodeInvalidEmail       = "invalid_email"
	CodeInvalidVAT         = "invalid_vat_number"
	CodeLowConfidenceMatch = "low_confidence_match"
	CodeManualEdit         = "manual_edit"
)

// Message is one human readable validation note on a record.
type Message struct {
	Code  string `json:"code"`
	Field Field  `json:"field,omitempty"`
	Text  string `json:"text"`
}

// NormalizedRecord is the derived canonical form of a SourceRow. It is
// rebuilt wholesale whenever the mapping or the confirmed edits change.
type NormalizedRecord struct {
	OriginalIndex int
	Fields        map[Field]string
	Status        Status
	Messages      []Message
	Editable      map[Field]bool
	// Flagged marks an error record downgraded to warning for import.
	Flagged bool
}

// Value returns the normalized value of field.
func (r NormalizedRecord) Value(field Field) string { return r.Fields[field] }

// Completeness counts populated canonical fields.
func (r NormalizedRecord) Completeness() int {
	n := 0
	for _, f := range Fields {
		if r.Fields[f] != "" {
			n++
		}
	}
	return n
}

// HasCode reports whether any message carries code.
func (r NormalizedRecord) HasCode(code string) bool {
	for _, m := range r.Messages {
		if m.Code == code {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can annotate without touching the
// original slice element.
func (r NormalizedRecord) Clone() NormalizedRecord {
	out := r
	out.Fields = make(map[Field]string, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	out.Editable = make(map[Field]bool, len(r.Editable))
	for k, v := range r.Editable {
		out.Editable[k] = v
	}
	out.Messages = append([]Message(nil), r.Messages...)
	return out
}
