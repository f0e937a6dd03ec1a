package models

import "sort"

// Field is a canonical field of the destination contact schema.
type Field string

const (
	FieldName         Field = "name"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldCompany      Field = "company"
	FieldVATNumber    Field = "vat_number"
	FieldLinkedIn     Field = "linkedin"
	FieldWebsite      Field = "website"
	FieldRole         Field = "role"
	FieldCity         Field = "city"
	FieldCountry      Field = "country"
	FieldInvestorType Field = "investor_type"
	FieldNotes        Field = "notes"
)

// Fields lists every canonical field in declaration order. The order is
// significant: the mapper resolves header conflicts by it and the import
// payload is emitted in it.
var Fields = []Field{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldCompany,
	FieldVATNumber,
	FieldLinkedIn,
	FieldWebsite,
	FieldRole,
	FieldCity,
	FieldCountry,
	FieldInvestorType,
	FieldNotes,
}

// Label returns a human readable field name.
func (f Field) Label() string {
	switch f {
	case FieldName:
		return "Name"
	case FieldEmail:
		return "Email"
	case FieldPhone:
		return "Phone"
	case FieldCompany:
		return "Company"
	case FieldVATNumber:
		return "VAT number"
	case FieldLinkedIn:
		return "LinkedIn"
	case FieldWebsite:
		return "Website"
	case FieldRole:
		return "Role"
	case FieldCity:
		return "City"
	case FieldCountry:
		return "Country"
	case FieldInvestorType:
		return "Investor type"
	case FieldNotes:
		return "Notes"
	}
	return string(f)
}

// IsKnown reports whether f is one of the canonical fields.
func (f Field) IsKnown() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// SourceRow is one raw row of the uploaded data, keyed by original header.
// It is created once by the tokenizer and never mutated afterwards.
type SourceRow struct {
	originalIndex int
	values        map[string]string
	columns       []string
}

// NewSourceRow copies values so later changes to the caller's map cannot
// leak into the row.
func NewSourceRow(originalIndex int, values map[string]string) SourceRow {
	copied := make(map[string]string, len(values))
	columns := make([]string, 0, len(values))
	for k, v := range values {
		copied[k] = v
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return SourceRow{originalIndex: originalIndex, values: copied, columns: columns}
}

// OriginalIndex is the zero-based position of the row in the uploaded set.
func (r SourceRow) OriginalIndex() int { return r.originalIndex }

// Get returns the raw cell value for column, or "" when absent.
func (r SourceRow) Get(column string) string { return r.values[column] }

// Columns returns the row's column names in sorted order.
func (r SourceRow) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// CellKey addresses one canonical field of one uploaded row.
type CellKey struct {
	OriginalIndex int
	Field         Field
}
