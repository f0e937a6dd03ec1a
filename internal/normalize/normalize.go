// Package normalize turns a source row into a validated canonical record.
//
// Normalize is pure: the same row, mapping and confirmed edits always give
// an identical record, so callers recompute freely whenever any input
// changes instead of patching previous output.
package normalize

import (
	"fmt"
	"strings"

	"crmimport/internal/mapping"
	"crmimport/internal/models"
	"crmimport/internal/textnorm"

	"github.com/go-playground/validator/v10"
)

// ConfirmedEdits looks up a confirmed manual correction for one cell.
type ConfirmedEdits interface {
	Confirmed(key models.CellKey) (string, bool)
}

// Sensitive fields can be corrected inline.
var Sensitive = []models.Field{models.FieldName, models.FieldEmail, models.FieldPhone, models.FieldVATNumber}

var validate = validator.New()

// Normalize derives the canonical record for row.
func Normalize(row models.SourceRow, m mapping.FieldMapping, confirmed ConfirmedEdits) models.NormalizedRecord {
	rec := models.NormalizedRecord{
		OriginalIndex: row.OriginalIndex(),
		Fields:        make(map[models.Field]string, len(models.Fields)),
		Status:        models.StatusOK,
		Editable:      make(map[models.Field]bool, len(Sensitive)),
	}

	anyValue := false
	for _, field := range models.Fields {
		raw := Derive(row, m, field)
		if confirmed != nil {
			if v, ok := confirmed.Confirmed(models.CellKey{OriginalIndex: rec.OriginalIndex, Field: field}); ok {
				raw = v
				rec.Messages = append(rec.Messages, models.Message{
					Code:  models.CodeManualEdit,
					Field: field,
					Text:  fmt.Sprintf("%s corrected manually", field.Label()),
				})
			}
		}
		if strings.TrimSpace(raw) != "" {
			anyValue = true
		}

		value, issue := transform(field, raw)
		if value != "" {
			rec.Fields[field] = value
		}
		if issue != nil {
			rec.Messages = append(rec.Messages, *issue)
			rec.Status = rec.Status.Worse(models.StatusError)
		}
	}

	if !anyValue {
		rec.Status = models.StatusSkip
		rec.Messages = append(rec.Messages, models.Message{Code: models.CodeEmptyRow, Text: "Row is empty"})
		return rec
	}

	for _, field := range Sensitive {
		rec.Editable[field] = true
	}

	if rec.Fields[models.FieldName] == "" {
		rec.Status = rec.Status.Worse(models.StatusErrorCritical)
		rec.Messages = append(rec.Messages, models.Message{
			Code:  models.CodeMissingName,
			Field: models.FieldName,
			Text:  "Name is required",
		})
	}

	if rec.Fields[models.FieldEmail] == "" && !rec.HasCode(models.CodeInvalidEmail) {
		rec.Status = rec.Status.Worse(models.StatusWarning)
		rec.Messages = append(rec.Messages, models.Message{
			Code:  models.CodeMissingEmail,
			Field: models.FieldEmail,
			Text:  "No email address",
		})
	}

	return rec
}

// NormalizeAll normalizes rows in order.
func NormalizeAll(rows []models.SourceRow, m mapping.FieldMapping, confirmed ConfirmedEdits) []models.NormalizedRecord {
	out := make([]models.NormalizedRecord, len(rows))
	for i, row := range rows {
		out[i] = Normalize(row, m, confirmed)
	}
	return out
}

// Derive returns the raw, untransformed value the mapping yields for field.
func Derive(row models.SourceRow, m mapping.FieldMapping, field models.Field) string {
	switch field {
	case models.FieldName:
		if m.NameMode == mapping.NameModeSplit {
			parts := make([]string, 0, 2)
			for _, c := range []string{m.FirstName, m.LastName} {
				if v := strings.TrimSpace(row.Get(c)); c != "" && v != "" {
					parts = append(parts, v)
				}
			}
			return strings.Join(parts, " ")
		}
	case models.FieldNotes:
		return aggregateNotes(row, m.Notes)
	}
	if c := m.Column(field); c != "" {
		return row.Get(c)
	}
	return ""
}

func aggregateNotes(row models.SourceRow, columns []string) string {
	var blocks []string
	for _, c := range columns {
		v := strings.TrimSpace(row.Get(c))
		if v == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("%s: %s", textnorm.CollapseSpaces(c), v))
	}
	return strings.Join(blocks, "\n\n")
}

// transform applies the field's type rule. A non-nil message means the
// value failed validation.
func transform(field models.Field, raw string) (string, *models.Message) {
	switch field {
	case models.FieldEmail:
		return Email(raw)
	case models.FieldVATNumber:
		return VATNumber(raw)
	case models.FieldNotes:
		return strings.TrimSpace(raw), nil
	}
	return textnorm.CollapseSpaces(raw), nil
}

// Email trims and lowercases raw. Malformed addresses are kept but flagged.
func Email(raw string) (string, *models.Message) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", nil
	}
	if err := validate.Var(v, "required,email"); err != nil {
		return v, &models.Message{
			Code:  models.CodeInvalidEmail,
			Field: models.FieldEmail,
			Text:  fmt.Sprintf("Email %q is not a valid address", v),
		}
	}
	return v, nil
}

// ValidEmail reports whether a normalized email passed validation.
func ValidEmail(v string) bool {
	return v != "" && validate.Var(v, "required,email") == nil
}
