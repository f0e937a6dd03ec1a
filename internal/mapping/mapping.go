// Package mapping maps arbitrary source headers onto canonical fields.
package mapping

import (
	"fmt"
	"slices"
	"sort"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"
)

// NameMode selects how the composite name field is sourced.
type NameMode string

const (
	// NameModeFull reads the name from one combined column.
	NameModeFull NameMode = "full"
	// NameModeSplit joins a first-name and a last-name column.
	NameModeSplit NameMode = "split"
)

// FieldMapping is the chosen source column for each canonical field.
//
// The name field is sourced either from Columns[name] (full mode) or from
// FirstName/LastName (split mode), never both. Notes aggregates several
// columns. Every other field takes a single column.
type FieldMapping struct {
	NameMode  NameMode                `yaml:"name_mode"`
	Columns   map[models.Field]string `yaml:"columns,omitempty"`
	FirstName string                  `yaml:"first_name,omitempty"`
	LastName  string                  `yaml:"last_name,omitempty"`
	Notes     []string                `yaml:"notes,omitempty"`

	// Overridden records fields the user picked by hand. Heuristic
	// re-suggestion never touches them.
	Overridden map[models.Field]bool `yaml:"-"`

	frozen bool
}

// New returns an empty mapping in full-name mode.
func New() FieldMapping {
	return FieldMapping{
		NameMode:   NameModeFull,
		Columns:    make(map[models.Field]string),
		Overridden: make(map[models.Field]bool),
	}
}

// Clone returns an unfrozen deep copy.
func (m FieldMapping) Clone() FieldMapping {
	out := New()
	out.NameMode = m.NameMode
	for k, v := range m.Columns {
		out.Columns[k] = v
	}
	for k, v := range m.Overridden {
		out.Overridden[k] = v
	}
	out.FirstName = m.FirstName
	out.LastName = m.LastName
	out.Notes = append([]string(nil), m.Notes...)
	return out
}

// Freeze stops further changes; the pipeline calls it when it leaves the
// mapping stage.
func (m *FieldMapping) Freeze() { m.frozen = true }

// Frozen reports whether the mapping can still change.
func (m FieldMapping) Frozen() bool { return m.frozen }

func (m *FieldMapping) ensure() error {
	if m.frozen {
		return pipelineerrors.ErrMappingFrozen
	}
	if m.Columns == nil {
		m.Columns = make(map[models.Field]string)
	}
	if m.Overridden == nil {
		m.Overridden = make(map[models.Field]bool)
	}
	if m.NameMode == "" {
		m.NameMode = NameModeFull
	}
	return nil
}

// Column returns the single source column bound to field. For the name in
// split mode and for notes it returns "".
func (m FieldMapping) Column(field models.Field) string {
	if field == models.FieldName && m.NameMode == NameModeSplit {
		return ""
	}
	return m.Columns[field]
}

// IsMapped reports whether field has any source column.
func (m FieldMapping) IsMapped(field models.Field) bool {
	switch field {
	case models.FieldName:
		if m.NameMode == NameModeSplit {
			return m.FirstName != "" || m.LastName != ""
		}
		return m.Columns[models.FieldName] != ""
	case models.FieldNotes:
		return len(m.Notes) > 0
	}
	return m.Columns[field] != ""
}

// Set binds field to column as an explicit user choice. Setting the name
// switches to full mode. Notes columns accumulate; SetNotes replaces them.
// An empty column clears the binding.
func (m *FieldMapping) Set(field models.Field, column string) error {
	if err := m.ensure(); err != nil {
		return err
	}
	if !field.IsKnown() {
		return fmt.Errorf("unknown field %q: %w", field, pipelineerrors.ErrInvalidInput)
	}
	switch field {
	case models.FieldNotes:
		if column == "" {
			m.Notes = nil
		} else if !slices.Contains(m.Notes, column) {
			m.Notes = append(m.Notes, column)
		}
	case models.FieldName:
		m.switchMode(NameModeFull)
		fallthrough
	default:
		if column == "" {
			delete(m.Columns, field)
		} else {
			m.Columns[field] = column
		}
	}
	m.Overridden[field] = true
	return nil
}

// SetSplitName selects split mode with the given first and last columns.
// Either may be empty.
func (m *FieldMapping) SetSplitName(first, last string) error {
	if err := m.ensure(); err != nil {
		return err
	}
	m.switchMode(NameModeSplit)
	m.FirstName = first
	m.LastName = last
	m.Overridden[models.FieldName] = true
	return nil
}

// SetNameMode switches the composite name mode, clearing the bindings of
// the mode being left.
func (m *FieldMapping) SetNameMode(mode NameMode) error {
	if err := m.ensure(); err != nil {
		return err
	}
	if mode != NameModeFull && mode != NameModeSplit {
		return fmt.Errorf("unknown name mode %q: %w", mode, pipelineerrors.ErrInvalidInput)
	}
	m.switchMode(mode)
	m.Overridden[models.FieldName] = true
	return nil
}

func (m *FieldMapping) switchMode(mode NameMode) {
	if m.NameMode == mode {
		return
	}
	m.NameMode = mode
	if mode == NameModeSplit {
		delete(m.Columns, models.FieldName)
	} else {
		m.FirstName, m.LastName = "", ""
	}
}

// SetNotes replaces the aggregated notes columns.
func (m *FieldMapping) SetNotes(columns []string) error {
	if err := m.ensure(); err != nil {
		return err
	}
	m.Notes = append([]string(nil), columns...)
	m.Overridden[models.FieldNotes] = true
	return nil
}

// Missing lists required fields with no source column.
func (m FieldMapping) Missing() []models.Field {
	var out []models.Field
	for _, f := range Required {
		if !m.IsMapped(f) {
			out = append(out, f)
		}
	}
	return out
}

// UsedColumns returns every source column the mapping reads, sorted.
func (m FieldMapping) UsedColumns() []string {
	seen := make(map[string]bool)
	for f, c := range m.Columns {
		if f == models.FieldName && m.NameMode == NameModeSplit {
			continue
		}
		seen[c] = true
	}
	if m.NameMode == NameModeSplit {
		seen[m.FirstName] = true
		seen[m.LastName] = true
	}
	for _, c := range m.Notes {
		seen[c] = true
	}
	delete(seen, "")
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Restrict drops bindings to columns not present in headers and returns
// the dropped column names.
func (m *FieldMapping) Restrict(headers []string) ([]string, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var dropped []string
	for f, c := range m.Columns {
		if !present[c] {
			dropped = append(dropped, c)
			delete(m.Columns, f)
		}
	}
	if m.FirstName != "" && !present[m.FirstName] {
		dropped = append(dropped, m.FirstName)
		m.FirstName = ""
	}
	if m.LastName != "" && !present[m.LastName] {
		dropped = append(dropped, m.LastName)
		m.LastName = ""
	}
	kept := m.Notes[:0]
	for _, c := range m.Notes {
		if present[c] {
			kept = append(kept, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	m.Notes = kept
	sort.Strings(dropped)
	return dropped, nil
}
