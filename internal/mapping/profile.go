package mapping

import (
	"fmt"
	"os"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"

	"github.com/goccy/go-yaml"
)

// Profile is a saved mapping for a recurring source layout.
type Profile struct {
	Name    string       `yaml:"name,omitempty"`
	Mapping FieldMapping `yaml:"mapping"`
}

// Marshal encodes p as YAML.
func (p Profile) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping profile: %w", err)
	}
	return data, nil
}

// ParseProfile decodes a YAML profile. Every bound field is treated as a
// user override, so re-suggestion never replaces a saved choice.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode mapping profile: %w", err)
	}

	m := p.Mapping.Clone()
	switch m.NameMode {
	case "":
		m.NameMode = NameModeFull
	case NameModeFull, NameModeSplit:
	default:
		return Profile{}, fmt.Errorf("mapping profile has unknown name mode %q: %w", m.NameMode, pipelineerrors.ErrInvalidInput)
	}
	if m.NameMode == NameModeSplit {
		delete(m.Columns, models.FieldName)
	} else {
		m.FirstName, m.LastName = "", ""
	}
	for f := range m.Columns {
		if !f.IsKnown() || f == models.FieldNotes {
			return Profile{}, fmt.Errorf("mapping profile binds unknown field %q: %w", f, pipelineerrors.ErrInvalidInput)
		}
	}
	for _, f := range models.Fields {
		if m.IsMapped(f) {
			m.Overridden[f] = true
		}
	}
	p.Mapping = m
	return p, nil
}

// LoadProfile reads a profile from path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read mapping profile: %w", err)
	}
	return ParseProfile(data)
}

// SaveProfile writes p to path.
func SaveProfile(path string, p Profile) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write mapping profile: %w", err)
	}
	return nil
}
